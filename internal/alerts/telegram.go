package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/config"
)

const telegramBaseURL = "https://api.telegram.org"

// Notifier delivers operator-facing alerts. The zero-config Telegram
// client satisfies it as a no-op so callers never branch on enablement.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			desc := strings.TrimSpace(result.Description)
			if desc == "" {
				desc = "unknown telegram error"
			}
			return fmt.Errorf("telegram send failed: %s", desc)
		}
	}
	return nil
}

// notify logs delivery failures instead of propagating them; alerts are
// advisory and must never stall the trading loops.
func notify(ctx context.Context, n Notifier, log *zap.Logger, message string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil {
		log.Warn("alert delivery failed", zap.Error(err), zap.String("message", message))
	}
}

func PositionOpened(ctx context.Context, n Notifier, log *zap.Logger, ticker, spotExchange, hedgeExchange string, profitRate float64) {
	notify(ctx, n, log, fmt.Sprintf("opened %s: buy %s / short %s at %.4f gross", ticker, spotExchange, hedgeExchange, profitRate))
}

func PositionClosed(ctx context.Context, n Notifier, log *zap.Logger, ticker string, realized float64) {
	notify(ctx, n, log, fmt.Sprintf("closed %s: realized %.2f", ticker, realized))
}

func OneSidedExposure(ctx context.Context, n Notifier, log *zap.Logger, ticker string, spotQty, hedgeQty float64) {
	notify(ctx, n, log, fmt.Sprintf("one-sided exposure on %s: spot %.8f vs hedge %.8f, manual check advised", ticker, spotQty, hedgeQty))
}

func TickerBlacklisted(ctx context.Context, n Notifier, log *zap.Logger, ticker, reason string, until time.Time) {
	notify(ctx, n, log, fmt.Sprintf("blacklisted %s until %s: %s", ticker, until.UTC().Format(time.RFC3339), reason))
}
