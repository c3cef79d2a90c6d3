package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/config"
)

func TestTelegramSendDisabled(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestTelegramSendMissingConfig(t *testing.T) {
	client := newTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop(), "http://unused", nil)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing token/chat_id")
	}
}

func TestTelegramSendPostsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	client := newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
	if err := client.Send(context.Background(), "opened BTC"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotPayload["chat_id"] != "123" || gotPayload["text"] != "opened BTC" {
		t.Fatalf("payload = %v", gotPayload)
	}
}

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Send(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestDomainAlerts(t *testing.T) {
	n := &recordingNotifier{}
	log := zap.NewNop()
	ctx := context.Background()

	PositionOpened(ctx, n, log, "BTC", "binance", "okx", 0.012)
	OneSidedExposure(ctx, n, log, "ETH", 1.5, 0)
	TickerBlacklisted(ctx, n, log, "DOGE", "historic spread too wide", time.Unix(1700000000, 0))

	if len(n.messages) != 3 {
		t.Fatalf("messages = %v", n.messages)
	}
	if !strings.Contains(n.messages[0], "BTC") || !strings.Contains(n.messages[0], "binance") {
		t.Fatalf("open alert = %q", n.messages[0])
	}
	if !strings.Contains(n.messages[1], "one-sided") {
		t.Fatalf("exposure alert = %q", n.messages[1])
	}
	if !strings.Contains(n.messages[2], "DOGE") {
		t.Fatalf("blacklist alert = %q", n.messages[2])
	}
}

func TestNotifyFailureDoesNotPropagate(t *testing.T) {
	n := &recordingNotifier{err: errors.New("telegram down")}
	PositionClosed(context.Background(), n, zap.NewNop(), "BTC", 4.2)
	if len(n.messages) != 1 {
		t.Fatalf("messages = %v", n.messages)
	}
}
