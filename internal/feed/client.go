// Package feed streams live ticker updates over a websocket and overlays
// them on the polled market data between rebuilds.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"octo-arb-bot/internal/provider"
)

// TickerSink receives streamed updates; the market refresher implements it.
type TickerSink interface {
	ApplyTicker(exchange string, kind provider.Kind, tick provider.TickerPrice)
}

type Config struct {
	URL            string
	Exchange       string
	Kind           provider.Kind
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

type Client struct {
	cfg  Config
	sink TickerSink
	log  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	symbols []string
}

func New(cfg Config, sink TickerSink, log *zap.Logger) *Client {
	return &Client{cfg: cfg, sink: sink, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Subscribe requests ticker streams for the symbols. Subscriptions are
// replayed after every reconnect.
func (c *Client) Subscribe(ctx context.Context, symbols ...string) error {
	c.mu.Lock()
	c.symbols = append(c.symbols, symbols...)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("feed not connected")
	}
	return writeJSON(ctx, conn, subscribeMessage(symbols))
}

// Run reads the stream until the context is cancelled, reconnecting with a
// fixed delay after any read failure.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("feed connect failed", zap.Error(err))
			if !sleep(ctx, c.cfg.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if !sleep(ctx, c.cfg.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()
	if len(symbols) == 0 {
		return nil
	}
	return writeJSON(ctx, conn, subscribeMessage(symbols))
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("feed not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

// tickerMessage is the wire format of one stream event. Absent price
// fields stay nil and leave the polled value in place.
type tickerMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Symbol      string   `json:"symbol"`
		Bid         *float64 `json:"bid"`
		Ask         *float64 `json:"ask"`
		Last        *float64 `json:"last"`
		BaseVolume  *float64 `json:"baseVolume"`
		QuoteVolume *float64 `json:"quoteVolume"`
	} `json:"data"`
}

func (c *Client) handleMessage(data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug("feed message discarded", zap.Error(err))
		return
	}
	if msg.Channel != "ticker" || msg.Data.Symbol == "" {
		return
	}
	c.sink.ApplyTicker(c.cfg.Exchange, c.cfg.Kind, provider.TickerPrice{
		Symbol:      msg.Data.Symbol,
		Bid:         msg.Data.Bid,
		Ask:         msg.Data.Ask,
		Last:        msg.Data.Last,
		BaseVolume:  msg.Data.BaseVolume,
		QuoteVolume: msg.Data.QuoteVolume,
	})
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.cfg.PingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	if err == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("feed stream closed", zap.Error(err))
		return
	}
	c.log.Warn("feed stream ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func subscribeMessage(symbols []string) map[string]any {
	return map[string]any{"op": "subscribe", "channel": "ticker", "symbols": symbols}
}

var pingMessage = map[string]any{"op": "ping"}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
