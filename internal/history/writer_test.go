package history

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"octo-arb-bot/internal/config"
)

func TestDisabledWriterIsNil(t *testing.T) {
	writer, err := New(config.HistoryConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if writer != nil {
		t.Fatal("disabled config should yield a nil writer")
	}
}

func TestNilWriterMethodsAreSafe(t *testing.T) {
	var writer *Writer
	writer.Start(context.Background())
	writer.EnqueueTrade(ClosedTrade{Time: time.Now(), Ticker: "BTC/USDT"})
	writer.EnqueueScan(ScanSummary{Time: time.Now(), Candidates: 3})
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnabledWithoutDSNFails(t *testing.T) {
	if _, err := New(config.HistoryConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing dsn")
	}
}
