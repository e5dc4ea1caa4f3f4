package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

type recordingSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	s := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{EventSignal}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventError, "err", "detail"))
	assert.Empty(t, s.titles, "filtered event must not reach the sender")

	require.NoError(t, n.Notify(context.Background(), EventSignal, "BUY BTCUSDT (88%)", "body"))
	assert.Equal(t, []string{"BUY BTCUSDT (88%)"}, s.titles)
}

func TestNotifyOneBrokenChannelDoesNotStopOthers(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("bot token revoked")}
	healthy := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.Notify(context.Background(), EventSignal, "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, healthy.titles, 1, "healthy sender must still deliver")
}

func TestFormatSignalIncludesLevels(t *testing.T) {
	title, message := FormatSignal(domain.SignalResult{
		Instrument:      "BTCUSDT",
		Signal:          domain.SignalSell,
		Confidence:      90,
		CurrentPrice:    100.5,
		EntryPrice:      101,
		StopLossPrice:   104,
		TakeProfitPrice: 95,
		Explanation:     "distribution detected",
	})

	assert.Equal(t, "SELL BTCUSDT (90%)", title)
	assert.Contains(t, message, "Entry: 101.0000")
	assert.Contains(t, message, "Stop: 104.0000")
	assert.Contains(t, message, "Target: 95.0000")
	assert.Contains(t, message, "distribution detected")
}
