package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/depthlab/bookpulse/internal/domain"
)

// EventSignal and EventError are the event types emitted by the signal loop.
const (
	EventSignal = "signal"
	EventError  = "error"
)

// FormatSignal renders a produced signal as a notification title and body.
func FormatSignal(res domain.SignalResult) (title, message string) {
	title = fmt.Sprintf("%s %s (%d%%)", res.Signal, res.Instrument, res.Confidence)

	var b strings.Builder
	fmt.Fprintf(&b, "Price: %.4f\n", res.CurrentPrice)
	if res.EntryPrice > 0 {
		fmt.Fprintf(&b, "Entry: %.4f\n", res.EntryPrice)
	}
	if res.StopLossPrice > 0 {
		fmt.Fprintf(&b, "Stop: %.4f\n", res.StopLossPrice)
	}
	if res.TakeProfitPrice > 0 {
		fmt.Fprintf(&b, "Target: %.4f\n", res.TakeProfitPrice)
	}
	if res.Metrics != nil {
		fmt.Fprintf(&b, "Bid/Ask ratio: %.2f\n", res.Metrics.BidAskRatio)
	}
	if res.Explanation != "" {
		b.WriteString(res.Explanation)
	}
	return title, strings.TrimRight(b.String(), "\n")
}

// NotifySignal formats and dispatches a produced signal under the "signal"
// event type.
func (n *Notifier) NotifySignal(ctx context.Context, res domain.SignalResult) error {
	title, message := FormatSignal(res)
	return n.Notify(ctx, EventSignal, title, message)
}

// NotifyError dispatches a production failure under the "error" event type.
func (n *Notifier) NotifyError(ctx context.Context, instrument domain.Instrument, code domain.ErrorCode, detail string) error {
	title := fmt.Sprintf("Signal error: %s", instrument)
	message := fmt.Sprintf("Code: %s\n%s", code, detail)
	return n.Notify(ctx, EventError, title, message)
}
