package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

const sendTimeout = 10 * time.Second

// Alerter turns fills into alerts and delivers them off the hot path.
// It implements model.Sink; candle closes are ignored.
type Alerter struct {
	notifier Notifier
	queue    chan Alert
	log      *zap.Logger

	// OnDrop is called when the queue is full and an alert is discarded.
	OnDrop func()
}

// NewAlerter creates an Alerter with a bounded queue.
func NewAlerter(n Notifier, queueSize int, log *zap.Logger) *Alerter {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Alerter{
		notifier: n,
		queue:    make(chan Alert, queueSize),
		log:      logger.OrNop(log),
	}
}

func (a *Alerter) CandleClosed(string, time.Duration, model.Candle) {}

// Filled implements model.Sink.
func (a *Alerter) Filled(f model.Fill) {
	a.Notify(FillAlert(f))
}

// Notify queues an alert without blocking.
func (a *Alerter) Notify(alert Alert) {
	select {
	case a.queue <- alert:
	default:
		a.log.Warn("alert queue full, dropping", zap.String("title", alert.Title))
		if a.OnDrop != nil {
			a.OnDrop()
		}
	}
}

// Run delivers queued alerts until ctx is cancelled, then drains what is left.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case alert := <-a.queue:
			a.deliver(alert)
		case <-ctx.Done():
			for {
				select {
				case alert := <-a.queue:
					a.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (a *Alerter) deliver(alert Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := a.notifier.Send(ctx, alert); err != nil {
		a.log.Warn("alert delivery failed", zap.String("title", alert.Title), zap.Error(err))
	}
}

// FillAlert formats a fill as an info alert.
func FillAlert(f model.Fill) Alert {
	msg := fmt.Sprintf("%s %.8g %s @ %.8g (signal %.8g)", f.Side, f.Amount, f.Symbol, f.Price, f.Signal)
	if f.Reason != "" {
		msg += "\nreason: " + f.Reason
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s %s", f.Strategy, f.Side, f.Symbol),
		Message: msg,
	}
}
