// Package audit records finished calculations without holding up the
// response that produced them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// DefaultWriteTimeout bounds one detached audit write.
const DefaultWriteTimeout = 5 * time.Second

// Logger accepts audit records fire-and-forget. Log must not block on I/O
// and never reports failure to the caller.
type Logger interface {
	Log(ctx context.Context, rec model.AuditRecord)
}

// Sink durably writes one audit record.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec model.AuditRecord) error
}

// Nop discards every record.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(context.Context, model.AuditRecord) {}

// Async hands each record to a Sink on its own goroutine. The write context
// is detached from the request so a client disconnect does not abort it, and
// is bounded by the write timeout.
type Async struct {
	sink    Sink
	timeout time.Duration
	metrics *monitoring.Metrics
	wg      sync.WaitGroup
}

// AsyncOption configures an Async logger.
type AsyncOption func(*Async)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMetrics counts write outcomes per sink.
func WithMetrics(m *monitoring.Metrics) AsyncOption {
	return func(a *Async) { a.metrics = m }
}

// NewAsync creates a fire-and-forget logger over sink.
func NewAsync(sink Sink, opts ...AsyncOption) *Async {
	a := &Async{sink: sink, timeout: DefaultWriteTimeout}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Log implements Logger.
func (a *Async) Log(ctx context.Context, rec model.AuditRecord) {
	detached := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		wctx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()

		if err := a.sink.Write(wctx, rec); err != nil {
			zap.L().Warn("audit: write failed",
				zap.String("sink", a.sink.Name()),
				zap.String("calculation_id", rec.ID),
				zap.Error(err),
			)
			a.metrics.ObserveAuditWrite(a.sink.Name(), monitoring.OutcomeError)
			return
		}
		a.metrics.ObserveAuditWrite(a.sink.Name(), monitoring.OutcomeSuccess)
	}()
}

// Wait blocks until every in-flight write has finished or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "audit: wait for in-flight writes")
	}
}
