package observability

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	observabilityKey = contextKey("OBSERVABILITY")
)

// Observability holds the Logger & Metrics used by securecomm components.
// nil *Observability are safe to use.
type Observability struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Log returns inner Logger or slog.Default().
func (self *Observability) Log() *slog.Logger {
	if (nil == self) || (nil == self.Logger) {
		return slog.Default()
	}

	return self.Logger
}

// Stats returns inner Metrics. The returned *Metrics may be nil, its methods are nil safe.
func (self *Observability) Stats() *Metrics {
	if nil == self {
		return nil
	}

	return self.Metrics
}

// With returns a copy of self whose Logger carries args.
func (self *Observability) With(args ...any) *Observability {
	return &Observability{Logger: self.Log().With(args...), Metrics: self.Stats()}
}

// GetObservability returns ctx Observability.
func GetObservability(ctx context.Context) *Observability {
	var rv *Observability
	rv, _ = ctx.Value(observabilityKey).(*Observability)
	return rv
}

// SetObservability returns new Context containing obs.
func SetObservability(ctx context.Context, obs *Observability) context.Context {
	return context.WithValue(ctx, observabilityKey, obs)
}
