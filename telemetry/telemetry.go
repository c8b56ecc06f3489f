// Package telemetry times the tracker's processing phases. A collector is
// carried through context so instrumentation costs nothing when disabled.
package telemetry

import (
	"context"
	"io"
)

// Collector gathers operation timings and reports them as a tree.
type Collector interface {
	// Start begins timing an operation; end it with Timer.End.
	Start(name string) Timer

	// Report writes the collected timings.
	Report(w io.Writer)
}

// Timer tracks one operation. Child starts a nested operation.
type Timer interface {
	End()
	Child(name string) Timer
}

type contextKey struct{}

// WithCollector attaches a collector to a context.
func WithCollector(ctx context.Context, c Collector) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the attached collector, or a no-op one.
func FromContext(ctx context.Context) Collector {
	if c, ok := ctx.Value(contextKey{}).(Collector); ok {
		return c
	}
	return noopCollector{}
}

type noopCollector struct{}

func (noopCollector) Start(string) Timer { return noopTimer{} }
func (noopCollector) Report(io.Writer)   {}

type noopTimer struct{}

func (noopTimer) End()               {}
func (noopTimer) Child(string) Timer { return noopTimer{} }
