// Package tracing implements in-process request tracing. A root span is
// opened per request and child spans mark the expensive stages inside it
// (scoring, topic fitting, sentiment). Finished span trees are emitted
// through slog, keyed by the request ID, so slow requests can be broken
// down from the logs alone without an external trace collector.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed operation. Spans form a tree per request.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// StartSpan opens a root span and stores it in the returned context. The
// trace ID is normally the request ID, tying span logs to request logs.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan opens a span under the one stored in ctx. Without a parent
// in ctx the child stands alone, which keeps instrumented code callable
// from tests and background jobs that never opened a root span.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := newSpan(name, "")
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// End records the span's end time and duration. Only the first call counts;
// later calls keep the original measurement.
func (s *Span) End() {
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log emits the span and its descendants through slog, one record per
// span, depth marking the tree position.
func (s *Span) Log() {
	s.emit(0)
}

func (s *Span) emit(depth int) {
	duration := s.Duration
	if s.EndTime.IsZero() {
		duration = time.Since(s.StartTime)
	}
	attrs := make([]any, 0, 8+2*len(s.Attrs))
	attrs = append(attrs,
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", duration.Milliseconds(),
		"depth", depth,
	)
	s.mu.Lock()
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := s.Children
	s.mu.Unlock()
	slog.Info("span", attrs...)

	for _, child := range children {
		child.emit(depth + 1)
	}
}
