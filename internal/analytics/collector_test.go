package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/kafka"
)

// publishOne adapts a function to the eventPublisher interface.
type publishOne func(ctx context.Context, event kafka.Event) error

func (f publishOne) Publish(ctx context.Context, event kafka.Event) error {
	return f(ctx, event)
}

// TestTrackForwardsToKafka verifies a tracked event is published keyed by
// its corpus.
func TestTrackForwardsToKafka(t *testing.T) {
	published := make(chan kafka.Event, 1)
	c := newCollector(publishOne(func(_ context.Context, event kafka.Event) error {
		published <- event
		return nil
	}), 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(ScoreEvent{Type: EventScore, Corpus: "reviews", Kind: KindDocument})

	select {
	case event := <-published:
		if event.Key != "reviews" {
			t.Errorf("event key = %q, want corpus name", event.Key)
		}
		if _, ok := event.Value.(ScoreEvent); !ok {
			t.Errorf("event value = %T, want ScoreEvent", event.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tracked event never published")
	}
}

// TestTrackDropsWhenFull verifies Track never blocks the caller, even with
// the forwarder stopped and the buffer full.
func TestTrackDropsWhenFull(t *testing.T) {
	c := newCollector(publishOne(nil), 1)

	c.Track(ScoreEvent{Corpus: "reviews"})
	c.Track(ScoreEvent{Corpus: "reviews"}) // must not block

	if got := len(c.events); got != 1 {
		t.Errorf("buffered events = %d, want 1 (second dropped)", got)
	}
}

// TestClosePublishesBuffered verifies Close does not return until every
// buffered event has been handed to the producer.
func TestClosePublishesBuffered(t *testing.T) {
	published := make(chan kafka.Event, 2)
	c := newCollector(publishOne(func(_ context.Context, event kafka.Event) error {
		published <- event
		return nil
	}), 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(ScoreEvent{Corpus: "reviews"})
	c.Track(AnalyzeEvent{Corpus: "reviews"})
	c.Close()

	if got := len(published); got != 2 {
		t.Errorf("published events = %d, want 2", got)
	}
}

// TestCancelDrainsBuffered verifies context cancellation drains the buffer
// instead of stranding events.
func TestCancelDrainsBuffered(t *testing.T) {
	published := make(chan kafka.Event, 1)
	c := newCollector(publishOne(func(_ context.Context, event kafka.Event) error {
		published <- event
		return nil
	}), 10)

	ctx, cancel := context.WithCancel(context.Background())
	c.Track(ScoreEvent{Corpus: "reviews"})
	c.Start(ctx)
	cancel()
	<-c.done

	if got := len(published); got != 1 {
		t.Errorf("published events = %d, want 1", got)
	}
}

func TestEventKey(t *testing.T) {
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{"score event", ScoreEvent{Corpus: "reviews"}, "reviews"},
		{"analyze event", AnalyzeEvent{Corpus: "papers"}, "papers"},
		{"score event without corpus", ScoreEvent{}, "analytics"},
		{"unknown type", "plain string", "analytics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventKey(tt.event); got != tt.want {
				t.Errorf("eventKey(%v) = %q, want %q", tt.event, got, tt.want)
			}
		})
	}
}
