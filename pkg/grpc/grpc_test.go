package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type echoMessage struct {
	Text string `json:"text"`
}

// startServer runs a server on a random port with Echo.Say and Echo.Fail
// registered, and returns its address.
func startServer(t *testing.T) string {
	t.Helper()
	s := NewServer()
	s.Register("Echo.Say", func(ctx context.Context, req json.RawMessage) (any, error) {
		var in echoMessage
		if err := json.Unmarshal(req, &in); err != nil {
			return nil, err
		}
		return echoMessage{Text: in.Text}, nil
	})
	s.Register("Echo.Fail", func(ctx context.Context, req json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	go s.Serve("127.0.0.1:0")
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(s.Stop)
	return s.Addr()
}

func TestCallRoundTrip(t *testing.T) {
	addr := startServer(t)

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var resp echoMessage
	if err := client.Call("Echo.Say", echoMessage{Text: "hello"}, &resp); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello")
	}
}

func TestCallHandlerError(t *testing.T) {
	addr := startServer(t)

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	err = client.Call("Echo.Fail", echoMessage{}, nil)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Call error = %v, want handler error", err)
	}
}

func TestCallUnknownMethod(t *testing.T) {
	addr := startServer(t)

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	err = client.Call("Echo.Missing", echoMessage{}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Errorf("Call error = %v, want unknown method error", err)
	}
}

// TestConcurrentCalls exercises one client from many goroutines; Call
// serialises over the shared connection.
func TestConcurrentCalls(t *testing.T) {
	addr := startServer(t)

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			want := fmt.Sprintf("msg-%d", n)
			var resp echoMessage
			if err := client.Call("Echo.Say", echoMessage{Text: want}, &resp); err != nil {
				errs <- err
				return
			}
			if resp.Text != want {
				errs <- fmt.Errorf("Text = %q, want %q", resp.Text, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
