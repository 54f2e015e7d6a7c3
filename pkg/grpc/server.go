// Package grpc implements the platform's internal RPC layer: newline-
// delimited JSON over persistent TCP connections, with "Service.Method"
// dispatch on the server side and a serialising client.
//
// The wire format is one Request object per line from the client and one
// Response object per line back, matched by ID:
//
//	→ {"method":"AnalyticsService.Stats","id":"1","params":{}}
//	← {"id":"1","data":{...}}
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// HandlerFunc processes one RPC request. The context is cancelled when the
// server stops, so slow handlers can bail out during shutdown.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the client-to-server wire format.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the server-to-client wire format. Exactly one of Data and
// Error is set.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Server dispatches RPC requests to registered handlers.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	listener net.Listener
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
	}
}

// Register binds a "Service.Method" name to a handler.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// Serve accepts connections on addr until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn answers requests off one connection, in order, until the peer
// goes away.
func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	logger := s.logger.With("remote", conn.RemoteAddr().String())
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(s.dispatch(req)); err != nil {
			logger.Error("reply write failed", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	resp := Response{ID: req.ID}
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		return resp
	}
	data, err := handler(s.ctx, req.Params)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	payload, err := json.Marshal(data)
	if err != nil {
		resp.Error = fmt.Sprintf("encoding reply: %v", err)
		return resp
	}
	resp.Data = payload
	return resp
}

// MethodCount reports how many methods are registered.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Addr returns the bound address, or "" before Serve has started
// listening. Useful when serving on ":0".
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop cancels in-flight handlers, closes the listener, and waits for
// connection goroutines to drain.
func (s *Server) Stop() {
	s.cancel()
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
