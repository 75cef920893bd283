package tcpnet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Handler processes one decoded request. state belongs to the requesting
// connection and carries its authentication.
type Handler interface {
	Serve(ctx context.Context, state *ConnState, req any) (any, error)
}

// ConnState is the server-side authentication state of one connection.
type ConnState struct {
	mu      sync.Mutex
	session string
}

func (s *ConnState) Bind(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sessionID
}

func (s *ConnState) Session() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session != ""
}

// Server accepts framed TCP connections and feeds every request through the
// handler, one connection per goroutine. It satisfies contract.Worker, so a
// supervisor owns its lifetime.
type Server struct {
	log     *slog.Logger
	addr    string
	handler Handler

	mu sync.Mutex
	ln net.Listener
}

func NewServer(log *slog.Logger, addr string, handler Handler) *Server {
	return &Server{log: log, addr: addr, handler: handler}
}

// Listen binds the address. It is separate from Run so callers can learn
// the effective port of a ":0" bind before the accept loop starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("Listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serve(ctx, nc)
		}()
	}
}

func (s *Server) serve(ctx context.Context, nc net.Conn) {
	defer nc.Close()

	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Now()) })
	defer stop()

	state := &ConnState{}
	for {
		req, err := ReadMessage(nc)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				s.log.Debug("Connection dropped", "remote", nc.RemoteAddr().String(), "error", err)
			}
			return
		}

		resp, err := s.handler.Serve(ctx, state, req)
		if err != nil {
			s.log.Debug("Request failed", "remote", nc.RemoteAddr().String(), "error", err)
			resp = ErrorFrom(err)
		}
		if err := WriteMessage(nc, resp); err != nil {
			s.log.Debug("Response write failed", "remote", nc.RemoteAddr().String(), "error", err)
			return
		}
	}
}
