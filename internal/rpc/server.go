package rpc

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

// noiseFilter is an io.Writer that drops expected disconnect chatter.
// Many clients send one log.write frame and reset the connection without
// reading the reply; without the filter every such call would print a
// warning, and editor UIs surface daemon stderr to the user.
type noiseFilter struct {
	w io.Writer
}

func (f *noiseFilter) Write(p []byte) (int, error) {
	s := string(p)
	if strings.Contains(s, "connection reset by peer") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "use of closed network connection") ||
		(strings.Contains(s, "jsonrpc2: protocol error") && strings.Contains(s, "read unix")) {
		return len(p), nil
	}
	return f.w.Write(p)
}

// NewNoiseFilter wraps w so benign disconnect errors are swallowed.
func NewNoiseFilter(w io.Writer) io.Writer {
	return &noiseFilter{w: w}
}

// Server accepts framed JSON-RPC connections on a local endpoint and
// dispatches them through a Handler.
type Server struct {
	handler  *Handler
	sockPath string

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	shutdown bool
}

// NewServer builds a server bound to sockPath once started. On Windows
// sockPath is ignored and a loopback TCP listener is used instead.
func NewServer(handler *Handler, sockPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:  handler,
		sockPath: sockPath,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the endpoint and launches the accept loop. A stale socket
// file left by a crashed daemon is removed before binding.
func (s *Server) Start() error {
	var listener net.Listener
	var err error

	if runtime.GOOS == "windows" {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listening on loopback: %w", err)
		}
	} else {
		if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket: %w", err)
		}
		listener, err = net.Listen("unix", s.sockPath)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", s.sockPath, err)
		}
		if err := os.Chmod(s.sockPath, 0o600); err != nil {
			listener.Close()
			return fmt.Errorf("setting socket permissions: %w", err)
		}
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop cancels the accept loop, closes the listener, and waits for
// in-flight connections to finish. Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	if runtime.GOOS != "windows" {
		if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing socket: %w", err)
		}
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Printf("accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn runs one framed JSON-RPC connection to completion. The
// jsonrpc2 internal logger goes through the noise filter for the same
// reason stderr does.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	rpcConn := jsonrpc2.NewConn(
		s.ctx,
		stream,
		jsonrpc2.HandlerWithError(s.handler.Handle),
		jsonrpc2.SetLogger(log.New(NewNoiseFilter(os.Stderr), "", log.LstdFlags)),
	)

	select {
	case <-rpcConn.DisconnectNotify():
	case <-s.ctx.Done():
		rpcConn.Close()
	}
}
