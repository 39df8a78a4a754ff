// Package server runs the TCP front-end: it accepts connections one at
// a time, reads a single request per connection, dispatches it to the
// engine, and writes back a single response.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/aiifabbf/kvs/internal/engine"
	"github.com/aiifabbf/kvs/internal/format"
)

// Server owns a listener and the engine it serves. One engine instance
// lives for the server's whole lifetime, and requests are processed
// strictly in accept order.
type Server struct {
	engine engine.Engine
	ln     net.Listener
}

// Bind opens a TCP listener on address and wires it to eng.
func Bind(address string, eng engine.Engine) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", address, err)
	}
	slog.Info("server: listening", "address", ln.Addr().String())
	return &Server{engine: eng, ln: ln}, nil
}

// Addr returns the bound address, useful when binding to port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run accepts connections until the listener is closed. Per-connection
// failures are logged and the loop keeps going; only a dead listener
// stops it.
func (s *Server) Run() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return fmt.Errorf("accept failed: %w", err)
		}
		if err := s.serve(conn); err != nil {
			slog.Error("server: connection failed",
				"remote", conn.RemoteAddr().String(),
				"error", err)
		}
	}
}

// Close shuts the listener down, which makes Run return.
func (s *Server) Close() error {
	return s.ln.Close()
}

// serve handles one connection: read the request until the client's
// half-close, dispatch, answer, close. A response is produced for every
// decodable request, Failed if the engine errs; transport and decode
// failures just drop the connection.
func (s *Server) serve(conn net.Conn) error {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	req, err := format.DecodeRequest(data)
	if err != nil {
		return err
	}

	resp := s.dispatch(req)
	payload, err := format.EncodeResponse(resp)
	if err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// dispatch runs one request against the engine and folds any engine
// error into a Failed response carrying its message.
func (s *Server) dispatch(req format.Request) format.Response {
	switch req.Kind {
	case format.ReqGet:
		value, ok, err := s.engine.Get(req.Key)
		if err != nil {
			return format.Response{Reason: err.Error()}
		}
		if !ok {
			return format.Response{Done: true}
		}
		return format.Response{Done: true, Value: &value}
	case format.ReqSet:
		if err := s.engine.Set(req.Key, req.Value); err != nil {
			return format.Response{Reason: err.Error()}
		}
		return format.Response{Done: true}
	case format.ReqRemove:
		if err := s.engine.Remove(req.Key); err != nil {
			return format.Response{Reason: err.Error()}
		}
		return format.Response{Done: true}
	default:
		return format.Response{Reason: fmt.Sprintf("unknown request kind %d", req.Kind)}
	}
}
