package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/zsiec/ctv/internal/certs"
	"github.com/zsiec/ctv/internal/library"
)

// QUIC application and stream error codes.
const (
	connCodeShutdown  quic.ApplicationErrorCode = 0x0
	streamCodeBadMsg  quic.StreamErrorCode      = 0x1
	streamCodeTooBig  quic.StreamErrorCode      = 0x2
	streamCodeTimeout quic.StreamErrorCode      = 0x3
)

// requestTimeout bounds how long a client may take to send its request.
const requestTimeout = 10 * time.Second

// ServerConfig holds the dependencies for a Server.
type ServerConfig struct {
	Addr    string
	Cert    *certs.CertInfo
	Library *library.Library
	Log     *slog.Logger
}

// ServerStats counts requests served since start.
type ServerStats struct {
	Connections int64 `json:"connections"`
	Fetches     int64 `json:"fetches"`
	Lists       int64 `json:"lists"`
	NotFound    int64 `json:"notFound"`
	BytesSent   int64 `json:"bytesSent"`
}

// Server answers FETCH and LIST requests from the library.
type Server struct {
	config ServerConfig
	log    *slog.Logger

	mu sync.Mutex
	ln *quic.Listener

	connections atomic.Int64
	fetches     atomic.Int64
	lists       atomic.Int64
	notFound    atomic.Int64
	bytesSent   atomic.Int64
}

// NewServer validates config and returns a server that is not yet listening.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Cert == nil {
		return nil, errors.New("transport: certificate is required")
	}
	if config.Library == nil {
		return nil, errors.New("transport: library is required")
	}
	log := config.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		config: config,
		log:    log.With("component", "transport"),
	}, nil
}

// Listen binds the UDP socket. It is called by Start; tests call it
// directly to learn the bound address before serving.
func (s *Server) Listen() error {
	ln, err := quic.ListenAddr(s.config.Addr, s.config.Cert.ServerConfig(ALPN), &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info("QUIC server listening", "addr", ln.Addr(), "fingerprint", s.config.Cert.FingerprintHex())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight connections to finish. It returns nil on cancellation.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transport: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Connections: s.connections.Load(),
		Fetches:     s.fetches.Load(),
		Lists:       s.lists.Load(),
		NotFound:    s.notFound.Load(),
		BytesSent:   s.bytesSent.Load(),
	}
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	s.connections.Add(1)
	log := s.log.With("session", uuid.NewString(), "remote", conn.RemoteAddr())
	log.Info("client connected")
	defer log.Info("client disconnected")

	// Cancelling the server context also ends AcceptStream.
	stop := context.AfterFunc(ctx, func() {
		conn.CloseWithError(connCodeShutdown, "server shutting down")
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		str, err := conn.AcceptStream(conn.Context())
		if err != nil {
			log.Debug("accept stream ended", "error", err)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleStream(log, str)
		}()
	}
}

func (s *Server) handleStream(log *slog.Logger, str quic.Stream) {
	defer str.Close()

	str.SetReadDeadline(time.Now().Add(requestTimeout))
	msgType, payload, err := ReadMsg(bufio.NewReader(str))
	if err != nil {
		log.Warn("failed to read request", "error", err)
		str.CancelWrite(streamCodeTimeout)
		return
	}

	switch msgType {
	case MsgFetch:
		req, err := ParseFetch(payload)
		if err != nil {
			log.Warn("malformed fetch", "error", err)
			s.writeError(log, str, CodeBadRequest, "malformed fetch")
			return
		}
		s.serveFetch(log, str, req)
	case MsgList:
		s.serveList(log, str)
	default:
		log.Warn("unexpected message type", "type", msgType)
		s.writeError(log, str, CodeBadRequest, fmt.Sprintf("unexpected message type %#x", msgType))
	}
}

func (s *Server) serveFetch(log *slog.Logger, str quic.Stream, req Fetch) {
	s.fetches.Add(1)
	entry, ok := s.config.Library.Get(req.Name)
	if !ok {
		s.notFound.Add(1)
		log.Warn("fetch for unknown stream", "name", req.Name)
		s.writeError(log, str, CodeNotFound, "stream not found")
		return
	}

	blob := entry.Blob()
	info := SerializeStreamInfo(StreamInfo{
		Framerate:  entry.Framerate,
		FrameCount: entry.FrameCount,
		Size:       uint64(len(blob)),
	})
	if err := WriteMsg(str, MsgStreamInfo, info); err != nil {
		log.Warn("failed to write stream info", "name", req.Name, "error", err)
		return
	}
	n, err := str.Write(blob)
	s.bytesSent.Add(int64(n))
	if err != nil {
		log.Warn("failed to write stream", "name", req.Name, "error", err)
		return
	}
	log.Info("stream sent", "name", req.Name, "bytes", n, "frames", entry.FrameCount)
}

func (s *Server) serveList(log *slog.Logger, str quic.Stream) {
	s.lists.Add(1)
	var entries []ListEntry
	for _, e := range s.config.Library.List() {
		entries = append(entries, ListEntry{
			Name:       e.Key,
			Framerate:  e.Framerate,
			FrameCount: e.FrameCount,
			Size:       uint64(len(e.Blob())),
		})
	}
	if err := WriteMsg(str, MsgListOK, SerializeListOK(entries)); err != nil {
		log.Warn("failed to write list", "entries", len(entries), "error", err)
		if errors.Is(err, ErrPayloadTooLarge) {
			str.CancelWrite(streamCodeTooBig)
		}
	}
}

func (s *Server) writeError(log *slog.Logger, str quic.Stream, code uint64, reason string) {
	if err := WriteMsg(str, MsgFetchError, SerializeFetchError(FetchError{Code: code, Reason: reason})); err != nil {
		log.Debug("failed to write error", "error", err)
		str.CancelWrite(streamCodeBadMsg)
	}
}
