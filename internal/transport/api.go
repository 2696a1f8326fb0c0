package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// maxUploadSize caps a PUT body.
const maxUploadSize = 256 << 20

// StreamSummary is the JSON form of a library entry.
type StreamSummary struct {
	Name       string    `json:"name"`
	Framerate  uint32    `json:"framerate"`
	FrameCount uint32    `json:"frameCount"`
	Size       int       `json:"size"`
	RawSize    int       `json:"rawSize"`
	AddedAt    time.Time `json:"addedAt"`
}

type certHashResponse struct {
	Hash string `json:"hash"`
	Addr string `json:"addr"`
}

// APIHandler returns an http.Handler for the HTTPS API: stream listing,
// download and upload, server counters and the certificate fingerprint
// clients need for Dial.
func (s *Server) APIHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/streams/{name}", s.handleGetStream)
	mux.HandleFunc("PUT /api/streams/{name}", s.handlePutStream)
	mux.HandleFunc("DELETE /api/streams/{name}", s.handleDeleteStream)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/cert-hash", s.handleCertHash)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeHTTPError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	resp := make([]StreamSummary, 0)
	for _, e := range s.config.Library.List() {
		resp = append(resp, StreamSummary{
			Name:       e.Key,
			Framerate:  e.Framerate,
			FrameCount: e.FrameCount,
			Size:       len(e.Blob()),
			RawSize:    e.RawSize,
			AddedAt:    e.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	e, ok := s.config.Library.Get(name)
	if !ok {
		s.notFound.Add(1)
		writeHTTPError(w, http.StatusNotFound, "stream not found")
		return
	}
	blob := e.Blob()
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.Header().Set("X-Ctv-Framerate", strconv.FormatUint(uint64(e.Framerate), 10))
	w.Header().Set("X-Ctv-Frame-Count", strconv.FormatUint(uint64(e.FrameCount), 10))
	n, err := w.Write(blob)
	s.bytesSent.Add(int64(n))
	if err != nil {
		s.log.Debug("api download interrupted", "name", name, "error", err)
	}
}

func (s *Server) handlePutStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeHTTPError(w, http.StatusRequestEntityTooLarge, "stream too large")
			return
		}
		writeHTTPError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	e, ok, err := s.config.Library.Add(name, blob)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeHTTPError(w, http.StatusConflict, "stream already exists")
		return
	}
	writeJSON(w, http.StatusCreated, StreamSummary{
		Name:       e.Key,
		Framerate:  e.Framerate,
		FrameCount: e.FrameCount,
		Size:       len(blob),
		RawSize:    e.RawSize,
		AddedAt:    e.AddedAt,
	})
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.config.Library.Get(name); !ok {
		writeHTTPError(w, http.StatusNotFound, "stream not found")
		return
	}
	s.config.Library.Remove(name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Stats())
}

func (s *Server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	addr := s.config.Addr
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	writeJSON(w, http.StatusOK, certHashResponse{
		Hash: s.config.Cert.FingerprintHex(),
		Addr: addr,
	})
}
