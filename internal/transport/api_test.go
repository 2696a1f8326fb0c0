package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zsiec/ctv/internal/certs"
	"github.com/zsiec/ctv/internal/library"
)

func newAPIServer(t *testing.T) (*Server, *library.Library) {
	t.Helper()
	cert, err := certs.Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	lib := library.New(nil)
	srv, err := NewServer(ServerConfig{Addr: ":4443", Cert: cert, Library: lib})
	if err != nil {
		t.Fatal(err)
	}
	return srv, lib
}

func TestAPIListStreams(t *testing.T) {
	t.Parallel()
	srv, lib := newAPIServer(t)
	h := srv.APIHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Fatalf("empty list body = %s, want []", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	lib.Add("clip", testBlob(t, 3))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))
	var list []StreamSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "clip" || list[0].FrameCount != 3 || list[0].Framerate != 25 {
		t.Fatalf("list = %+v", list)
	}
}

func TestAPIPutGetDelete(t *testing.T) {
	t.Parallel()
	srv, _ := newAPIServer(t)
	h := srv.APIHandler()
	blob := testBlob(t, 2)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/streams/up", bytes.NewReader(blob)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/streams/up", bytes.NewReader(blob)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate PUT status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/streams/bad", bytes.NewReader([]byte("nope"))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid PUT status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/up", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), blob) {
		t.Fatal("downloaded blob differs")
	}
	if rec.Header().Get("X-Ctv-Frame-Count") != "2" {
		t.Errorf("X-Ctv-Frame-Count = %q, want 2", rec.Header().Get("X-Ctv-Frame-Count"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/streams/up", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/up", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want 404", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/streams/up", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestAPIStatsAndCertHash(t *testing.T) {
	t.Parallel()
	srv, _ := newAPIServer(t)
	h := srv.APIHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/missing", nil))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var st ServerStats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.NotFound != 1 {
		t.Fatalf("notFound = %d, want 1", st.NotFound)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cert-hash", nil))
	var ch certHashResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ch); err != nil {
		t.Fatal(err)
	}
	if ch.Hash != srv.config.Cert.FingerprintHex() || ch.Addr != ":4443" {
		t.Fatalf("cert hash = %+v", ch)
	}
	if _, err := certs.ParseFingerprint(ch.Hash); err != nil {
		t.Fatalf("published hash does not parse: %v", err)
	}
}
