package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hurttlocker/ownerscan/internal/textsource"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:      srv.URL,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		PollInterval: time.Millisecond,
	}, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(Config{BaseURL: raw}, nil, nil); err == nil {
			t.Fatalf("NewClient(%q) expected error", raw)
		}
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "Proprietário: Ana" {
			t.Errorf("file body = %q", data)
		}
		if hdr.Filename != "lista.txt" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		if got := r.FormValue("filename"); got != "lista.txt" {
			t.Errorf("filename field = %q", got)
		}
		if got := r.FormValue("provider"); got != "guarida" {
			t.Errorf("provider field = %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(JobResponse{ID: "job-1", Status: StatusPending})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	job, err := c.Upload(context.Background(), textsource.Document{Name: "lista.txt", Data: []byte("Proprietário: Ana")}, "guarida")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if job.ID != "job-1" || job.Status != StatusPending {
		t.Fatalf("job = %+v", job)
	}
}

func TestResultStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/results/done":
			_, _ = io.WriteString(w, `{"id":"done","status":"done","owners":[{"owner_name":" João Silva ","phone":"(51) 99999-1111"},{"owner_name":"Maria"}]}`)
		case "/api/results/pending":
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"id":"pending","status":"pending"}`)
		case "/api/results/failed":
			_, _ = io.WriteString(w, `{"id":"failed","status":"failed","error":"unreadable pdf"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	recs, err := c.Result(ctx, "done")
	if err != nil {
		t.Fatalf("Result(done): %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Name != "João Silva" || recs[0].Phone != "(51) 99999-1111" {
		t.Fatalf("record 0 = %+v", recs[0])
	}
	if recs[1].Name != "Maria" || recs[1].Phone != "" {
		t.Fatalf("record 1 = %+v, want absent phone as empty", recs[1])
	}

	if _, err := c.Result(ctx, "pending"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Result(pending) err = %v, want ErrNotReady", err)
	}
	if _, err := c.Result(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Result(missing) err = %v, want ErrJobNotFound", err)
	}
	var apiErr *APIError
	if _, err := c.Result(ctx, "failed"); !errors.As(err, &apiErr) || apiErr.Message != "unreadable pdf" {
		t.Fatalf("Result(failed) err = %v, want APIError", err)
	}
}

func TestServerErrorsAreRetriedThenReported(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Result(context.Background(), "x")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Status != http.StatusBadGateway {
		t.Fatalf("err = %#v, want TransportError with status 502", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestTransientFailureRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":"a","status":"done","owners":[{"owner_name":"Ana","phone":""}]}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	recs, err := c.Result(context.Background(), "a")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Ana" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"provider \"x\" not found"}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Upload(context.Background(), textsource.Document{Name: "a.txt", Data: []byte("x")}, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("err = %v, want APIError 400", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Fatal("4xx must not be a transport error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestExtractPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/upload":
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"id":"j","status":"pending"}`)
		case "/api/results/j":
			if polls.Add(1) < 3 {
				w.WriteHeader(http.StatusAccepted)
				_, _ = io.WriteString(w, `{"id":"j","status":"pending"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"j","status":"done","owners":[{"owner_name":"Carlos Souza","phone":"51 3333-4444"}]}`)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	recs, err := c.Extract(context.Background(), textsource.Document{Name: "a.pdf", Data: []byte("%PDF-1.4")}, "cyrela")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "Carlos Souza" {
		t.Fatalf("records = %+v", recs)
	}
	if polls.Load() != 3 {
		t.Fatalf("polls = %d, want 3", polls.Load())
	}
}

func TestExtractImmediateResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			t.Errorf("unexpected poll to %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"status":"done","owners":[{"owner_name":"Ana"}]}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	recs, err := c.Extract(context.Background(), textsource.Document{Name: "a.txt", Data: []byte("x")}, "guarida")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 1 || recs[0].Phone != "" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Wait(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
}
