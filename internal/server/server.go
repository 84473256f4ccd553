// Package server hosts the upload/result HTTP API.
//
// Uploads are stored as pending jobs and processed by a small worker pool;
// clients poll /api/results/{id} until the job is done. Plain text can also be
// extracted synchronously through /api/extract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/pipeline"
	"github.com/hurttlocker/ownerscan/internal/provider"
	"github.com/hurttlocker/ownerscan/internal/store"
	"github.com/hurttlocker/ownerscan/internal/tabular"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

// Defaults for Config fields left zero.
const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultMaxUploadBytes = 32 << 20
	DefaultWorkers        = 2
	DefaultQueueSize      = 64
	DefaultJobTimeout     = 2 * time.Minute
)

// Config holds settings for the API server.
type Config struct {
	Engine    *extract.Engine
	Processor pipeline.Processor
	Store     store.Store
	Logger    *zap.Logger

	MaxUploadBytes int64
	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
	Retention      time.Duration
	UploadRate     float64 // uploads per second across all clients; 0 = unlimited
}

type jobRequest struct {
	id       string
	doc      textsource.Document
	provider string
}

// Server is the upload/result API.
type Server struct {
	cfg    Config
	log    *zap.Logger
	queue  chan jobRequest
	mux    *http.ServeMux
	limit  *rate.Limiter
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New validates cfg and builds a server. Call Start before serving uploads.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Processor == nil || cfg.Store == nil {
		return nil, errors.New("server: engine, processor and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = store.DefaultRetention
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		queue: make(chan jobRequest, cfg.QueueSize),
		mux:   http.NewServeMux(),
	}
	if cfg.UploadRate > 0 {
		burst := int(cfg.UploadRate * 2)
		if burst < 1 {
			burst = 1
		}
		s.limit = rate.NewLimiter(rate.Limit(cfg.UploadRate), burst)
	}

	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/results/{id}", s.handleResult)
	s.mux.HandleFunc("GET /api/results/{id}/csv", s.handleDownload)
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("GET /api/providers", s.handleProviders)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start launches the workers and the retention sweeper. They stop when ctx
// ends or Stop is called.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.wg.Add(1)
	go s.sweep(ctx)
}

// Stop cancels background work and waits for it to exit.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Start(ctx)
	defer s.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.process(ctx, req)
		}
	}
}

func (s *Server) process(ctx context.Context, req jobRequest) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	records, err := s.cfg.Processor.Process(jobCtx, req.doc, req.provider)
	fields := []zap.Field{
		zap.String("job", req.id),
		zap.String("file", req.doc.Name),
		zap.String("provider", req.provider),
		zap.Duration("elapsed", time.Since(start)),
	}

	// Persist the outcome even if the server is shutting down.
	storeCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.log.Warn("job failed", append(fields, zap.Error(err))...)
		if ferr := s.cfg.Store.FailJob(storeCtx, req.id, pipeline.UserMessage(err)); ferr != nil {
			s.log.Error("recording job failure", zap.String("job", req.id), zap.Error(ferr))
		}
		return
	}
	s.log.Info("job done", append(fields, zap.Int("records", len(records)))...)
	if cerr := s.cfg.Store.CompleteJob(storeCtx, req.id, records); cerr != nil {
		s.log.Error("recording job result", zap.String("job", req.id), zap.Error(cerr))
	}
}

func (s *Server) sweep(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.Retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.cfg.Store.PurgeOlderThan(ctx, time.Now().Add(-s.cfg.Retention))
			if err != nil {
				s.log.Warn("purging jobs", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("purged expired jobs", zap.Int64("count", n))
			}
		}
	}
}

// ownerJSON is the wire form of a record; fields are always present.
type ownerJSON struct {
	OwnerName string `json:"owner_name"`
	Phone     string `json:"phone"`
}

type jobJSON struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Owners []ownerJSON `json:"owners,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func toOwners(records []extract.Record) []ownerJSON {
	out := make([]ownerJSON, 0, len(records))
	for _, r := range records {
		out = append(out, ownerJSON{OwnerName: r.Name, Phone: r.Phone})
	}
	return out
}

func jobPayload(job *store.Job) jobJSON {
	p := jobJSON{ID: job.ID, Status: string(job.Status), Error: job.Error}
	if job.Status == store.JobDone {
		p.Owners = toOwners(job.Records)
	}
	return p
}

// resolveProvider maps a blank id to the default provider. Any other id must
// match a registered provider exactly.
func (s *Server) resolveProvider(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		def, ok := s.cfg.Engine.Registry().Default()
		if !ok {
			return "", &provider.UnknownProviderError{ID: id}
		}
		return def.ID, nil
	}
	if _, err := s.cfg.Engine.Registry().Lookup(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limit != nil && !s.limit.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many uploads, retry later")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	providerID, err := s.resolveProvider(r.FormValue("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := strings.TrimSpace(r.FormValue("filename"))
	if name == "" {
		name = hdr.Filename
	}
	req := jobRequest{
		doc:      textsource.Document{Name: name, Data: data},
		provider: providerID,
	}

	job := &store.Job{Filename: name, Provider: providerID}
	if err := s.cfg.Store.CreateJob(r.Context(), job); err != nil {
		s.log.Error("creating job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}
	req.id = job.ID

	if r.URL.Query().Get("wait") == "true" {
		s.process(r.Context(), req)
		s.writeJob(w, r, job.ID)
		return
	}

	select {
	case s.queue <- req:
	default:
		_ = s.cfg.Store.FailJob(context.WithoutCancel(r.Context()), job.ID, "queue full")
		writeError(w, http.StatusServiceUnavailable, "server busy, retry later")
		return
	}
	s.log.Debug("job queued", zap.String("job", job.ID), zap.String("file", name), zap.String("provider", providerID))
	writeJSON(w, http.StatusAccepted, jobPayload(job))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	s.writeJob(w, r, r.PathValue("id"))
}

func (s *Server) writeJob(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := s.loadJob(w, r, id)
	if !ok {
		return
	}
	if job.Status == store.JobPending {
		writeJSON(w, http.StatusAccepted, jobPayload(job))
		return
	}
	writeJSON(w, http.StatusOK, jobPayload(job))
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request, id string) (*store.Job, bool) {
	job, err := s.cfg.Store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("loading job", zap.String("job", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return nil, false
	}
	return job, true
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	switch job.Status {
	case store.JobPending:
		writeJSON(w, http.StatusAccepted, jobPayload(job))
		return
	case store.JobFailed:
		writeError(w, http.StatusConflict, job.Error)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		setAttachment(w, tabular.CSVContentType, tabular.DownloadName(job.Filename, ".csv"))
		if err := tabular.WriteCSV(w, job.Records); err != nil {
			s.log.Warn("writing csv", zap.String("job", job.ID), zap.Error(err))
		}
	case "xlsx":
		data, err := tabular.FormatXLSX(job.Records)
		if err != nil {
			s.log.Error("rendering xlsx", zap.String("job", job.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not render spreadsheet")
			return
		}
		setAttachment(w, tabular.XLSXContentType, tabular.DownloadName(job.Filename, ".xlsx"))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (want csv or xlsx)", format))
	}
}

type extractRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

type extractResponse struct {
	Provider string        `json:"provider"`
	Owners   []ownerJSON   `json:"owners"`
	Stats    extract.Stats `json:"stats"`
	Message  string        `json:"message,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	providerID, err := s.resolveProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cfg.Engine.ExtractDetailed(textsource.Normalize(req.Text), providerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, provider.ErrUnknownProvider) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	resp := extractResponse{Provider: res.Provider, Owners: toOwners(res.Records), Stats: res.Stats}
	if err := extract.RequireRecords(res.Records); err != nil {
		resp.Message = pipeline.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

type providerJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	reg := s.cfg.Engine.Registry()
	out := struct {
		Default   string         `json:"default"`
		Providers []providerJSON `json:"providers"`
	}{Providers: []providerJSON{}}
	if def, ok := reg.Default(); ok {
		out.Default = def.ID
	}
	for _, p := range reg.All() {
		out.Providers = append(out.Providers, providerJSON{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"schema_version": stats.SchemaVersion,
		"jobs_pending":   stats.Pending,
		"jobs_done":      stats.Done,
		"jobs_failed":    stats.Failed,
	})
}

func setAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}
