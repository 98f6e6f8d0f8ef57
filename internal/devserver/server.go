// Package devserver serves an analysis engine over the same HTTP routes as the production
// analysis service, for offline use and integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Prefix is the route prefix of every endpoint.
const Prefix = "/api/v1"

const maxUploadBytes = 64 << 20

type detail struct {
	Detail string `json:"detail"`
}

// Options tunes the server.
type Options struct {
	Logger *slog.Logger
	// RateLimit in requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
}

// Server routes HTTP requests to a service.Service.
type Server struct {
	svc    service.Service
	logger *slog.Logger
	router chi.Router
}

// New builds the router around svc.
func New(svc service.Service, opt Options) *Server {
	s := &Server{svc: svc, logger: opt.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Route(Prefix, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/health", s.handleHealth)
		r.Group(func(r chi.Router) {
			if opt.RateLimit > 0 {
				burst := opt.Burst
				if burst <= 0 {
					burst = 1
				}
				r.Use(rateLimit(opt.RateLimit, burst, s.logger))
			}
			r.Post("/upload", s.handleUpload)
			r.Post("/analizar/cuantitativo", s.handleAnalysis)
			r.Post("/analizar/pareto", s.handlePareto)
		})
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once the listener is open.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Formulario de subida inválido")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Falta el campo 'file'")
		return
	}
	defer f.Close()
	meta, err := s.svc.Upload(r.Context(), hdr.Filename, f)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	render.JSON(w, r, meta)
}

// handleAnalysis answers 200 for every outcome the engine produced, including
// {"error": ...} bodies; only malformed requests get a 4xx.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req service.AnalysisRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, http.StatusUnprocessableEntity, "Cuerpo de solicitud inválido")
		return
	}
	if req.Filename == "" || req.ToolID == "" {
		s.fail(w, r, http.StatusUnprocessableEntity, "filename y tipo_analisis son obligatorios")
		return
	}
	raw, err := s.svc.RunAnalysis(r.Context(), req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	render.JSON(w, r, json.RawMessage(raw))
}

func (s *Server) handlePareto(w http.ResponseWriter, r *http.Request) {
	var req service.ParetoRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Filename == "" || req.Column == "" {
		s.fail(w, r, http.StatusUnprocessableEntity, "filename y columna son obligatorios")
		return
	}
	res, err := s.svc.RunPareto(r.Context(), req)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var bre *service.BadRequestError
	if errors.As(err, &bre) {
		s.fail(w, r, bre.StatusCode, bre.Message)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.ErrorContext(r.Context(), "engine failure", "path", r.URL.Path, "error", err, "request_id", reqID(r.Context()))
	s.fail(w, r, http.StatusInternalServerError, err.Error())
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, detail{Detail: msg})
}
