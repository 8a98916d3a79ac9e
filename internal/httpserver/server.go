package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/catalog"
	"github.com/ILLUVRSE/resource-selector/internal/logging"
	"github.com/ILLUVRSE/resource-selector/internal/models"
	"github.com/ILLUVRSE/resource-selector/internal/service"
)

const maxBodyBytes = 1 << 20

const (
	kindInvalid    = "invalid_request"
	kindPolicy     = "policy_rejected"
	kindNoSuitable = "no_suitable_resource"
	kindNotFound   = "not_found"
	kindInternal   = "internal"
)

// Authorizer guards catalog writes. *auth.Verifier satisfies it.
type Authorizer interface {
	Middleware(next http.Handler) http.Handler
}

type Options struct {
	Auth     Authorizer
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	service  *service.Service
	auth     Authorizer
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func New(svc *service.Service, opts Options) *Server {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		service:  svc,
		auth:     opts.Auth,
		gatherer: gatherer,
		logger:   logging.OrNop(opts.Logger).Named("http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Post("/select", s.handleSelect)
	r.Post("/select/batch", s.handleSelectBatch)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Get("/{id}", s.handleGetModel)
		r.Post("/{id}/feedback", s.handleFeedback)
		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(s.auth.Middleware)
			}
			r.Put("/{id}", s.handleUpsertModel)
			r.Put("/{id}/status", s.handleSetStatus)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	respondJSON(w, http.StatusOK, s.service.Health(ctx))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req models.SelectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	resp, err := s.service.Select(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// batchRequest is the wrapped batch body, {"requests": [...]}. A bare array
// of selection requests is accepted as well.
type batchRequest struct {
	Requests []models.SelectionRequest `json:"requests"`
}

type batchResponse struct {
	Responses []models.SelectionResponse `json:"responses"`
	Total     int                        `json:"total"`
	Requested int                        `json:"requested"`
}

func (s *Server) handleSelectBatch(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	reqs, err := parseBatch(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	out := s.service.SelectBatch(r.Context(), reqs)
	respondJSON(w, http.StatusOK, batchResponse{
		Responses: out,
		Total:     len(out),
		Requested: len(reqs),
	})
}

func parseBatch(raw json.RawMessage) ([]models.SelectionRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []models.SelectionRequest
		if err := dec.Decode(&reqs); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return reqs, nil
	}
	var wrapped batchRequest
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return wrapped.Requests, nil
}

type modelList struct {
	Models []models.ResourceDescriptor `json:"models"`
	Total  int                         `json:"total"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListModels(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.ResourceDescriptor{}
	}
	respondJSON(w, http.StatusOK, modelList{Models: list, Total: len(list)})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.GetModel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type feedbackRequest struct {
	Rating      *float64               `json:"rating"`
	Performance map[string]interface{} `json:"performance"`
	Comments    string                 `json:"comments"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	if req.Rating == nil {
		respondError(w, http.StatusBadRequest, kindInvalid, "rating required")
		return
	}
	rec, err := s.service.RecordFeedback(r.Context(), service.FeedbackRequest{
		ResourceID:  chi.URLParam(r, "id"),
		Rating:      *req.Rating,
		Performance: req.Performance,
		Comments:    req.Comments,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"feedback": rec,
	})
}

func (s *Server) handleUpsertModel(w http.ResponseWriter, r *http.Request) {
	var d models.ResourceDescriptor
	if err := decodeJSON(w, r, &d); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	out, err := s.service.UpsertModel(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
		return
	}
	out, err := s.service.SetModelStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, catalog.ErrInvalidDescriptor):
		respondError(w, http.StatusBadRequest, kindInvalid, err.Error())
	case errors.Is(err, service.ErrPolicyRejected):
		respondError(w, http.StatusForbidden, kindPolicy, err.Error())
	case errors.Is(err, service.ErrNoSuitableResource):
		respondError(w, http.StatusUnprocessableEntity, kindNoSuitable, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		respondError(w, http.StatusNotFound, kindNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, kind, msg string) {
	respondJSON(w, status, map[string]string{"error": msg, "kind": kind})
}
