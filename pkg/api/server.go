package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FTHTrading/boutique-sub000/pkg/anchor"
	"github.com/FTHTrading/boutique-sub000/pkg/audit"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// Registry is the subject registration and lookup surface. New subjects
// enter the gate here, unscreened.
type Registry interface {
	Put(ctx context.Context, subject *gate.Subject) error
	Get(ctx context.Context, ref gate.SubjectRef) (*gate.Subject, error)
}

// Server routes HTTP requests to the gate engine and anchor service.
type Server struct {
	engine   *gate.Engine
	registry Registry
	anchors  *anchor.Service
	trail    audit.Reader
	logger   *slog.Logger
}

// NewServer wires the handlers.
func NewServer(engine *gate.Engine, registry Registry, anchors *anchor.Service, trail audit.Reader) *Server {
	return &Server{
		engine:   engine,
		registry: registry,
		anchors:  anchors,
		trail:    trail,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the request mux. Authentication and rate limiting wrap
// the returned handler at server startup.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/v1/subjects", s.handleRegister)
	mux.HandleFunc("GET /api/v1/subjects/{kind}/{id}", s.handleGetSubject)
	mux.HandleFunc("POST /api/v1/subjects/{kind}/{id}/screen", s.handleScreen)
	mux.HandleFunc("GET /api/v1/subjects/{kind}/{id}/findings", s.handleFindings)
	mux.HandleFunc("GET /api/v1/subjects/{kind}/{id}/clearance", s.handleClearance)
	mux.HandleFunc("POST /api/v1/subjects/{kind}/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/v1/subjects/{kind}/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /api/v1/subjects/{kind}/{id}/audit", s.handleAuditTrail)
	mux.HandleFunc("POST /api/v1/findings/{id}/resolve", s.handleResolveFinding)
	mux.HandleFunc("POST /api/v1/anchors", s.handleAnchor)
	mux.HandleFunc("GET /api/v1/anchors/{id}", s.handleGetAnchor)
	mux.HandleFunc("POST /api/v1/anchors/{id}/refresh", s.handleRefreshAnchor)

	return mux
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gate.ErrValidation):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, gate.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, gate.ErrPrecondition):
		WriteConflict(w, err.Error())
	case errors.Is(err, gate.ErrExternalService):
		WriteError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func subjectRef(r *http.Request) gate.SubjectRef {
	return gate.SubjectRef{
		Kind: gate.Kind(r.PathValue("kind")),
		ID:   r.PathValue("id"),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var subject gate.Subject
	if err := json.NewDecoder(r.Body).Decode(&subject); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.Put(r.Context(), &subject); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, subject)
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := s.registry.Get(r.Context(), subjectRef(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

type screenResponse struct {
	Status   gate.Status `json:"status"`
	Findings interface{} `json:"findings"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	ref := subjectRef(r)
	findings, err := s.engine.Screen(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	subject, err := s.registry.Get(r.Context(), ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, screenResponse{Status: subject.Status, Findings: findings})
}

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := s.engine.Findings(r.Context(), subjectRef(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (s *Server) handleClearance(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.engine.Clearance(r.Context(), subjectRef(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

type decisionRequest struct {
	Notes  string `json:"notes,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, err := Actor(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req decisionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.engine.Approve(r.Context(), subjectRef(r), actor, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(gate.StatusApproved)})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, err := Actor(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req decisionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.engine.Reject(r.Context(), subjectRef(r), actor, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(gate.StatusRejected)})
}

func (s *Server) handleResolveFinding(w http.ResponseWriter, r *http.Request) {
	actor, err := Actor(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req decisionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.engine.ResolveFinding(r.Context(), r.PathValue("id"), actor, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ref := subjectRef(r)
	if err := ref.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := s.trail.BySubject(r.Context(), ref.String())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type anchorRequest struct {
	ObjectType string          `json:"object_type"`
	ObjectID   string          `json:"object_id"`
	Object     json.RawMessage `json:"object"`
	Chains     []string        `json:"chains"`
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req anchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	var object interface{}
	if len(req.Object) > 0 {
		if err := json.Unmarshal(req.Object, &object); err != nil {
			WriteBadRequest(w, "Invalid object payload")
			return
		}
	}

	a, err := s.anchors.Anchor(r.Context(), req.ObjectType, req.ObjectID, object, req.Chains)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAnchor(w http.ResponseWriter, r *http.Request) {
	a, err := s.anchors.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRefreshAnchor(w http.ResponseWriter, r *http.Request) {
	a, err := s.anchors.Refresh(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
