package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Elizabethomito/tutormarket/internal/models"
)

// ReportUser handles POST /api/reports
//
// Reports are throttled per reporter. Over the limit the response is 429
// with a Retry-After header in seconds.
func (s *Server) ReportUser(w http.ResponseWriter, r *http.Request) {
	var req models.ReportUserRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.Market.ReportUser(r.Context(), caller(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, report)
}

// ---- Admin ----
//
// Every admin mutation writes its audit row in the same transaction as
// the change itself; see market/moderation.go.

// ListReports handles GET /api/admin/reports?status=pending|resolved|dismissed
func (s *Server) ListReports(w http.ResponseWriter, r *http.Request) {
	status := models.ReportStatus(r.URL.Query().Get("status"))
	reports, err := s.Market.ListReports(r.Context(), caller(r), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, reports)
}

type resolveRequest struct {
	Resolution models.ReportStatus `json:"resolution"`
}

// ResolveReport handles POST /api/admin/reports/{id}/resolve
func (s *Server) ResolveReport(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.Market.ResolveReport(r.Context(), caller(r), models.ResolveReportRequest{
		ReportID:   chi.URLParam(r, "id"),
		Resolution: body.Resolution,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type banRequest struct {
	Banned bool   `json:"banned"`
	Reason string `json:"reason"`
}

// BanUser handles POST /api/admin/users/{id}/ban  {"banned": true, "reason": "..."}
func (s *Server) BanUser(w http.ResponseWriter, r *http.Request) {
	var body banRequest
	if err := decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.Market.BanUser(r.Context(), caller(r), models.BanUserRequest{
		UserID: chi.URLParam(r, "id"),
		Banned: body.Banned,
		Reason: body.Reason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

type flagRequest struct {
	Value bool `json:"value"`
}

// SetVerification handles POST /api/admin/users/{id}/verify  {"value": true}
func (s *Server) SetVerification(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, s.Market.SetVerification)
}

// SetAdmin handles POST /api/admin/users/{id}/admin  {"value": true}
func (s *Server) SetAdmin(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, s.Market.SetAdmin)
}

type flagFunc func(context.Context, models.Identity, models.SetFlagRequest) (*models.User, error)

func (s *Server) setFlag(w http.ResponseWriter, r *http.Request, apply flagFunc) {
	var body flagRequest
	if err := decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := apply(r.Context(), caller(r), models.SetFlagRequest{
		UserID: chi.URLParam(r, "id"),
		Value:  body.Value,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, user)
}

// ListUsers handles GET /api/admin/users?search=&role=&banned=
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, err := s.Market.ListUsers(r.Context(), caller(r), models.UserFilter{
		Search: q.Get("search"),
		Role:   models.UserRole(q.Get("role")),
		Banned: queryBool(r, "banned"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, users)
}

// ListAuditLogs handles GET /api/admin/audit-logs?action=&target_id=
func (s *Server) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := s.Market.ListAuditLogs(r.Context(), caller(r), models.AuditFilter{
		Action:   q.Get("action"),
		TargetID: q.Get("target_id"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, logs)
}

// BackfillDenormalized handles POST /api/admin/backfill
//
// Maintenance: re-copies the denormalized snapshots (offer student ids,
// ticket course codes) from their source rows.
func (s *Server) BackfillDenormalized(w http.ResponseWriter, r *http.Request) {
	res, err := s.Market.BackfillDenormalized(r.Context(), caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}
