package handlers

// SeedDemo handles POST /api/admin/seed
//
// This endpoint is ONLY for local demos and is mounted only when
// server.seed_enabled is set. It loads the demo catalog, signs in two
// demo users and puts the marketplace in a known state so the demo can
// start without external scripts.
//
// The endpoint is idempotent — calling it twice is safe: catalog rows use
// pre-determined ids with INSERT OR IGNORE, identity sync is idempotent,
// and the demo ticket is only posted when the student has none.
//
// DEMO SCENARIO
// ─────────────────────────────────────────────────────────────────────────
// Student : "Amara Osei"     (subject demo-amara)
//             → has one open CS101 ticket, "Stuck on recursion", budget 5000
// Tutor   : "Baraka Mwangi"  (subject demo-baraka)
//             → tutors CS101 at advanced level, online, accepting requests
//
// The response carries a signed identity token for each demo user so the
// web client can act as them. From there the demo walks the main flow:
// Baraka offers, Amara accepts, the two chat, Amara completes the ticket
// and both leave a review.

import (
	"errors"
	"net/http"
	"time"

	"github.com/Elizabethomito/tutormarket/internal/apperr"
	"github.com/Elizabethomito/tutormarket/internal/auth"
	"github.com/Elizabethomito/tutormarket/internal/market"
	"github.com/Elizabethomito/tutormarket/internal/models"
)

const demoTokenTTL = 24 * time.Hour

var (
	demoStudent = models.Identity{Subject: "demo-amara", Name: "Amara Osei", Email: "amara@student.test"}
	demoTutor   = models.Identity{Subject: "demo-baraka", Name: "Baraka Mwangi", Email: "baraka@student.test"}
)

type seedResponse struct {
	Catalog market.SeedResult `json:"catalog"`
	Tokens  map[string]string `json:"tokens"`
	Message string            `json:"message"`
}

func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	catalog, err := s.Market.SeedCatalog(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	for _, id := range []models.Identity{demoStudent, demoTutor} {
		if _, err := s.Market.SyncIdentity(ctx, id); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	role := models.RoleTutor
	if _, err := s.Market.UpdateProfile(ctx, demoTutor, models.UpdateProfileRequest{Role: &role}); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.Market.UpsertTutorProfile(ctx, demoTutor, models.UpsertTutorProfileRequest{
		Bio:        "Final-year CS student. Happy to walk you through it.",
		HourlyRate: 2500,
		Subjects:   []string{"recursion", "data structures"},
	}); err != nil {
		s.fail(w, r, err)
		return
	}
	_, err = s.Market.AddTutorOffering(ctx, demoTutor, models.AddTutorOfferingRequest{
		CourseID: market.SeedCourseCS101ID,
		Level:    models.LevelAdvanced,
	})
	// Already offered on an earlier run.
	if err != nil && !errors.Is(err, apperr.ErrInvalid) {
		s.fail(w, r, err)
		return
	}
	if _, err := s.Market.SetPresence(ctx, demoTutor, models.SetPresenceRequest{Status: models.PresenceOnline}); err != nil {
		s.fail(w, r, err)
		return
	}

	mine, err := s.Market.ListMyTickets(ctx, demoStudent)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(mine) == 0 {
		if _, err := s.Market.CreateTicket(ctx, demoStudent, models.CreateTicketRequest{
			Title:       "Stuck on recursion",
			Description: "I understand the base case but not how the call stack unwinds.",
			CourseID:    market.SeedCourseCS101ID,
			HelpType:    models.HelpConcept,
			Urgency:     models.UrgencyHigh,
			Budget:      5000,
		}); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	tokens := make(map[string]string, 2)
	for _, id := range []models.Identity{demoStudent, demoTutor} {
		tok, err := auth.GenerateToken(id, s.Secret, s.Issuer, demoTokenTTL)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		tokens[id.Subject] = tok
	}

	s.Log.Info("demo data seeded", "departments", catalog.Departments, "courses", catalog.Courses)
	respond(w, http.StatusOK, seedResponse{
		Catalog: catalog,
		Tokens:  tokens,
		Message: "demo data ready",
	})
}
