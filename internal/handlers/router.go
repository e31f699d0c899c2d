package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Elizabethomito/tutormarket/internal/middleware"
)

// Routes builds the HTTP router.
//
// Queries are GETs and run for anonymous callers too (they come back
// empty). Mutations sit behind RequireIdentity.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Observe(s.Log, s.Metrics))
	r.Use(middleware.CORS(s.CORSOrigin))

	r.Get("/health", s.Health)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	if s.SeedEnabled {
		r.Post("/api/admin/seed", s.SeedDemo)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Identify(s.Secret, s.Issuer))

		r.Get("/live", s.Live)

		// Queries
		r.Get("/me", s.Me)
		r.Get("/users/{id}", s.GetUser)
		r.Get("/users/{id}/reviews", s.ListReviewsForUser)
		r.Get("/users/{id}/tutor-profile", s.GetTutorProfile)

		r.Get("/departments", s.ListDepartments)
		r.Get("/courses", s.ListCourses)
		r.Get("/courses/{id}", s.GetCourse)

		r.Get("/tickets", s.ListOpenTickets)
		r.Get("/tickets/mine", s.ListMyTickets)
		r.Get("/tickets/assigned", s.ListAssignedTickets)
		r.Get("/tickets/{id}", s.GetTicket)
		r.Get("/tickets/{id}/offers", s.ListOffersForTicket)
		r.Get("/offers/mine", s.ListMyOffers)

		r.Get("/conversations", s.ListConversations)
		r.Get("/conversations/{id}/messages", s.ListMessages)
		r.Get("/messages/unread-count", s.UnreadMessageCount)

		r.Get("/notifications", s.ListNotifications)
		r.Get("/notifications/unread-count", s.UnreadNotificationCount)

		r.Get("/tutors", s.ListTutors)
		r.Get("/study-groups", s.ListStudyGroups)

		r.Get("/admin/users", s.ListUsers)
		r.Get("/admin/reports", s.ListReports)
		r.Get("/admin/audit-logs", s.ListAuditLogs)

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIdentity)

			r.Post("/auth/sync", s.SyncIdentity)
			r.Patch("/me", s.UpdateProfile)

			r.Post("/departments", s.CreateDepartment)
			r.Post("/courses", s.CreateCourse)

			r.Post("/tickets", s.CreateTicket)
			r.Post("/tickets/{id}/complete", s.CompleteTicket)
			r.Post("/tickets/{id}/offers", s.SubmitOffer)
			r.Post("/tickets/{id}/offers/{offerID}/accept", s.AcceptOffer)
			r.Post("/tickets/{id}/reviews", s.SubmitReview)

			r.Post("/conversations", s.GetOrCreateConversation)
			r.Post("/conversations/{id}/messages", s.SendMessage)
			r.Post("/conversations/{id}/read", s.MarkConversationRead)

			r.Post("/notifications/{id}/read", s.MarkNotificationRead)
			r.Post("/notifications/read-all", s.MarkAllNotificationsRead)

			r.Put("/tutor/profile", s.UpsertTutorProfile)
			r.Post("/tutor/offerings", s.AddTutorOffering)
			r.Delete("/tutor/offerings/{id}", s.RemoveTutorOffering)
			r.Post("/tutor/presence", s.SetPresence)
			r.Post("/tutor/heartbeat", s.Heartbeat)

			r.Post("/study-groups", s.CreateStudyGroup)
			r.Post("/study-groups/{id}/join", s.JoinStudyGroup)
			r.Post("/study-groups/{id}/leave", s.LeaveStudyGroup)

			r.Post("/reports", s.ReportUser)

			r.Post("/admin/users/{id}/ban", s.BanUser)
			r.Post("/admin/users/{id}/verify", s.SetVerification)
			r.Post("/admin/users/{id}/admin", s.SetAdmin)
			r.Post("/admin/reports/{id}/resolve", s.ResolveReport)
			r.Post("/admin/backfill", s.BackfillDenormalized)
		})
	})
	return r
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
