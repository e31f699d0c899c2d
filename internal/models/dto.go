package models

import "time"

// ---- Request DTOs ----
//
// Validate tags are checked by the market service before any write, so
// every caller (HTTP, seed, tests) gets the same rules.

type CreateTicketRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    string     `json:"description" validate:"max=5000"`
	CourseID       string     `json:"course_id"`
	CustomCategory string     `json:"custom_category" validate:"max=60"`
	HelpType       HelpType   `json:"help_type" validate:"omitempty,oneof=homework exam_prep project concept other"`
	Urgency        Urgency    `json:"urgency" validate:"omitempty,oneof=low medium high"`
	Budget         int64      `json:"budget" validate:"gt=0"`
	Deadline       *time.Time `json:"deadline"`
}

type SubmitOfferRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Price    int64  `json:"price" validate:"gt=0"`
	Message  string `json:"message" validate:"max=1000"`
}

type AcceptOfferRequest struct {
	OfferID  string `json:"offer_id" validate:"required"`
	TicketID string `json:"ticket_id" validate:"required"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Content        string `json:"content" validate:"required,max=4000"`
}

type SubmitReviewRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
}

type ReportUserRequest struct {
	TargetID string       `json:"target_id" validate:"required"`
	Reason   ReportReason `json:"reason" validate:"required,oneof=spam harassment scam inappropriate other"`
	Details  string       `json:"details" validate:"max=2000"`
}

type BanUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Banned bool   `json:"banned"`
	Reason string `json:"reason" validate:"max=500"`
}

// SetFlagRequest toggles a boolean admin-managed flag on a user.
type SetFlagRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Value  bool   `json:"value"`
}

type ResolveReportRequest struct {
	ReportID   string       `json:"report_id" validate:"required"`
	Resolution ReportStatus `json:"resolution" validate:"required,oneof=resolved dismissed"`
}

type UpdateProfileRequest struct {
	Name *string   `json:"name" validate:"omitempty,min=1,max=100"`
	Bio  *string   `json:"bio" validate:"omitempty,max=1000"`
	Role *UserRole `json:"role" validate:"omitempty,oneof=student tutor"`
}

type UpsertTutorProfileRequest struct {
	Bio        string   `json:"bio" validate:"max=1000"`
	HourlyRate int64    `json:"hourly_rate" validate:"gte=0"`
	Subjects   []string `json:"subjects" validate:"max=20,dive,min=1,max=60"`
}

type AddTutorOfferingRequest struct {
	CourseID string         `json:"course_id" validate:"required"`
	Level    ExpertiseLevel `json:"level" validate:"required,oneof=beginner intermediate advanced expert"`
}

type SetPresenceRequest struct {
	Status Presence `json:"status" validate:"required,oneof=online away offline"`
}

type CreateStudyGroupRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	CourseID   string `json:"course_id"`
	MaxMembers int    `json:"max_members" validate:"min=2,max=50"`
}

type CreateDepartmentRequest struct {
	Code string `json:"code" validate:"required,max=16"`
	Name string `json:"name" validate:"required,max=120"`
}

type CreateCourseRequest struct {
	DepartmentID string `json:"department_id" validate:"required"`
	Code         string `json:"code" validate:"required,max=16"`
	Name         string `json:"name" validate:"required,max=160"`
}

// ---- Query filters ----

type TicketFilter struct {
	Search   string
	CourseID string
	Category string
	Urgency  Urgency
}

type UserFilter struct {
	Search string
	Role   UserRole
	Banned *bool
}

type TutorFilter struct {
	CourseID   string
	OnlineOnly bool
}

type AuditFilter struct {
	Action   string
	TargetID string
}

// OfferSort names one of the four offer orderings.
type OfferSort string

const (
	SortPrice  OfferSort = "price"
	SortRating OfferSort = "rating"
	SortNewest OfferSort = "newest"
	SortBest   OfferSort = "best"
)

// ---- Response DTOs ----

// ConversationResponse is returned when a conversation is fetched or
// created, so the client can open the thread immediately.
type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
	Created      bool         `json:"created"`
}

// AcceptOfferResponse carries everything the accept operation changed.
type AcceptOfferResponse struct {
	Ticket         Ticket `json:"ticket"`
	Offer          Offer  `json:"offer"`
	Rejected       int    `json:"rejected"`
	ConversationID string `json:"conversation_id"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// ReapResult reports one idle-reaper sweep.
type ReapResult struct {
	Demoted int `json:"demoted"`
}
