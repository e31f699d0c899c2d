package models

import "time"

// UserRole is the side of the marketplace a user currently presents as.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTutor   UserRole = "tutor"
)

// TicketStatus is the lifecycle state of a help request.
// open -> in_progress -> resolved; resolved is terminal.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
)

// OfferStatus tracks a tutor's bid.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

type HelpType string

const (
	HelpHomework HelpType = "homework"
	HelpExamPrep HelpType = "exam_prep"
	HelpProject  HelpType = "project"
	HelpConcept  HelpType = "concept"
	HelpOther    HelpType = "other"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ReviewDirection says who reviewed whom.
type ReviewDirection string

const (
	StudentToTutor ReviewDirection = "student_to_tutor"
	TutorToStudent ReviewDirection = "tutor_to_student"
)

type NotificationType string

const (
	NotifyOfferReceived  NotificationType = "offer_received"
	NotifyOfferAccepted  NotificationType = "offer_accepted"
	NotifyOfferRejected  NotificationType = "offer_rejected"
	NotifyTicketResolved NotificationType = "ticket_resolved"
	NotifyNewMessage     NotificationType = "new_message"
	NotifyReviewReceived NotificationType = "review_received"
)

type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonHarassment    ReportReason = "harassment"
	ReasonScam          ReportReason = "scam"
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonOther         ReportReason = "other"
)

// Presence is a tutor's availability signal.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceOffline Presence = "offline"
)

type ExpertiseLevel string

const (
	LevelBeginner     ExpertiseLevel = "beginner"
	LevelIntermediate ExpertiseLevel = "intermediate"
	LevelAdvanced     ExpertiseLevel = "advanced"
	LevelExpert       ExpertiseLevel = "expert"
)

// Audit actions.
const (
	AuditUserBanned        = "user_banned"
	AuditUserUnbanned      = "user_unbanned"
	AuditUserVerified      = "user_verified"
	AuditUserUnverified    = "user_unverified"
	AuditAdminGranted      = "admin_granted"
	AuditAdminRevoked      = "admin_revoked"
	AuditReportResolved    = "report_resolved"
	AuditReportDismissed   = "report_dismissed"
	AuditDepartmentCreated = "department_created"
	AuditCourseCreated     = "course_created"
	AuditBackfillRun       = "backfill_run"
)

// Identity is what the external auth layer vouches for on every call.
type Identity struct {
	Subject   string `json:"subject"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// User is an internal account keyed by an external identity.
type User struct {
	ID          string    `json:"id"`
	IdentityKey string    `json:"-"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	Bio         string    `json:"bio"`
	Role        UserRole  `json:"role"`
	IsVerified  bool      `json:"is_verified"`
	IsAdmin     bool      `json:"is_admin"`
	IsBanned    bool      `json:"is_banned"`
	BanReason   string    `json:"ban_reason,omitempty"`
	RatingSum   int       `json:"rating_sum"`
	RatingCount int       `json:"rating_count"`
	// Reputation is RatingSum/RatingCount, computed on read.
	Reputation         float64    `json:"reputation"`
	EmailNotifications bool       `json:"email_notifications"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Reputation derives the average rating; zero when nobody has rated yet.
func Reputation(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

type Department struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Course struct {
	ID             string    `json:"id"`
	DepartmentID   string    `json:"department_id"`
	DepartmentCode string    `json:"department_code"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ticket is a student's paid help request.
type Ticket struct {
	ID              string       `json:"id"`
	StudentID       string       `json:"student_id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	CourseID        string       `json:"course_id,omitempty"`
	CourseCode      string       `json:"course_code,omitempty"`
	CustomCategory  string       `json:"custom_category,omitempty"`
	HelpType        HelpType     `json:"help_type"`
	Urgency         Urgency      `json:"urgency"`
	Budget          int64        `json:"budget"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	Status          TicketStatus `json:"status"`
	AssignedTutorID string       `json:"assigned_tutor_id,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Populated on read
	StudentName       string `json:"student_name,omitempty"`
	AssignedTutorName string `json:"assigned_tutor_name,omitempty"`
	OfferCount        int    `json:"offer_count"`
}

// Offer is a tutor's priced bid on a ticket. StudentID is a snapshot of
// the ticket owner taken at submission.
type Offer struct {
	ID        string      `json:"id"`
	TicketID  string      `json:"ticket_id"`
	TutorID   string      `json:"tutor_id"`
	StudentID string      `json:"student_id"`
	Price     int64       `json:"price"`
	Message   string      `json:"message,omitempty"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RankedOffer is an offer with the read-side annotations the buyer sees.
type RankedOffer struct {
	Offer
	TutorName        string  `json:"tutor_name"`
	TutorVerified    bool    `json:"tutor_verified"`
	TutorReputation  float64 `json:"tutor_reputation"`
	TutorReviewCount int     `json:"tutor_review_count"`
	MatchPercent     int     `json:"match_percent"`
	RankScore        float64 `json:"rank_score"`
	IsOnline         bool    `json:"is_online"`
	RecentlyActive   bool    `json:"recently_active"`
}

// MyOffer is an offer seen from the tutor's side.
type MyOffer struct {
	Offer
	TicketTitle  string       `json:"ticket_title"`
	TicketStatus TicketStatus `json:"ticket_status"`
	StudentName  string       `json:"student_name"`
}

// Conversation is the unique thread between two users.
type Conversation struct {
	ID                 string    `json:"id"`
	ParticipantA       string    `json:"participant_a"`
	ParticipantB       string    `json:"participant_b"`
	LastMessageID      string    `json:"last_message_id,omitempty"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// Populated on read
	OtherUserID   string `json:"other_user_id,omitempty"`
	OtherUserName string `json:"other_user_name,omitempty"`
	UnreadCount   int    `json:"unread_count"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// HasParticipant reports whether userID is one of the two sides.
func (c Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Review struct {
	ID         string          `json:"id"`
	TicketID   string          `json:"ticket_id"`
	ReviewerID string          `json:"reviewer_id"`
	RevieweeID string          `json:"reviewee_id"`
	Rating     int             `json:"rating"`
	Comment    string          `json:"comment,omitempty"`
	Direction  ReviewDirection `json:"direction"`
	CreatedAt  time.Time       `json:"created_at"`

	// Populated on read
	ReviewerName string `json:"reviewer_name,omitempty"`
}

// NotificationPayload is the typed body of a notification. Only the ids
// relevant to the notification type are set.
type NotificationPayload struct {
	TicketID       string `json:"ticket_id,omitempty"`
	OfferID        string `json:"offer_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	ActorName      string `json:"actor_name,omitempty"`
	Text           string `json:"text,omitempty"`
}

type Notification struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	Type      NotificationType    `json:"type"`
	Payload   NotificationPayload `json:"payload"`
	IsRead    bool                `json:"is_read"`
	CreatedAt time.Time           `json:"created_at"`
}

type Report struct {
	ID         string       `json:"id"`
	ReporterID string       `json:"reporter_id"`
	TargetID   string       `json:"target_id"`
	Reason     ReportReason `json:"reason"`
	Details    string       `json:"details,omitempty"`
	Status     ReportStatus `json:"status"`
	ResolvedBy string       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`

	// Populated on read
	ReporterName string `json:"reporter_name,omitempty"`
	TargetName   string `json:"target_name,omitempty"`
}

// AuditLog is one append-only record of a privileged action.
type AuditLog struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetID   string         `json:"target_id"`
	TargetType string         `json:"target_type"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

type TutorProfile struct {
	UserID            string     `json:"user_id"`
	Bio               string     `json:"bio"`
	HourlyRate        int64      `json:"hourly_rate"`
	Subjects          []string   `json:"subjects"`
	Presence          Presence   `json:"presence"`
	AcceptingRequests bool       `json:"accepting_requests"`
	LastActiveAt      *time.Time `json:"last_active_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Populated on read
	Name        string          `json:"name,omitempty"`
	IsVerified  bool            `json:"is_verified"`
	Reputation  float64         `json:"reputation"`
	ReviewCount int             `json:"review_count"`
	Offerings   []TutorOffering `json:"offerings,omitempty"`
}

type TutorOffering struct {
	ID         string         `json:"id"`
	TutorID    string         `json:"tutor_id"`
	CourseID   string         `json:"course_id"`
	CourseCode string         `json:"course_code,omitempty"`
	Level      ExpertiseLevel `json:"level"`
	CreatedAt  time.Time      `json:"created_at"`
}

type StudyGroup struct {
	ID         string    `json:"id"`
	HostID     string    `json:"host_id"`
	Name       string    `json:"name"`
	CourseID   string    `json:"course_id,omitempty"`
	MaxMembers int       `json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`

	// Populated on read
	MemberCount int  `json:"member_count"`
	IsMember    bool `json:"is_member"`
}

// BackfillResult counts rows touched by a maintenance backfill.
type BackfillResult struct {
	OffersUpdated  int `json:"offers_updated"`
	TicketsUpdated int `json:"tickets_updated"`
}
