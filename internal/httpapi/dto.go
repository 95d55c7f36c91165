package httpapi

import (
	"time"

	"github.com/snarg/fieldops/internal/domain"
)

// createJobRequest is the POST /jobs body.
type createJobRequest struct {
	ContactID       string             `json:"contact_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Address         domain.Address     `json:"address"`
	DistanceKM      float64            `json:"distance_km"`
	PreferredWindow *domain.TimeWindow `json:"preferred_window,omitempty"`
	AccessNotes     string             `json:"access_notes"`
	Source          domain.JobSource   `json:"source"`
	Urgency         domain.Urgency     `json:"urgency"`
	Trade           domain.TradeCategory `json:"trade"`
}

// jobResponse is the canonical Job wire shape.
type jobResponse struct {
	ID              string             `json:"id"`
	JobNumber       string             `json:"job_number"`
	ContactID       string             `json:"contact_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Trade           domain.TradeCategory `json:"trade"`
	Urgency         domain.Urgency     `json:"urgency"`
	Status          domain.JobStatus   `json:"status"`
	Source          domain.JobSource   `json:"source"`
	Address         domain.Address     `json:"address"`
	DistanceKM      float64            `json:"distance_km"`
	RoutingPriority int                `json:"routing_priority"`
	RoutingReason   string             `json:"routing_reason,omitempty"`
	Department      string             `json:"department,omitempty"`
	AssignedWorker  string             `json:"assigned_worker,omitempty"`
	PreferredWindow *domain.TimeWindow `json:"preferred_window,omitempty"`
	ScheduledStart  *time.Time         `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time         `json:"scheduled_end,omitempty"`
	AccessNotes     string             `json:"access_notes,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func toJobResponse(j *domain.Job) *jobResponse {
	return &jobResponse{
		ID: j.ID, JobNumber: j.JobNumber, ContactID: j.ContactID, Title: j.Title,
		Description: j.Description, Trade: j.Trade, Urgency: j.Urgency, Status: j.Status,
		Source: j.Source, Address: j.AddressSnapshot, DistanceKM: j.DistanceKM,
		RoutingPriority: j.RoutingPriority, RoutingReason: j.RoutingReason, Department: j.Department,
		AssignedWorker: j.AssignedWorker, PreferredWindow: j.PreferredWindow,
		ScheduledStart: j.ScheduledStart, ScheduledEnd: j.ScheduledEnd, AccessNotes: j.AccessNotes,
		CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
	}
}

// updateStatusRequest is the PATCH /jobs/{id}/status body.
type updateStatusRequest struct {
	Status domain.JobStatus `json:"status"`
}

// assignJobRequest is the PATCH /jobs/{id}/assign body — manual override
// of routing's automatic assignment.
type assignJobRequest struct {
	DepartmentID string `json:"department_id"`
	WorkerID     string `json:"worker_id"`
}

// triageAssessRequest is the POST /triage/assess body.
type triageAssessRequest struct {
	Description    string `json:"description"`
	VeryYoungOrOld bool   `json:"very_young_or_old"`
	Pregnancy      bool   `json:"pregnancy"`
	Commercial     bool   `json:"commercial"`
	Vulnerability  bool   `json:"vulnerability"`
	OutOfHours     bool   `json:"out_of_hours"`
}

// technicianSearchRequest is the POST /technicians/search body.
type technicianSearchRequest struct {
	Trade         domain.TradeCategory `json:"trade"`
	Urgency       domain.Urgency       `json:"urgency"`
	RequiredCerts []string             `json:"required_certs"`
	Geo           domain.GeoPoint      `json:"geo"`
}

type technicianCandidate struct {
	WorkerID string  `json:"worker_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// appointmentSlotsRequest is the POST /appointments/slots body.
type appointmentSlotsRequest struct {
	WorkerID        string             `json:"worker_id"`
	Urgency         domain.Urgency     `json:"urgency"`
	Earliest        time.Time          `json:"earliest"`
	Latest          time.Time          `json:"latest"`
	PreferredWindow *domain.TimeWindow `json:"preferred_window,omitempty"`
	OpenIntervals   []intervalDTO      `json:"open_intervals"`
	TopN            int                `json:"top_n"`
}

type intervalDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type slotDTO struct {
	WorkerID  string    `json:"worker_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Preferred bool      `json:"preferred"`
	Emergency bool      `json:"emergency"`
}

// appointmentBookRequest is the POST /appointments/book body.
type appointmentBookRequest struct {
	JobID    string    `json:"job_id"`
	WorkerID string    `json:"worker_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// grantConsentRequest is the POST /consent/{contact_id} body.
type grantConsentRequest struct {
	Kind            domain.ConsentKind   `json:"kind"`
	Method          domain.ConsentMethod `json:"method"`
	OriginatingCall string               `json:"originating_call,omitempty"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
}

type consentResponse struct {
	ID              string               `json:"id"`
	ContactID       string               `json:"contact_id"`
	Kind            domain.ConsentKind   `json:"kind"`
	Method          domain.ConsentMethod `json:"method"`
	GrantedAt       *time.Time           `json:"granted_at,omitempty"`
	RevokedAt       *time.Time           `json:"revoked_at,omitempty"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
	OriginatingCall string               `json:"originating_call,omitempty"`
	Active          bool                 `json:"active"`
}

func toConsentResponse(c *domain.ConsentRecord) *consentResponse {
	return &consentResponse{
		ID: c.ID, ContactID: c.ContactID, Kind: c.Kind, Method: c.Method,
		GrantedAt: c.GrantedAt, RevokedAt: c.RevokedAt, ExpiresAt: c.ExpiresAt,
		OriginatingCall: c.OriginatingCall, Active: c.Active(time.Now().UTC()),
	}
}

// auditEntryResponse is one row of GET /audit.
type auditEntryResponse struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func toAuditEntryResponse(e *domain.AuditEntry) *auditEntryResponse {
	return &auditEntryResponse{
		ID: e.ID, Timestamp: e.Timestamp, Actor: e.Actor, Action: e.Action,
		EntityKind: e.EntityKind, EntityID: e.EntityID, Detail: e.Detail,
	}
}

// auditIntegrityResponse is the GET /audit/integrity body.
type auditIntegrityResponse struct {
	OK       bool  `json:"ok"`
	BrokenAt int64 `json:"broken_at,omitempty"`
}

// healthResponse is the GET /health body.
type healthResponse struct {
	Status  string            `json:"status"`
	Metrics map[string]uint64 `json:"metrics"`
}

// exportResponse is the GET /export/{contact_id} body — the full per-contact
// data bundle for a data-subject access request.
type exportResponse struct {
	Contact *domain.Contact        `json:"contact"`
	Jobs    []*domain.Job          `json:"jobs"`
	Consents []*domain.ConsentRecord `json:"consents"`
}
