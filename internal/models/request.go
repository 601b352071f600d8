package models

import "time"

// RequestStatus captures the lifecycle states of a borrow request.
type RequestStatus string

const (
	StatusPendingReview           RequestStatus = "pending_review"
	StatusPendingBuildingResponse RequestStatus = "pending_building_response"
	StatusPendingAllocation       RequestStatus = "pending_allocation"
	StatusCompleted               RequestStatus = "completed"
	StatusRejected                RequestStatus = "rejected"
	StatusClosed                  RequestStatus = "closed"
)

// forward edges of the lifecycle; closed is reachable from any
// non-terminal state and handled in CanTransitionTo.
var requestTransitions = map[RequestStatus][]RequestStatus{
	StatusPendingReview:           {StatusPendingBuildingResponse, StatusRejected},
	StatusPendingBuildingResponse: {StatusPendingAllocation},
	StatusPendingAllocation:       {StatusCompleted, StatusRejected},
}

// IsValid reports whether the value is a known status.
func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPendingReview, StatusPendingBuildingResponse, StatusPendingAllocation,
		StatusCompleted, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusClosed {
		return true
	}
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Request represents a borrow request row.
type Request struct {
	ID          string        `db:"id" json:"id"`
	ApplicantID string        `db:"applicant_id" json:"applicant_id"`
	StartDate   time.Time     `db:"start_date" json:"start_date"`
	EndDate     time.Time     `db:"end_date" json:"end_date"`
	Venue       string        `db:"venue" json:"venue"`
	Purpose     string        `db:"purpose" json:"purpose"`
	Notes       *string       `db:"notes" json:"notes,omitempty"`
	Status      RequestStatus `db:"status" json:"status"`
	Version     int           `db:"version" json:"-"`
	SlipPath    *string       `db:"slip_path" json:"-"`
	EmailSent   bool          `db:"email_sent" json:"email_sent"`
	ExpiresAt   time.Time     `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestItem is one requested equipment line.
type RequestItem struct {
	ID                string `db:"id" json:"id"`
	RequestID         string `db:"request_id" json:"request_id"`
	EquipmentID       string `db:"equipment_id" json:"equipment_id"`
	EquipmentName     string `db:"equipment_name" json:"equipment_name"`
	RequestedQuantity int    `db:"requested_quantity" json:"requested_quantity"`
	ApprovedQuantity  *int   `db:"approved_quantity" json:"approved_quantity,omitempty"`
}

// StatusHistoryEntry is one append-only lifecycle audit row.
type StatusHistoryEntry struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	FromStatus *RequestStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   RequestStatus  `db:"to_status" json:"to_status"`
	ActorID    *string        `db:"actor_id" json:"actor_id,omitempty"`
	Note       *string        `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	ApplicantID string
	Status      []RequestStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Search      string
	Page        int
	PageSize    int
}

// StatusCount pairs a status with its row count for list summaries.
type StatusCount struct {
	Status RequestStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}
