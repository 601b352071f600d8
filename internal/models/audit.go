package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRequestSubmit   = "REQUEST_SUBMIT"
	AuditActionRequestApprove  = "REQUEST_APPROVE"
	AuditActionRequestReject   = "REQUEST_REJECT"
	AuditActionRequestClose    = "REQUEST_CLOSE"
	AuditActionRequestFinalize = "REQUEST_FINALIZE"
	AuditActionResendEmail     = "REQUEST_RESEND_EMAIL"
	AuditActionResponseRecord  = "RESPONSE_RECORD"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
