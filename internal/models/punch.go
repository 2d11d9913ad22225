package models

import "time"

// PunchType distinguishes arrival from departure.
type PunchType string

const (
	PunchTypeIn  PunchType = "PUNCH_IN"
	PunchTypeOut PunchType = "PUNCH_OUT"
)

// Valid reports whether t is a known punch type.
func (t PunchType) Valid() bool {
	return t == PunchTypeIn || t == PunchTypeOut
}

// PunchStatus captures the approval state of a punch request.
type PunchStatus string

const (
	PunchStatusPending  PunchStatus = "PENDING"
	PunchStatusApproved PunchStatus = "APPROVED"
	PunchStatusRejected PunchStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s PunchStatus) Valid() bool {
	switch s {
	case PunchStatusPending, PunchStatusApproved, PunchStatusRejected:
		return true
	}
	return false
}

// PunchDecision is the mentor's verdict on a pending punch.
type PunchDecision string

const (
	PunchDecisionApprove PunchDecision = "APPROVE"
	PunchDecisionReject  PunchDecision = "REJECT"
)

// PunchRequest is an attendance punch awaiting or holding a mentor decision.
// MentorID and ProcessedAt are nil while Status is PENDING; RejectionReason is set only when REJECTED.
type PunchRequest struct {
	ID              string      `db:"id" json:"id"`
	StudentID       string      `db:"student_id" json:"studentId"`
	Type            PunchType   `db:"type" json:"type"`
	PunchTime       time.Time   `db:"punch_time" json:"punchTime"`
	Latitude        float64     `db:"latitude" json:"latitude"`
	Longitude       float64     `db:"longitude" json:"longitude"`
	Distance        float64     `db:"distance" json:"distance"`
	Status          PunchStatus `db:"status" json:"status"`
	MentorID        *string     `db:"mentor_id" json:"mentorId,omitempty"`
	ProcessedAt     *time.Time  `db:"processed_at" json:"processedAt,omitempty"`
	RejectionReason *string     `db:"rejection_reason" json:"rejectionReason,omitempty"`
}

// PunchFilter constrains ledger listing queries.
type PunchFilter struct {
	StudentID string
	BatchID   string
	Status    []PunchStatus
	Type      PunchType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
