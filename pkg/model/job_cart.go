package model

import "time"

type JobCartStatus string

const (
	JobCartAvailable  JobCartStatus = "available"
	JobCartInProgress JobCartStatus = "in_progress"
	JobCartCompleted  JobCartStatus = "completed"
	JobCartCancelled  JobCartStatus = "cancelled"
)

// JobCart is one unit of work posted by a client for a given event.
type JobCart struct {
	ID          string        `json:"id" bson:"_id" validate:"omitempty,max=64"`
	EventID     string        `json:"event_id" bson:"event_id" validate:"required,max=64"`
	ClientID    string        `json:"client_id" bson:"client_id" validate:"omitempty,max=64"`
	ServiceType string        `json:"service_type" bson:"service_type" validate:"required,min=2,max=100"`
	Location    string        `json:"location" bson:"location" validate:"omitempty,max=200"`
	Description string        `json:"description,omitempty" bson:"description" validate:"omitempty,max=2000"`
	Status      JobCartStatus `json:"status" bson:"status" validate:"omitempty,oneof=available in_progress completed cancelled"`
	AcceptedBy  string        `json:"accepted_by,omitempty" bson:"accepted_by"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" bson:"updated_at"`
}

type ClaimStatus string

const (
	ClaimAccepted ClaimStatus = "accepted"
	ClaimDeclined ClaimStatus = "declined"
)

// JobCartClaim is a provider's durable accept/decline decision on a job cart.
// (JobCartID, ProviderID) is unique; at most one accepted claim exists per job cart.
type JobCartClaim struct {
	ID         string      `json:"id" bson:"_id"`
	JobCartID  string      `json:"job_cart_id" bson:"job_cart_id"`
	ProviderID string      `json:"provider_id" bson:"provider_id"`
	Status     ClaimStatus `json:"status" bson:"status"`
	DecidedAt  time.Time   `json:"decided_at" bson:"decided_at"`
}

// TransitionResult is what storage reports for an atomic available -> in_progress attempt.
type TransitionResult struct {
	Applied    bool
	Status     JobCartStatus
	AcceptedBy string
}

// ClaimResult is the caller-facing outcome of accept/decline. Losing a race is
// Success=false with a message, not an error.
type ClaimResult struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	JobCartID string        `json:"job_cart_id"`
	Status    JobCartStatus `json:"status,omitempty"`
	ClaimedBy *Holder       `json:"claimed_by,omitempty"`
}

type UploadPermission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type JobCartFilter struct {
	Location    string
	ServiceType string
}
