package model

import "time"

// Lock is an exclusive, time-bounded claim on one resource.
// ID is ResourceKey.String() and is unique across all stored locks.
type Lock struct {
	ID               string       `json:"resource_key" bson:"_id"`
	ResourceType     ResourceType `json:"resource_type" bson:"resource_type"`
	ResourceRecordID string       `json:"resource_record_id" bson:"resource_record_id"`
	HolderID         string       `json:"holder_id" bson:"holder_id"`
	HolderRole       string       `json:"holder_role,omitempty" bson:"holder_role"`
	Operation        Operation    `json:"operation" bson:"operation"`
	LeaseID          string       `json:"lease_id,omitempty" bson:"lease_id"`
	AcquiredAt       time.Time    `json:"acquired_at" bson:"acquired_at"`
	LastRenewedAt    time.Time    `json:"last_renewed_at" bson:"last_renewed_at"`
	ExpiresAt        time.Time    `json:"expires_at" bson:"expires_at"`
}

func (l *Lock) Key() ResourceKey {
	return NewResourceKey(l.ResourceType, l.ResourceRecordID)
}

// IsExpired reports whether the lease has run out at now.
func (l *Lock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Holder describes who owns a lock. DisplayName is filled in by the HTTP layer.
type Holder struct {
	ID          string `json:"id"`
	Role        string `json:"role,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type AcquireRequest struct {
	ResourceType ResourceType `json:"resource_type" validate:"required,resource_type"`
	ResourceID   string       `json:"resource_id" validate:"required,max=128"`
	Operation    Operation    `json:"operation" validate:"required,operation"`
}

func (r AcquireRequest) Key() ResourceKey {
	return NewResourceKey(r.ResourceType, r.ResourceID)
}

type AcquireStatus string

const (
	AcquireGranted AcquireStatus = "granted"
	AcquireDenied  AcquireStatus = "denied"
)

// AcquireOutcome is Granted{LeaseID} or Denied{Holder, AcquiredAt, ExpiresAt, Message}.
// Contention is reported here, never as an error.
type AcquireOutcome struct {
	Status      AcquireStatus `json:"status"`
	ResourceKey string        `json:"resource_key"`
	LeaseID     string        `json:"lease_id,omitempty"`
	Holder      *Holder       `json:"holder,omitempty"`
	AcquiredAt  *time.Time    `json:"acquired_at,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Message     string        `json:"message,omitempty"`
}

func (o *AcquireOutcome) Granted() bool {
	return o != nil && o.Status == AcquireGranted
}

func Granted(lock *Lock) *AcquireOutcome {
	expiresAt := lock.ExpiresAt
	acquiredAt := lock.AcquiredAt
	return &AcquireOutcome{
		Status:      AcquireGranted,
		ResourceKey: lock.ID,
		LeaseID:     lock.LeaseID,
		AcquiredAt:  &acquiredAt,
		ExpiresAt:   &expiresAt,
	}
}

func Denied(key ResourceKey, holder *Lock, message string) *AcquireOutcome {
	outcome := &AcquireOutcome{
		Status:      AcquireDenied,
		ResourceKey: key.String(),
		Message:     message,
	}
	if holder != nil {
		acquiredAt := holder.AcquiredAt
		expiresAt := holder.ExpiresAt
		outcome.Holder = &Holder{ID: holder.HolderID, Role: holder.HolderRole}
		outcome.AcquiredAt = &acquiredAt
		outcome.ExpiresAt = &expiresAt
	}
	return outcome
}

type RenewRequest struct {
	LeaseID string `json:"lease_id" validate:"omitempty,uuid"`
}

type RenewOutcome struct {
	Renewed     bool       `json:"renewed"`
	ResourceKey string     `json:"resource_key"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type LockStatus struct {
	ResourceKey string     `json:"resource_key"`
	Locked      bool       `json:"locked"`
	Holder      *Holder    `json:"holder,omitempty"`
	Operation   Operation  `json:"operation,omitempty"`
	AcquiredAt  *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func Unlocked(key ResourceKey) *LockStatus {
	return &LockStatus{ResourceKey: key.String()}
}

func LockedBy(lock *Lock) *LockStatus {
	acquiredAt := lock.AcquiredAt
	expiresAt := lock.ExpiresAt
	return &LockStatus{
		ResourceKey: lock.ID,
		Locked:      true,
		Holder:      &Holder{ID: lock.HolderID, Role: lock.HolderRole},
		Operation:   lock.Operation,
		AcquiredAt:  &acquiredAt,
		ExpiresAt:   &expiresAt,
	}
}

type WaitStatus string

const (
	WaitReleased  WaitStatus = "released"
	WaitTimedOut  WaitStatus = "timed_out"
	WaitCancelled WaitStatus = "cancelled"
)

// WaitOutcome reports how a bounded wait for a lock ended. LastHolder is set
// when the lock was still held at the end of the wait.
type WaitOutcome struct {
	Status      WaitStatus    `json:"status"`
	ResourceKey string        `json:"resource_key"`
	Waited      time.Duration `json:"waited_ns"`
	LastHolder  *LockStatus   `json:"last_holder,omitempty"`
	Message     string        `json:"message,omitempty"`
}

type ForceReleaseRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type ForceReleaseResult struct {
	Released       bool    `json:"released"`
	ResourceKey    string  `json:"resource_key"`
	PreviousHolder *Holder `json:"previous_holder,omitempty"`
}

type PurgeResult struct {
	Purged int `json:"purged"`
}
