package model

import (
	"fmt"
	"strings"
)

// ResourceType names a kind of shared record that can be locked.
type ResourceType string

const (
	ResourceQuotation       ResourceType = "quotation"
	ResourceBooking         ResourceType = "booking"
	ResourceJobCart         ResourceType = "job_cart"
	ResourcePayment         ResourceType = "payment"
	ResourceEvent           ResourceType = "event"
	ResourceClient          ResourceType = "client"
	ResourceServiceProvider ResourceType = "service_provider"
)

var ResourceTypes = []ResourceType{
	ResourceQuotation,
	ResourceBooking,
	ResourceJobCart,
	ResourcePayment,
	ResourceEvent,
	ResourceClient,
	ResourceServiceProvider,
}

func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Operation is the intent recorded with a lock. It does not affect exclusivity.
type Operation string

const (
	OperationEdit    Operation = "edit"
	OperationDelete  Operation = "delete"
	OperationApprove Operation = "approve"
	OperationReject  Operation = "reject"
	OperationCancel  Operation = "cancel"
)

var Operations = []Operation{
	OperationEdit,
	OperationDelete,
	OperationApprove,
	OperationReject,
	OperationCancel,
}

func (o Operation) Valid() bool {
	for _, known := range Operations {
		if o == known {
			return true
		}
	}
	return false
}

const keySeparator = ":"

// ResourceKey identifies one lockable record.
type ResourceKey struct {
	Type     ResourceType `json:"resource_type"`
	RecordID string       `json:"resource_record_id"`
}

func NewResourceKey(resourceType ResourceType, recordID string) ResourceKey {
	return ResourceKey{Type: resourceType, RecordID: recordID}
}

// String renders the key as "type:recordId", the form stored as the lock's unique id.
func (k ResourceKey) String() string {
	return string(k.Type) + keySeparator + k.RecordID
}

func (k ResourceKey) IsZero() bool {
	return k.Type == "" || k.RecordID == ""
}

// ParseResourceKey is the inverse of ResourceKey.String. Record ids may contain ':'.
func ParseResourceKey(s string) (ResourceKey, error) {
	resourceType, recordID, ok := strings.Cut(s, keySeparator)
	if !ok || resourceType == "" || recordID == "" {
		return ResourceKey{}, fmt.Errorf("malformed resource key %q", s)
	}
	key := NewResourceKey(ResourceType(resourceType), recordID)
	if !key.Type.Valid() {
		return ResourceKey{}, fmt.Errorf("unknown resource type %q", resourceType)
	}
	return key, nil
}

const (
	RoleClient          = "client"
	RoleServiceProvider = "service_provider"
	RoleAdmin           = "admin"
)

// Actor is the authenticated caller. ID is an opaque reference issued by the
// identity platform; display names are resolved at the presentation boundary.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (a Actor) IsZero() bool {
	return a.ID == ""
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
