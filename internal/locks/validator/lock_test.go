package validator

import (
	"errors"
	"strings"
	"testing"

	"eventmarket/pkg/model"
)

func TestValidateAcquire(t *testing.T) {
	v := NewLockValidator()

	tests := []struct {
		name       string
		req        model.AcquireRequest
		wantFields []string
	}{
		{
			name: "valid",
			req:  model.AcquireRequest{ResourceType: model.ResourceQuotation, ResourceID: "q-1", Operation: model.OperationEdit},
		},
		{
			name:       "missing everything",
			req:        model.AcquireRequest{},
			wantFields: []string{"resource_type", "resource_id", "operation"},
		},
		{
			name:       "unknown type and operation",
			req:        model.AcquireRequest{ResourceType: "invoice", ResourceID: "i-1", Operation: "archive"},
			wantFields: []string{"resource_type", "operation"},
		},
		{
			name:       "record id too long",
			req:        model.AcquireRequest{ResourceType: model.ResourceBooking, ResourceID: strings.Repeat("x", 129), Operation: model.OperationDelete},
			wantFields: []string{"resource_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAcquire(&tt.req)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			details := verrs.Details()
			for _, field := range tt.wantFields {
				if _, ok := details[field]; !ok {
					t.Errorf("missing error for %s in %v", field, details)
				}
			}
		})
	}
}

func TestValidateForceRelease_RequiresReason(t *testing.T) {
	v := NewLockValidator()
	if err := v.ValidateForceRelease(&model.ForceReleaseRequest{Reason: ""}); err == nil {
		t.Error("empty reason should fail")
	}
	if err := v.ValidateForceRelease(&model.ForceReleaseRequest{Reason: "holder left for the day"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRenew_LeaseMustBeUUID(t *testing.T) {
	v := NewLockValidator()
	if err := v.ValidateRenew(&model.RenewRequest{LeaseID: "not-a-uuid"}); err == nil {
		t.Error("malformed lease id should fail")
	}
	if err := v.ValidateRenew(&model.RenewRequest{}); err != nil {
		t.Errorf("empty lease id is allowed: %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	v := NewLockValidator()
	if err := v.ValidateKey(model.NewResourceKey("invoice", "")); err == nil {
		t.Fatal("expected error")
	} else if verrs := err.(ValidationErrors); len(verrs) != 2 {
		t.Errorf("got %d errors, want 2", len(verrs))
	}
	if err := v.ValidateKey(model.NewResourceKey(model.ResourceJobCart, "jc-1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
