package validator

import (
	"errors"
	"strings"
	"testing"

	"eventmarket/pkg/model"
)

func TestValidateJobCart(t *testing.T) {
	v := NewJobCartValidator()

	tests := []struct {
		name       string
		cart       model.JobCart
		wantFields []string
	}{
		{
			name: "valid",
			cart: model.JobCart{EventID: "evt-1", ServiceType: "catering", Location: "haifa"},
		},
		{
			name:       "missing event and service type",
			cart:       model.JobCart{},
			wantFields: []string{"event_id", "service_type"},
		},
		{
			name:       "bad status",
			cart:       model.JobCart{EventID: "evt-1", ServiceType: "dj", Status: "claimed"},
			wantFields: []string{"status"},
		},
		{
			name:       "description too long",
			cart:       model.JobCart{EventID: "evt-1", ServiceType: "dj", Description: strings.Repeat("x", 2001)},
			wantFields: []string{"description"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateJobCart(&tt.cart)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateJobCart() error = %v, want nil", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateJobCart() error = %v, want ValidationErrors", err)
			}
			details := verrs.Details()
			for _, field := range tt.wantFields {
				if _, ok := details[field]; !ok {
					t.Errorf("missing error for %q in %v", field, details)
				}
			}
		})
	}
}

func TestValidateClaim(t *testing.T) {
	v := NewJobCartValidator()

	if err := v.ValidateClaim("jc-1", "p-1"); err != nil {
		t.Errorf("ValidateClaim() unexpected error: %v", err)
	}

	err := v.ValidateClaim("", strings.Repeat("p", 65))
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("ValidateClaim() = %v, want two errors", err)
	}
	if verrs.Details()["job_cart_id"] != "is required" {
		t.Errorf("job_cart_id message = %v", verrs.Details()["job_cart_id"])
	}
}
