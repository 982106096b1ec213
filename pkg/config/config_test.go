package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_DefaultsPass(t *testing.T) {
	cfg := FromEnv("config-test")
	cfg.StorageDriver = StorageSQLite
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidate_LockMaxWait(t *testing.T) {
	tests := []struct {
		name    string
		maxWait time.Duration
		wantErr string
	}{
		{"within bounds", 20 * time.Second, ""},
		{"not positive", 0, "LockMaxWait (0s) must be positive"},
		{"above client ceiling", 2 * time.Minute, "must not exceed 1m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv("config-test")
			cfg.StorageDriver = StorageSQLite
			cfg.RequestTimeout = 5 * time.Minute
			cfg.WriteTimeout = 5 * time.Minute
			cfg.LockMaxWait = tt.maxWait

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
