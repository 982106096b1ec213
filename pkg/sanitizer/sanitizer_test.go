package sanitizer

import "testing"

func TestSanitizeLocation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "spaces become underscores", input: "Tel Aviv", want: "tel_aviv"},
		{name: "trim and lowercase", input: "  JERUSALEM ", want: "jerusalem"},
		{name: "punctuation collapses", input: "Bnei--Brak!!", want: "bnei_brak"},
		{name: "digits are dropped", input: "District 9", want: "district"},
		{name: "unicode letters kept", input: "Zürich", want: "zürich"},
		{name: "empty", input: "   ", want: ""},
		{name: "idempotent", input: "tel_aviv", want: "tel_aviv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeLocation(tt.input); got != tt.want {
				t.Errorf("SanitizeLocation(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeServiceType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ampersand", input: "DJ & Sound", want: "dj_sound"},
		{name: "digits kept", input: "3D Projection", want: "3d_projection"},
		{name: "already normalized", input: "catering", want: "catering"},
		{name: "only symbols", input: "&&&", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeServiceType(tt.input); got != tt.want {
				t.Errorf("SanitizeServiceType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: " jc-1 ", want: "jc-1"},
		{input: "evt:42", want: "evt:42"},
		{input: "a b/c", want: "abc"},
	}

	for _, tt := range tests {
		if got := SanitizeID(tt.input); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trim spaces", input: "  stuck editor  ", want: "stuck editor"},
		{name: "tabs and newlines", input: "stale\t\nsession", want: "stale session"},
		{name: "only whitespace", input: " \t\n ", want: ""},
		{name: "preserve symbols", input: " Café & Spa™ ", want: "Café & Spa™"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	if got := NormalizeDisplayName("  Sound \t&  Light\nCo "); got != "Sound & Light Co" {
		t.Errorf("NormalizeDisplayName() = %q", got)
	}
}
