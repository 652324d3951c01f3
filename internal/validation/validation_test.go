package validation

import (
	"testing"
)

func TestIsValidEntityID(t *testing.T) {
	tests := []struct {
		id    int64
		valid bool
	}{
		{1, true},
		{42, true},
		{1 << 40, true},

		// Invalid cases
		{0, false},
		{-1, false},
		{-100, false},
	}

	for _, tc := range tests {
		result := IsValidEntityID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidEntityID(%d) = %v, want %v", tc.id, result, tc.valid)
		}
	}
}

func TestIsValidContamination(t *testing.T) {
	tests := []struct {
		c     float64
		valid bool
	}{
		{0.05, true},
		{0.34, true},
		{0.5, true},

		// Invalid
		{0, false},
		{-0.1, false},
		{0.51, false},
		{1, false},
	}

	for _, tc := range tests {
		result := IsValidContamination(tc.c)
		if result != tc.valid {
			t.Errorf("IsValidContamination(%v) = %v, want %v", tc.c, result, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("name", "John"),
		PositiveID("account_id", 7),
		ContaminationRange("contamination", 0.1),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("name", ""),
		PositiveID("account_id", -1),
		ContaminationRange("contamination", 0.9),
	)
	if len(errors) != 3 {
		t.Errorf("Expected 3 errors, got %d", len(errors))
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
