package writer

import (
	"strings"
	"testing"
)

func TestValidateRunName_Valid(t *testing.T) {
	tests := []string{
		"run_2025-10-30T14-30-00",
		"run_2024-01-01T00-00-00",
		"run_2023-12-31T23-59-59",
	}

	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			if err := ValidateRunName("output", tt); err != nil {
				t.Errorf("ValidateRunName(%q) returned unexpected error: %v", tt, err)
			}
		})
	}
}

func TestValidateRunName_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // substring of expected error message
	}{
		{name: "empty", input: "", want: "cannot be empty"},
		{name: "traversal_double_dot", input: "../etc", want: "path traversal"},
		{name: "traversal_multiple", input: "../../etc/passwd", want: "path traversal"},
		{name: "traversal_in_middle", input: "run_2025-10-30T14-30-00/../etc", want: "path traversal"},
		{name: "absolute_unix", input: "/etc/passwd", want: "without path separators"},
		{name: "absolute_windows", input: "C:\\Windows\\System32", want: "without path separators"},
		{name: "with_forward_slash", input: "run/2025", want: "without path separators"},
		{name: "wrong_prefix", input: "session_2025-10-30T14-30-00", want: "invalid run name format"},
		{name: "no_prefix", input: "my-run", want: "invalid run name format"},
		{name: "missing_separators", input: "run_20251030T143000", want: "invalid run name format"},
		{name: "trailing_suffix", input: "run_2025-10-30T14-30-00.bak", want: "invalid run name format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunName("output", tt.input)
			if err == nil {
				t.Fatalf("ValidateRunName(%q) expected error, got nil", tt.input)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ValidateRunName(%q) error = %q, want substring %q", tt.input, err.Error(), tt.want)
			}
		})
	}
}
