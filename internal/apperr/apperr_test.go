package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "validation", err: Validation("name is required"), want: CodeValidation},
		{name: "not found", err: NotFound("continuity %q not found", "c1"), want: CodeNotFound},
		{name: "conflict", err: Conflict("session %s is active", "s1"), want: CodeConflict},
		{name: "invalid operation", err: InvalidOperation("session already ended"), want: CodeInvalidOperation},
		{name: "repository", err: Repository(errors.New("disk full"), "saving entity"), want: CodeRepository},
		{name: "wrapped", err: fmt.Errorf("outer: %w", Conflict("held")), want: CodeConflict},
		{name: "plain error", err: errors.New("boom"), want: CodeRepository},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepositoryUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Repository(cause, "loading events")
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause to survive errors.Is")
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("start session: %w", Conflict("session s1 is active"))
	if !IsCode(err, CodeConflict) {
		t.Errorf("expected CONFLICT")
	}
	if IsCode(err, CodeNotFound) {
		t.Errorf("did not expect NOT_FOUND")
	}
}
