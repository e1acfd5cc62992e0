package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy text", errors.New("SQLITE_BUSY: cannot commit"), true},
		{"locked text", errors.New("database is locked (5)"), true},
		{"wrapped", fmt.Errorf("append message: %w", errors.New("database is locked")), true},
		{"constraint", errors.New("UNIQUE constraint failed: messages.id"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSQLiteConflictError(tc.err); got != tc.want {
				t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
