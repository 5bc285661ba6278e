package atest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that routes through t.Log,
// so log output is associated with the test that produced it.
func NewLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slogt.New(t)
}
