package atest

import (
	"testing"
	"time"
)

// ScaleMs is the base duration for "soon" helpers.
// It is generous enough for CI machines under load.
const ScaleMs = 500

// SendSoon sends v on ch, calling t.Fatal if the send does not
// complete within the helper timeout.
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	select {
	case ch <- v:
		// Okay.
	case <-time.After(ScaleMs * time.Millisecond):
		t.Fatalf("failed to send %v within %dms", v, ScaleMs)
	}
}

// ReceiveSoon receives a value from ch, calling t.Fatal if nothing
// arrives within the helper timeout.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScaleMs * time.Millisecond):
		t.Fatalf("failed to receive within %dms", ScaleMs)
		panic("unreachable")
	}
}

// NotSending asserts that ch has no value immediately available.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("expected channel to be empty, but received %v", v)
	default:
		// Okay.
	}
}
