package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecute(t *testing.T) {
	e := New()

	out, err := e.Execute(context.Background(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("stdout = %q, want hello", out)
	}
}

func TestExecuteIncludesStderr(t *testing.T) {
	e := New()

	_, err := e.Execute(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	e := New()

	if _, err := e.Execute(context.Background(), "definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestExecuteHonoursContext(t *testing.T) {
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, "sh", "-c", "sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
