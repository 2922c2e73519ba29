package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func newTestFacility(t *testing.T) *NotifyFacility {
	t.Helper()
	facility, err := NewNotifyFacility(FacilityOptions{})
	if err != nil {
		t.Fatalf("new facility: %v", err)
	}
	t.Cleanup(func() {
		_ = facility.Close()
	})
	return facility
}

func takeReady(t *testing.T, facility Facility) Ready {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ready, err := facility.Take(ctx)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	return ready
}

// collectChanges takes and re-arms handle until want shows up.
func collectChanges(t *testing.T, facility Facility, handle Handle, name string, kind Kind) []Change {
	t.Helper()
	var changes []Change
	deadline := time.Now().Add(3 * time.Second)
	for !hasChange(changes, name, kind) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s %s, got %+v", kind, name, changes)
		}
		ready := takeReady(t, facility)
		if ready.Handle == handle {
			changes = append(changes, ready.Changes...)
		}
		facility.Rearm(ready.Handle)
	}
	return changes
}

func hasChange(changes []Change, name string, kind Kind) bool {
	for _, change := range changes {
		if change.Name == name && change.Kind == kind {
			return true
		}
	}
	return false
}

func TestFacilityReportsCreate(t *testing.T) {
	facility := newTestFacility(t)
	dir := t.TempDir()
	handle, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := os.Mkdir(filepath.Join(dir, "child"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ready := takeReady(t, facility)
	if ready.Handle != handle {
		t.Fatalf("expected handle %d, got %d", handle, ready.Handle)
	}
	if ready.Path != filepath.Clean(dir) {
		t.Fatalf("expected path %q, got %q", dir, ready.Path)
	}
	if !hasChange(ready.Changes, "child", KindCreated) {
		t.Fatalf("expected created child, got %+v", ready.Changes)
	}
	if ready.Changes[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestFacilityReportsDelete(t *testing.T) {
	facility := newTestFacility(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	handle, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := os.Remove(target); err != nil {
		t.Fatalf("remove: %v", err)
	}
	collectChanges(t, facility, handle, "old.txt", KindDeleted)
}

func TestFacilitySignalsOnceUntilRearm(t *testing.T) {
	facility := newTestFacility(t)
	dir := t.TempDir()
	handle, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := os.Mkdir(filepath.Join(dir, "a"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	first := takeReady(t, facility)
	if !hasChange(first.Changes, "a", KindCreated) {
		t.Fatalf("expected created a, got %+v", first.Changes)
	}

	if err := os.Mkdir(filepath.Join(dir, "b"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ready, err := facility.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no ready handle before rearm, got %+v (%v)", ready, err)
	}

	if !facility.Rearm(handle) {
		t.Fatalf("expected rearm to succeed")
	}
	collectChanges(t, facility, handle, "b", KindCreated)
}

func TestFacilityInvalidatesDeletedDirectory(t *testing.T) {
	facility := newTestFacility(t)
	dir := filepath.Join(t.TempDir(), "watched")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	handle, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ready := takeReady(t, facility)
	if ready.Handle != handle {
		t.Fatalf("expected handle %d, got %d", handle, ready.Handle)
	}
	if facility.Rearm(handle) {
		t.Fatalf("expected rearm to fail after directory removal")
	}
	if facility.Valid(handle) {
		t.Fatalf("expected handle to be invalid")
	}
}

func TestFacilityCancel(t *testing.T) {
	facility := newTestFacility(t)
	dir := t.TempDir()
	handle, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := facility.Cancel(handle); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if facility.Valid(handle) {
		t.Fatalf("expected cancelled handle to be invalid")
	}
	if facility.Rearm(handle) {
		t.Fatalf("expected rearm to fail for cancelled handle")
	}
	if err := facility.Cancel(handle); err != nil {
		t.Fatalf("expected second cancel to be a no-op, got %v", err)
	}

	next, err := facility.Register(dir)
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if next == handle {
		t.Fatalf("expected a fresh handle, got %d again", next)
	}
}

func TestFacilityRegisterMissingDirectory(t *testing.T) {
	facility := newTestFacility(t)
	if _, err := facility.Register(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected register error for missing directory")
	}
}

func TestFacilityCloseUnblocksTake(t *testing.T) {
	facility := newTestFacility(t)

	result := make(chan error, 1)
	go func() {
		_, err := facility.Take(context.Background())
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := facility.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrFacilityClosed) {
			t.Fatalf("expected ErrFacilityClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected take to return after close")
	}
	if err := facility.Close(); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
}

func TestKindForOp(t *testing.T) {
	cases := []struct {
		op       fsnotify.Op
		expected Kind
		ok       bool
	}{
		{op: fsnotify.Create, expected: KindCreated, ok: true},
		{op: fsnotify.Remove, expected: KindDeleted, ok: true},
		{op: fsnotify.Rename, expected: KindDeleted, ok: true},
		{op: fsnotify.Write, expected: KindModified, ok: true},
		{op: fsnotify.Chmod, expected: KindModified, ok: true},
		{op: 0, ok: false},
	}

	for _, testCase := range cases {
		kind, ok := kindForOp(testCase.op)
		if ok != testCase.ok || kind != testCase.expected {
			t.Fatalf("op %v: expected %v/%v, got %v/%v", testCase.op, testCase.expected, testCase.ok, kind, ok)
		}
	}
}

func TestKindText(t *testing.T) {
	for _, kind := range []Kind{KindCreated, KindModified, KindDeleted} {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", kind, err)
		}
		var decoded Kind
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %q: %v", text, err)
		}
		if decoded != kind {
			t.Fatalf("expected %v, got %v", kind, decoded)
		}
	}
	var kind Kind
	if err := kind.UnmarshalText([]byte("renamed")); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
