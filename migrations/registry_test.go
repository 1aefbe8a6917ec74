package migrations

import (
	"context"
	"io/fs"
	"testing"
)

func TestFilesystemsExposeBothDialects(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("Filesystems returned error: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	seen := map[string]bool{}
	for _, fsys := range filesystems {
		seen[fsys.Dialect] = true
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", fsys.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("dialect %s has no up migrations", fsys.Dialect)
		}
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("missing dialect coverage: %v", seen)
	}
}

func TestRegisterInvokesCallbackPerTarget(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect, label string, fsys fs.FS) error {
		if label != "webhook-relay" {
			t.Fatalf("unexpected source label: %s", label)
		}
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		calls = append(calls, dialect)
		return nil
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 registrations, got %v", calls)
	}
	if len(reg.Filesystems) != 2 {
		t.Fatalf("expected 2 filesystems on registration, got %d", len(reg.Filesystems))
	}
}

func TestRegisterHonorsValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite only, got %v", calls)
	}
}

func TestRegisterRequiresCallback(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil register function")
	}
}
