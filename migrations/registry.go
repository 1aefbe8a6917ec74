// Package migrations exposes the embedded schema to host applications that
// drive their own migration tooling. Host apps register the relay's
// filesystem per dialect next to their own migrations.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	relay "github.com/goliatone/go-webhook-relay"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// sqliteSubdir holds the sqlite rendition of the schema; the root of the
// embedded tree is the postgres rendition.
const (
	embeddedRoot = "data/sql/migrations"
	sqliteSubdir = "sqlite"
)

// FilesystemSpec pairs one dialect's migration files with where they live
// inside the embedded tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration reports what Register handed to the callback.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one dialect filesystem at a time. Implementations
// typically call persistence-bun's RegisterSQLMigrations for the dialect
// their client speaks.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithDialectSourceLabel overrides the label reported to the callback.
func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects. Hosts that
// only run one database pass their dialect here so the other filesystem is
// skipped.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			trimmed := strings.TrimSpace(strings.ToLower(target))
			if trimmed == "" || contains(next, trimmed) {
				continue
			}
			next = append(next, trimmed)
		}
		if len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// Filesystems resolves the postgres and sqlite migration filesystems from the
// embedded tree and verifies each carries at least one up migration. An
// optional override filesystem replaces the embedded tree, which tests use.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := relay.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, embeddedRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", embeddedRoot, err)
	}
	sqliteFS, err := fs.Sub(base, sqliteSubdir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: embeddedRoot, FS: base},
		{Dialect: DialectSQLite, Path: embeddedRoot + "/" + sqliteSubdir, FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register resolves the embedded filesystems and invokes registerFn once per
// targeted dialect.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "webhook-relay",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	for _, spec := range reg.Filesystems {
		if !contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
