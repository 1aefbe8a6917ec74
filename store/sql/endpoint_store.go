package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EndpointStore keeps the registered destinations and their shared
// secrets. It doubles as the SecretResolver for both delivery signing and
// inbound verification.
type EndpointStore struct {
	db   *bun.DB
	repo repository.Repository[*endpointRecord]
}

func NewEndpointStore(db *bun.DB) (*EndpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*endpointRecord](db, endpointHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid endpoint repository wiring: %w", err)
		}
	}
	return &EndpointStore{db: db, repo: repo}, nil
}

func (s *EndpointStore) Upsert(ctx context.Context, endpoint core.Endpoint) (core.Endpoint, error) {
	if s == nil || s.db == nil {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	if strings.TrimSpace(endpoint.Name) == "" {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint name is required")
	}
	if strings.TrimSpace(endpoint.TargetURL) == "" {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint target url is required")
	}
	if strings.TrimSpace(endpoint.Secret) == "" {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint secret is required")
	}

	now := time.Now().UTC()
	if strings.TrimSpace(endpoint.ID) == "" {
		endpoint.ID = uuid.NewString()
	}
	if endpoint.CreatedAt.IsZero() {
		endpoint.CreatedAt = now
	}
	endpoint.UpdatedAt = now

	record := &endpointRecord{
		ID:          endpoint.ID,
		Name:        strings.TrimSpace(endpoint.Name),
		TargetURL:   strings.TrimSpace(endpoint.TargetURL),
		Secret:      endpoint.Secret,
		Enabled:     endpoint.Enabled,
		MaxAttempts: endpoint.MaxAttempts,
		CreatedAt:   endpoint.CreatedAt.UTC(),
		UpdatedAt:   endpoint.UpdatedAt.UTC(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (target_url) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("secret = EXCLUDED.secret").
		Set("enabled = EXCLUDED.enabled").
		Set("max_attempts = EXCLUDED.max_attempts").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Endpoint{}, err
	}
	return s.GetByURL(ctx, record.TargetURL)
}

func (s *EndpointStore) Get(ctx context.Context, id string) (core.Endpoint, error) {
	if s == nil || s.db == nil {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint id is required")
	}
	record := new(endpointRecord)
	err := s.db.NewSelect().Model(record).Where("wep.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint %s not found", id)
		}
		return core.Endpoint{}, err
	}
	return endpointRecordToEndpoint(*record), nil
}

func (s *EndpointStore) GetByURL(ctx context.Context, targetURL string) (core.Endpoint, error) {
	if s == nil || s.db == nil {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	targetURL = strings.TrimSpace(targetURL)
	if targetURL == "" {
		return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint target url is required")
	}
	record := new(endpointRecord)
	err := s.db.NewSelect().Model(record).Where("wep.target_url = ?", targetURL).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Endpoint{}, fmt.Errorf("sqlstore: endpoint for %s not found", targetURL)
		}
		return core.Endpoint{}, err
	}
	return endpointRecordToEndpoint(*record), nil
}

func (s *EndpointStore) List(ctx context.Context) ([]core.Endpoint, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: endpoint store is not configured")
	}
	var records []endpointRecord
	if err := s.db.NewSelect().Model(&records).Order("wep.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	endpoints := make([]core.Endpoint, 0, len(records))
	for _, record := range records {
		endpoints = append(endpoints, endpointRecordToEndpoint(record))
	}
	return endpoints, nil
}

// SecretFor resolves the signing secret for an outbound target url.
func (s *EndpointStore) SecretFor(ctx context.Context, targetURL string) (string, error) {
	endpoint, err := s.GetByURL(ctx, targetURL)
	if err != nil {
		return "", err
	}
	if !endpoint.Enabled {
		return "", fmt.Errorf("sqlstore: endpoint %s is disabled", endpoint.Name)
	}
	return endpoint.Secret, nil
}

// SecretForEndpoint resolves the verification secret for an inbound caller
// identified by endpoint id.
func (s *EndpointStore) SecretForEndpoint(ctx context.Context, endpointID string) (string, error) {
	endpoint, err := s.Get(ctx, endpointID)
	if err != nil {
		return "", err
	}
	if !endpoint.Enabled {
		return "", fmt.Errorf("sqlstore: endpoint %s is disabled", endpoint.Name)
	}
	return endpoint.Secret, nil
}

func endpointRecordToEndpoint(record endpointRecord) core.Endpoint {
	return core.Endpoint{
		ID:          record.ID,
		Name:        record.Name,
		TargetURL:   record.TargetURL,
		Secret:      record.Secret,
		Enabled:     record.Enabled,
		MaxAttempts: record.MaxAttempts,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

var (
	_ core.EndpointStore  = (*EndpointStore)(nil)
	_ core.SecretResolver = (*EndpointStore)(nil)
)
