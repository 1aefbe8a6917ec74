package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

var (
	ErrItemNotFound     = errors.New("core: queue item not found")
	ErrWorkflowNotFound = errors.New("core: workflow not found")
)

// RepositoryStoreFactory is implemented by store factories that build the
// full store set from a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// Service is the event emitter plus the operational surface over the queue
// and the callback workflows. The dispatcher and the inbound processor are
// separate components that share its stores.
type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	persistence      any
	queueStore       QueueStore
	deliveryLogStore DeliveryLogStore
	workflowStore    WorkflowStore
	endpointStore    EndpointStore
	replayLedger     ReplayLedger
	txRunner         TxRunner
	eventRegistry    *EventRegistry
	retryPolicy      RetryPolicy
	waker            Waker
	now              func() time.Time
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhook-relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhook-relay"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.eventRegistry == nil {
		builder.eventRegistry = NewEventRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if typed, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = typed
		}
		if storeProvider != nil {
			if builder.queueStore == nil {
				builder.queueStore = storeProvider.QueueStore()
			}
			if builder.deliveryLogStore == nil {
				builder.deliveryLogStore = storeProvider.DeliveryLogStore()
			}
			if builder.workflowStore == nil {
				builder.workflowStore = storeProvider.WorkflowStore()
			}
			if builder.endpointStore == nil {
				builder.endpointStore = storeProvider.EndpointStore()
			}
		}
		if builder.replayLedger == nil {
			if provider, ok := builder.repositoryFactory.(interface{ ReplayLedger() ReplayLedger }); ok {
				builder.replayLedger = provider.ReplayLedger()
			}
		}
		if builder.txRunner == nil {
			if runner, ok := builder.repositoryFactory.(TxRunner); ok {
				builder.txRunner = runner
			}
		}
	}
	if builder.replayLedger == nil {
		builder.replayLedger = NewMemoryReplayLedger(finalConfig.Signature.MaxAge)
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorMapper:      builder.errorMapper,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		persistence:      builder.persistenceClient,
		queueStore:       builder.queueStore,
		deliveryLogStore: builder.deliveryLogStore,
		workflowStore:    builder.workflowStore,
		endpointStore:    builder.endpointStore,
		replayLedger:     builder.replayLedger,
		txRunner:         builder.txRunner,
		eventRegistry:    builder.eventRegistry,
		retryPolicy:      builder.retryPolicy,
		waker:            builder.waker,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return nil
	}
	return s.logger
}

func (s *Service) QueueStore() QueueStore {
	if s == nil {
		return nil
	}
	return s.queueStore
}

func (s *Service) DeliveryLogStore() DeliveryLogStore {
	if s == nil {
		return nil
	}
	return s.deliveryLogStore
}

func (s *Service) ReplayLedger() ReplayLedger {
	if s == nil {
		return nil
	}
	return s.replayLedger
}

func (s *Service) EventRegistry() *EventRegistry {
	if s == nil {
		return nil
	}
	return s.eventRegistry
}

// Emit validates and enqueues an outbound event in its own write. Callers
// holding an open transaction should use EmitIn so the queue row commits
// atomically with their state change.
func (s *Service) Emit(ctx context.Context, req EmitRequest) (item QueueItem, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "emit", err, map[string]any{
			"event_type": string(req.EventType),
			"entity":     req.Entity.String(),
			"item_id":    item.ID,
		})
	}()

	if s == nil || s.queueStore == nil {
		return QueueItem{}, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	built, buildErr := s.buildQueueItem(ctx, req)
	if buildErr != nil {
		return QueueItem{}, s.mapError(buildErr)
	}
	if enqueueErr := s.queueStore.Enqueue(ctx, &built); enqueueErr != nil {
		return QueueItem{}, s.mapError(enqueueErr)
	}
	s.wake()
	return built, nil
}

// EmitIn enqueues inside the caller's transaction (outbox pattern). If the
// enclosing transaction rolls back, no queue item is created.
func (s *Service) EmitIn(ctx context.Context, tx any, req EmitRequest) (QueueItem, error) {
	if s == nil || s.queueStore == nil {
		return QueueItem{}, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	enqueuer, ok := s.queueStore.(TransactionalEnqueuer)
	if !ok {
		return QueueItem{}, s.mapError(fmt.Errorf("core: queue store does not support transactional enqueue"))
	}
	built, err := s.buildQueueItem(ctx, req)
	if err != nil {
		return QueueItem{}, s.mapError(err)
	}
	if err := enqueuer.EnqueueIn(ctx, tx, &built); err != nil {
		return QueueItem{}, s.mapError(err)
	}
	s.wake()
	return built, nil
}

func (s *Service) buildQueueItem(ctx context.Context, req EmitRequest) (QueueItem, error) {
	if !req.EventType.Valid() {
		return QueueItem{}, fmt.Errorf("core: unknown event type %q", req.EventType)
	}
	target := strings.TrimSpace(req.TargetURL)
	if target == "" {
		return QueueItem{}, fmt.Errorf("core: target url is required")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return QueueItem{}, fmt.Errorf("core: invalid target url %q: %w", target, err)
	}
	if !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return QueueItem{}, fmt.Errorf("core: invalid target url %q", target)
	}
	if len(req.Payload) == 0 {
		return QueueItem{}, fmt.Errorf("core: payload is required")
	}
	if max := s.config.Emitter.MaxPayloadBytes; max > 0 && len(req.Payload) > max {
		return QueueItem{}, fmt.Errorf("core: oversized payload: %d bytes exceeds %d", len(req.Payload), max)
	}

	maxAttempts := req.MaxAttempts
	if s.endpointStore != nil {
		endpoint, lookupErr := s.endpointStore.GetByURL(ctx, target)
		if lookupErr == nil {
			if !endpoint.Enabled {
				return QueueItem{}, fmt.Errorf("core: endpoint %q is disabled", endpoint.Name)
			}
			if maxAttempts <= 0 && endpoint.MaxAttempts > 0 {
				maxAttempts = endpoint.MaxAttempts
			}
		}
	}
	if maxAttempts <= 0 {
		maxAttempts = s.config.Retry.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultConfig().Retry.MaxAttempts
	}

	now := s.clock()
	return QueueItem{
		ID:            uuid.NewString(),
		EventType:     req.EventType,
		TargetURL:     target,
		Payload:       append([]byte(nil), req.Payload...),
		Priority:      ClampPriority(req.Priority),
		Status:        QueueStatusPending,
		AttemptCount:  0,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		Entity:        req.Entity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// RetryItem is the manual operator action for failed or cancelled items.
func (s *Service) RetryItem(ctx context.Context, id string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "retry_item", err, map[string]any{"item_id": id})
	}()
	if s == nil || s.queueStore == nil {
		return s.mapError(fmt.Errorf("core: queue store is required"))
	}
	if strings.TrimSpace(id) == "" {
		return s.mapError(fmt.Errorf("core: item id is required"))
	}
	if retryErr := s.queueStore.Retry(ctx, strings.TrimSpace(id)); retryErr != nil {
		return s.mapError(retryErr)
	}
	s.wake()
	return nil
}

// CancelItem cancels a pending item. Items already claimed, terminal, or
// in flight are left alone; the claim query resolves the race.
func (s *Service) CancelItem(ctx context.Context, id string) (err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "cancel_item", err, map[string]any{"item_id": id})
	}()
	if s == nil || s.queueStore == nil {
		return s.mapError(fmt.Errorf("core: queue store is required"))
	}
	if strings.TrimSpace(id) == "" {
		return s.mapError(fmt.Errorf("core: item id is required"))
	}
	if cancelErr := s.queueStore.Cancel(ctx, strings.TrimSpace(id)); cancelErr != nil {
		return s.mapError(cancelErr)
	}
	return nil
}

func (s *Service) GetItem(ctx context.Context, id string) (QueueItem, error) {
	if s == nil || s.queueStore == nil {
		return QueueItem{}, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	item, err := s.queueStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return QueueItem{}, s.mapError(err)
	}
	return item, nil
}

func (s *Service) QueueDepth(ctx context.Context) (QueueDepth, error) {
	if s == nil || s.queueStore == nil {
		return nil, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	depth, err := s.queueStore.Depth(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return depth, nil
}

func (s *Service) ListDeliveryLogs(ctx context.Context, itemID string) ([]DeliveryLog, error) {
	if s == nil || s.deliveryLogStore == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery log store is required"))
	}
	logs, err := s.deliveryLogStore.ListByItem(ctx, strings.TrimSpace(itemID))
	if err != nil {
		return nil, s.mapError(err)
	}
	return logs, nil
}

// ReleaseStaleClaims is the crash-recovery sweep: items claimed longer than
// the claim timeout go back to pending so another worker can retry them.
func (s *Service) ReleaseStaleClaims(ctx context.Context) (released int, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "release_stale_claims", err, map[string]any{"released": released})
	}()
	if s == nil || s.queueStore == nil {
		return 0, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	timeout := s.config.Dispatcher.ClaimTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().Dispatcher.ClaimTimeout
	}
	released, releaseErr := s.queueStore.ReleaseStaleClaims(ctx, timeout)
	if releaseErr != nil {
		return 0, s.mapError(releaseErr)
	}
	return released, nil
}

// PruneTerminal archives terminal queue rows and old delivery logs past the
// retention horizons.
func (s *Service) PruneTerminal(ctx context.Context) (pruned int, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "prune_terminal", err, map[string]any{"pruned": pruned})
	}()
	if s == nil || s.queueStore == nil {
		return 0, s.mapError(fmt.Errorf("core: queue store is required"))
	}
	now := s.clock()
	horizon := s.config.Retention.TerminalHorizon
	if horizon <= 0 {
		horizon = DefaultConfig().Retention.TerminalHorizon
	}
	pruned, pruneErr := s.queueStore.PruneTerminal(ctx, now.Add(-horizon))
	if pruneErr != nil {
		return 0, s.mapError(pruneErr)
	}
	if s.deliveryLogStore != nil {
		logHorizon := s.config.Retention.LogHorizon
		if logHorizon <= 0 {
			logHorizon = DefaultConfig().Retention.LogHorizon
		}
		if _, logErr := s.deliveryLogStore.PruneOlderThan(ctx, now.Add(-logHorizon)); logErr != nil {
			return pruned, s.mapError(logErr)
		}
	}
	return pruned, nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) wake() {
	if s == nil || s.waker == nil {
		return
	}
	s.waker.Wake()
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}
