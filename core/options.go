package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	queueStore        QueueStore
	deliveryLogStore  DeliveryLogStore
	workflowStore     WorkflowStore
	endpointStore     EndpointStore
	replayLedger      ReplayLedger
	txRunner          TxRunner
	eventRegistry     *EventRegistry
	retryPolicy       RetryPolicy
	waker             Waker
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithQueueStore(store QueueStore) Option {
	return func(b *serviceBuilder) {
		b.queueStore = store
	}
}

func WithDeliveryLogStore(store DeliveryLogStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryLogStore = store
	}
}

func WithWorkflowStore(store WorkflowStore) Option {
	return func(b *serviceBuilder) {
		b.workflowStore = store
	}
}

func WithEndpointStore(store EndpointStore) Option {
	return func(b *serviceBuilder) {
		b.endpointStore = store
	}
}

func WithReplayLedger(ledger ReplayLedger) Option {
	return func(b *serviceBuilder) {
		b.replayLedger = ledger
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(b *serviceBuilder) {
		b.txRunner = runner
	}
}

func WithEventRegistry(registry *EventRegistry) Option {
	return func(b *serviceBuilder) {
		b.eventRegistry = registry
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *serviceBuilder) {
		b.retryPolicy = policy
	}
}

func WithWaker(waker Waker) Option {
	return func(b *serviceBuilder) {
		b.waker = waker
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("webhook-relay", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		eventRegistry:   NewEventRegistry(),
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return relayErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Dispatcher != (DispatcherConfig{}) {
		layer["dispatcher"] = map[string]any{
			"poll_interval":   cfg.Dispatcher.PollInterval,
			"batch_size":      cfg.Dispatcher.BatchSize,
			"max_concurrency": cfg.Dispatcher.MaxConcurrency,
			"request_timeout": cfg.Dispatcher.RequestTimeout,
			"claim_timeout":   cfg.Dispatcher.ClaimTimeout,
		}
	}
	if includeZero || cfg.Retry.MaxAttempts != 0 || len(cfg.Retry.Steps) > 0 || cfg.Retry.Jitter != 0 {
		layer["retry"] = map[string]any{
			"max_attempts": cfg.Retry.MaxAttempts,
			"steps":        append([]any(nil), durationsToAny(cfg.Retry.Steps)...),
			"jitter":       cfg.Retry.Jitter,
		}
	}
	if includeZero || cfg.Signature != (SignatureConfig{}) {
		layer["signature"] = map[string]any{
			"max_age": cfg.Signature.MaxAge,
		}
	}
	if includeZero || cfg.Callbacks != (CallbackConfig{}) {
		layer["callbacks"] = map[string]any{
			"workflow_expiry": cfg.Callbacks.WorkflowExpiry,
		}
	}
	if includeZero || cfg.Emitter != (EmitterConfig{}) {
		layer["emitter"] = map[string]any{
			"max_payload_bytes": cfg.Emitter.MaxPayloadBytes,
		}
	}
	if includeZero || cfg.Retention != (RetentionConfig{}) {
		layer["retention"] = map[string]any{
			"terminal_horizon": cfg.Retention.TerminalHorizon,
			"log_horizon":      cfg.Retention.LogHorizon,
		}
	}
	return layer
}

func durationsToAny(values []time.Duration) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		out = append(out, value)
	}
	return out
}
