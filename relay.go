// Package relay delivers signed outbound webhooks through a persistent
// retry queue and verifies signed inbound callbacks that resolve paused
// workflows. Host applications construct a Service and embed the relay's
// migrations next to their own.
package relay

import "github.com/goliatone/go-webhook-relay/core"

type Config = core.Config

type DispatcherConfig = core.DispatcherConfig

type Option = core.Option

type Service = core.Service

type QueueStore = core.QueueStore
type DeliveryLogStore = core.DeliveryLogStore
type WorkflowStore = core.WorkflowStore
type EndpointStore = core.EndpointStore
type SecretResolver = core.SecretResolver
type ReplayLedger = core.ReplayLedger
type EventRegistry = core.EventRegistry
type RetryPolicy = core.RetryPolicy

type EventType = core.EventType
type QueueItem = core.QueueItem
type QueueDepth = core.QueueDepth
type DeliveryLog = core.DeliveryLog
type Workflow = core.Workflow
type Endpoint = core.Endpoint
type EntityRef = core.EntityRef

type EmitRequest = core.EmitRequest
type CallbackRequest = core.CallbackRequest
type CallbackOutcome = core.CallbackOutcome
type ChainFunc = core.ChainFunc

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithQueueStore        = core.WithQueueStore
	WithDeliveryLogStore  = core.WithDeliveryLogStore
	WithWorkflowStore     = core.WithWorkflowStore
	WithEndpointStore     = core.WithEndpointStore
	WithReplayLedger      = core.WithReplayLedger
	WithTxRunner          = core.WithTxRunner
	WithEventRegistry     = core.WithEventRegistry
	WithRetryPolicy       = core.WithRetryPolicy
	WithWaker             = core.WithWaker
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
