package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType is the closed set of outbound notification kinds the relay
// delivers. New variants are added here, not at call sites, so the
// EventRegistry lookup stays exhaustive.
type EventType string

const (
	EventLeadQualified EventType = "lead.qualified"
	EventCampaignSent  EventType = "campaign.sent"
	EventDemoDeployed  EventType = "demo.deployed"
	EventDemoCompleted EventType = "demo.completed"
	EventVideoReady    EventType = "video.completed"
	EventWorkflowStep  EventType = "workflow.proceed"
	EventWorkflowError EventType = "workflow.error"
)

var knownEventTypes = map[EventType]struct{}{
	EventLeadQualified: {},
	EventCampaignSent:  {},
	EventDemoDeployed:  {},
	EventDemoCompleted: {},
	EventVideoReady:    {},
	EventWorkflowStep:  {},
	EventWorkflowError: {},
}

func (t EventType) Valid() bool {
	_, ok := knownEventTypes[EventType(strings.TrimSpace(string(t)))]
	return ok
}

func EventTypes() []EventType {
	out := make([]EventType, 0, len(knownEventTypes))
	for eventType := range knownEventTypes {
		out = append(out, eventType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Queue item priorities. Higher values are claimed first.
const (
	PriorityNormal   = 0
	PriorityElevated = 1
	PriorityHigh     = 2
	PriorityCritical = 3
)

func ClampPriority(priority int) int {
	if priority < PriorityNormal {
		return PriorityNormal
	}
	if priority > PriorityCritical {
		return PriorityCritical
	}
	return priority
}

type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusClaimed   QueueStatus = "claimed"
	QueueStatusSent      QueueStatus = "sent"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// Terminal reports whether a queue item may never change state again.
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueStatusSent, QueueStatusFailed, QueueStatusCancelled:
		return true
	default:
		return false
	}
}

// EntityRef is an opaque pointer to the business object that produced an
// event. The relay carries it for correlation and audit only; it is never
// dereferenced here.
type EntityRef struct {
	Type string
	ID   string
}

func (r EntityRef) String() string {
	if r.Empty() {
		return ""
	}
	return strings.TrimSpace(r.Type) + ":" + strings.TrimSpace(r.ID)
}

func (r EntityRef) Empty() bool {
	return strings.TrimSpace(r.Type) == "" && strings.TrimSpace(r.ID) == ""
}

// QueueItem is one outbound delivery lineage. Retries mutate the same row;
// a retry never creates a new row.
type QueueItem struct {
	ID            string
	EventType     EventType
	TargetURL     string
	Payload       []byte
	Priority      int
	Status        QueueStatus
	AttemptCount  int
	MaxAttempts   int
	NextAttemptAt time.Time
	ClaimedBy     string
	ClaimedAt     *time.Time
	LastError     string
	Entity        EntityRef
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Delivery attempt outcomes recorded on DeliveryLog rows.
const (
	AttemptOutcomeSent      = "sent"
	AttemptOutcomeRetry     = "retry"
	AttemptOutcomeFailed    = "failed"
	AttemptOutcomeThrottled = "throttled"
)

// DeliveryLog is an append-only audit record, one row per HTTP attempt.
// Rows outlive the queue item they describe.
type DeliveryLog struct {
	ID         string
	ItemID     string
	Attempt    int
	StatusCode int
	Outcome    string
	Error      string
	Duration   time.Duration
	CreatedAt  time.Time
}

type WorkflowStatus string

const (
	WorkflowStatusAwaitingCallback WorkflowStatus = "awaiting_callback"
	WorkflowStatusResolved         WorkflowStatus = "resolved"
	WorkflowStatusExpired          WorkflowStatus = "expired"
)

func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusResolved || s == WorkflowStatusExpired
}

type CallbackDecision string

const (
	DecisionAccepted CallbackDecision = "accepted"
	DecisionRejected CallbackDecision = "rejected"
)

func (d CallbackDecision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Workflow is a paused business process awaiting an inbound callback
// decision from the remote side.
type Workflow struct {
	ID         string
	EventType  EventType
	Entity     EntityRef
	Status     WorkflowStatus
	Decision   CallbackDecision
	Metadata   map[string]any
	ExpiresAt  time.Time
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Endpoint is a registered remote destination with its own shared secret.
// The signer never falls back to a global secret.
type Endpoint struct {
	ID          string
	Name        string
	TargetURL   string
	Secret      string
	Enabled     bool
	MaxAttempts int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DepthBucket is one row of the operational queue-depth read model.
type DepthBucket struct {
	Status   QueueStatus
	Priority int
	Count    int
}

type QueueDepth []DepthBucket

func (d QueueDepth) Total() int {
	total := 0
	for _, bucket := range d {
		total += bucket.Count
	}
	return total
}

// EmitRequest is the narrow surface business code uses to enqueue an
// outbound event. Payload bytes are captured verbatim at enqueue time and
// never recomputed.
type EmitRequest struct {
	EventType   EventType
	TargetURL   string
	Payload     []byte
	Priority    int
	Entity      EntityRef
	MaxAttempts int
}

// CallbackRequest is the parsed body of an inbound signed callback.
type CallbackRequest struct {
	WorkflowID string           `json:"workflow_id"`
	Decision   CallbackDecision `json:"decision"`
	Strict     bool             `json:"strict,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// CallbackOutcome reports how an inbound callback was applied. Applied is
// false for idempotent duplicates and for late callbacks on expired
// workflows.
type CallbackOutcome struct {
	Workflow Workflow
	Applied  bool
	Chained  *QueueItem
}

// ChainFunc plans the follow-up outbound event emitted when a workflow of a
// given event type resolves. Returning nil means no chained event.
type ChainFunc func(wf Workflow, decision CallbackDecision) (*EmitRequest, error)

// EventRegistry maps event-type variants to chain handlers, replacing
// stringly-typed hook dispatch with a closed lookup table.
type EventRegistry struct {
	mu       sync.RWMutex
	handlers map[EventType]ChainFunc
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{handlers: map[EventType]ChainFunc{}}
}

func (r *EventRegistry) Register(eventType EventType, fn ChainFunc) error {
	if r == nil {
		return fmt.Errorf("core: event registry is not configured")
	}
	if !eventType.Valid() {
		return fmt.Errorf("core: unknown event type %q", eventType)
	}
	if fn == nil {
		return fmt.Errorf("core: chain handler is required for %q", eventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = fn
	return nil
}

func (r *EventRegistry) Resolve(eventType EventType) (ChainFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[eventType]
	return fn, ok
}
