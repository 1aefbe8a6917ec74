package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires every SQL-backed store off one bun handle and
// satisfies the service builder's StoreProvider and TxRunner contracts.
type RepositoryFactory struct {
	db *bun.DB

	queueStore          *QueueStore
	deliveryLogStore    *DeliveryLogStore
	workflowStore       *WorkflowStore
	endpointStore       *EndpointStore
	verificationStore   *VerificationStore
	rateLimitStateStore *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.queueStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) initStores() error {
	queueStore, err := NewQueueStore(f.db)
	if err != nil {
		return err
	}
	f.queueStore = queueStore

	deliveryLogStore, err := NewDeliveryLogStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryLogStore = deliveryLogStore

	workflowStore, err := NewWorkflowStore(f.db)
	if err != nil {
		return err
	}
	f.workflowStore = workflowStore

	endpointStore, err := NewEndpointStore(f.db)
	if err != nil {
		return err
	}
	f.endpointStore = endpointStore

	verificationStore, err := NewVerificationStore(f.db)
	if err != nil {
		return err
	}
	f.verificationStore = verificationStore

	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = rateLimitStateStore

	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) QueueStore() core.QueueStore {
	if f == nil {
		return nil
	}
	return f.queueStore
}

func (f *RepositoryFactory) DeliveryLogStore() core.DeliveryLogStore {
	if f == nil {
		return nil
	}
	return f.deliveryLogStore
}

func (f *RepositoryFactory) WorkflowStore() core.WorkflowStore {
	if f == nil {
		return nil
	}
	return f.workflowStore
}

func (f *RepositoryFactory) EndpointStore() core.EndpointStore {
	if f == nil {
		return nil
	}
	return f.endpointStore
}

func (f *RepositoryFactory) ReplayLedger() core.ReplayLedger {
	if f == nil {
		return nil
	}
	return f.verificationStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

// RunInTx opens one transaction and hands its bun.Tx to fn as the opaque
// handle the transactional store contracts accept.
func (f *RepositoryFactory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx any) error) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	return f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.StoreProvider = (*RepositoryFactory)(nil)
	_ core.TxRunner      = (*RepositoryFactory)(nil)
)
