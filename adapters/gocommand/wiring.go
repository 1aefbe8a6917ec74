package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	relaycommand "github.com/goliatone/go-webhook-relay/command"
	relayquery "github.com/goliatone/go-webhook-relay/query"
)

// RelayService combines the surfaces the relay handlers need. core.Service
// satisfies it.
type RelayService interface {
	relaycommand.MutatingService
	relayquery.QueueReader
	relayquery.WorkflowReader
}

// RegisterRelay registers and subscribes every relay command and query on the
// adapter's registry. On failure the already-created subscriptions are torn
// down so a half-wired dispatcher never receives relay messages.
func RegisterRelay(adapter *RegistryAdapter, svc RelayService) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if svc == nil {
		return nil, fmt.Errorf("gocommand: relay service is required")
	}

	var subscriptions []commanddispatcher.Subscription
	keep := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		subscriptions = append(subscriptions, sub)
		return nil
	}

	steps := []func() error{
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewEmitEventCommand(svc))) },
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewRetryQueueItemCommand(svc))) },
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewCancelQueueItemCommand(svc))) },
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewCreateWorkflowCommand(svc))) },
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewResolveWorkflowCommand(svc))) },
		func() error {
			return keep(RegisterAndSubscribe(adapter, relaycommand.NewReleaseStaleClaimsCommand(svc)))
		},
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewExpireWorkflowsCommand(svc))) },
		func() error { return keep(RegisterAndSubscribe(adapter, relaycommand.NewPruneRetentionCommand(svc))) },
		func() error { return keep(RegisterAndSubscribeQuery(adapter, relayquery.NewGetQueueItemQuery(svc))) },
		func() error { return keep(RegisterAndSubscribeQuery(adapter, relayquery.NewQueueDepthQuery(svc))) },
		func() error {
			return keep(RegisterAndSubscribeQuery(adapter, relayquery.NewListDeliveryLogsQuery(svc)))
		},
		func() error { return keep(RegisterAndSubscribeQuery(adapter, relayquery.NewGetWorkflowQuery(svc))) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			for _, sub := range subscriptions {
				if sub != nil {
					sub.Unsubscribe()
				}
			}
			return nil, err
		}
	}
	return subscriptions, nil
}
