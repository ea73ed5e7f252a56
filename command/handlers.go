package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-fulfillment/core"
)

type MutatingService interface {
	ApplyStorefrontOrderEvent(ctx context.Context, topic string, event core.StorefrontOrderEvent) (core.Order, error)
	ApplyVendorStatusEvent(ctx context.Context, event core.VendorStatusEvent) (core.PrintJob, core.Order, error)
	EnqueueJob(ctx context.Context, jobType core.JobType, orderID string, payload map[string]any) (core.Job, error)
	CancelOrder(ctx context.Context, orderID string) (core.Job, error)
}

type BatchDispatcher interface {
	Run(ctx context.Context) (core.DispatchStats, error)
}

// VendorEventResult carries both records touched by a vendor callback.
type VendorEventResult struct {
	PrintJob core.PrintJob
	Order    core.Order
}

type ApplyStorefrontEventCommand struct {
	service MutatingService
}

func NewApplyStorefrontEventCommand(service MutatingService) *ApplyStorefrontEventCommand {
	return &ApplyStorefrontEventCommand{service: service}
}

func (c *ApplyStorefrontEventCommand) Execute(ctx context.Context, msg ApplyStorefrontEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: storefront event service is required")
	}
	out, err := c.service.ApplyStorefrontOrderEvent(ctx, msg.Topic, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ApplyVendorEventCommand struct {
	service MutatingService
}

func NewApplyVendorEventCommand(service MutatingService) *ApplyVendorEventCommand {
	return &ApplyVendorEventCommand{service: service}
}

func (c *ApplyVendorEventCommand) Execute(ctx context.Context, msg ApplyVendorEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: vendor event service is required")
	}
	printJob, order, err := c.service.ApplyVendorStatusEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, VendorEventResult{PrintJob: printJob, Order: order})
	return nil
}

type EnqueueJobCommand struct {
	service MutatingService
}

func NewEnqueueJobCommand(service MutatingService) *EnqueueJobCommand {
	return &EnqueueJobCommand{service: service}
}

func (c *EnqueueJobCommand) Execute(ctx context.Context, msg EnqueueJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.EnqueueJob(ctx, msg.JobType, msg.OrderID, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchJobsCommand struct {
	dispatcher BatchDispatcher
}

func NewDispatchJobsCommand(dispatcher BatchDispatcher) *DispatchJobsCommand {
	return &DispatchJobsCommand{dispatcher: dispatcher}
}

func (c *DispatchJobsCommand) Execute(ctx context.Context, msg DispatchJobsMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: dispatcher is required")
	}
	stats, err := c.dispatcher.Run(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type CancelOrderCommand struct {
	service MutatingService
}

func NewCancelOrderCommand(service MutatingService) *CancelOrderCommand {
	return &CancelOrderCommand{service: service}
}

func (c *CancelOrderCommand) Execute(ctx context.Context, msg CancelOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel service is required")
	}
	out, err := c.service.CancelOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
