package command

import (
	"strings"

	"github.com/goliatone/go-fulfillment/core"
)

const (
	TypeApplyStorefrontEvent = "fulfillment.command.storefront.apply"
	TypeApplyVendorEvent     = "fulfillment.command.vendor.apply"
	TypeEnqueueJob           = "fulfillment.command.job.enqueue"
	TypeDispatchJobs         = "fulfillment.command.jobs.dispatch"
	TypeCancelOrder          = "fulfillment.command.order.cancel"
)

type ApplyStorefrontEventMessage struct {
	Topic string
	Event core.StorefrontOrderEvent
}

func (ApplyStorefrontEventMessage) Type() string { return TypeApplyStorefrontEvent }

func (m ApplyStorefrontEventMessage) Validate() error {
	if strings.TrimSpace(m.Topic) == "" {
		return commandInvalidInputError("command: topic is required")
	}
	if strings.TrimSpace(m.Event.ExternalID) == "" {
		return commandInvalidInputError("command: external order id is required")
	}
	return nil
}

type ApplyVendorEventMessage struct {
	Event core.VendorStatusEvent
}

func (ApplyVendorEventMessage) Type() string { return TypeApplyVendorEvent }

func (m ApplyVendorEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.VendorJobID) == "" {
		return commandInvalidInputError("command: vendor job id is required")
	}
	if strings.TrimSpace(m.Event.Status) == "" {
		return commandInvalidInputError("command: vendor status is required")
	}
	return nil
}

type EnqueueJobMessage struct {
	JobType core.JobType
	OrderID string
	Payload map[string]any
}

func (EnqueueJobMessage) Type() string { return TypeEnqueueJob }

func (m EnqueueJobMessage) Validate() error {
	if _, err := core.ParseJobType(string(m.JobType)); err != nil {
		return commandInvalidInputError("command: " + err.Error())
	}
	if strings.TrimSpace(m.OrderID) == "" {
		return commandInvalidInputError("command: order id is required")
	}
	return nil
}

type DispatchJobsMessage struct{}

func (DispatchJobsMessage) Type() string { return TypeDispatchJobs }

func (DispatchJobsMessage) Validate() error { return nil }

type CancelOrderMessage struct {
	OrderID string
	Reason  string
}

func (CancelOrderMessage) Type() string { return TypeCancelOrder }

func (m CancelOrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return commandInvalidInputError("command: order id is required")
	}
	return nil
}
