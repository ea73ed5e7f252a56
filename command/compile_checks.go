package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ApplyStorefrontEventMessage] = (*ApplyStorefrontEventCommand)(nil)
	_ gocmd.Commander[ApplyVendorEventMessage]     = (*ApplyVendorEventCommand)(nil)
	_ gocmd.Commander[EnqueueJobMessage]           = (*EnqueueJobCommand)(nil)
	_ gocmd.Commander[DispatchJobsMessage]         = (*DispatchJobsCommand)(nil)
	_ gocmd.Commander[CancelOrderMessage]          = (*CancelOrderCommand)(nil)
)
