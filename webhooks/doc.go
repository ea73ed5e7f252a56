// Package webhooks contains callback verification and routing components.
//
// Every inbound delivery is verified before any state is touched: a bad or
// missing signature is logged and rejected with 401 and nothing downstream
// runs. Accepted deliveries are handed to the source's handler and the
// outcome is written to the webhook log either way.
package webhooks
