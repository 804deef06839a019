package main

import (
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/client"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/notify"
)

// ProvideListeners lists who hears about an assignment: the agent's own
// websocket connections first, then the external webhook.
func ProvideListeners(hub *client.Hub, webhook *notify.Webhook) distribution.Listeners {
	return distribution.Listeners{hub, webhook}
}
