//go:build wireinject
// +build wireinject

package main

import (
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/client"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/lock"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/notify"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/presence"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/roundrobin"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/store"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/workload"

	"github.com/google/wire"
)

func Setup() (*Server, func(), error) {
	wire.Build(
		ProvideServer,
		ProvideApplication,
		ProvideListeners,

		config.ProvideConfig,
		config.ProvideRuntimeConfig,

		infra.ProvideLoggerFactory,
		infra.ProvideRedisClient,
		infra.ProvidePostgres,
		infra.ProvideHttpClient,

		store.ProvideAgentStore,
		store.ProvideQueueStore,
		store.ProvideTicketStore,
		store.ProvideContactStore,

		presence.ProvideTracker,
		lock.ProvideLocker,
		roundrobin.ProvideCursor,
		workload.ProvideQuery,

		distribution.ProvideStats,
		distribution.ProvideEngine,

		client.ProvideHub,
		wire.Bind(new(client.PresenceRecorder), new(*presence.Tracker)),

		notify.ProvideWebhook,
	)
	return nil, nil, nil
}
