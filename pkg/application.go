package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/client"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/presence"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/roundrobin"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/store"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type TicketFinder interface {
	FindTicket(ctx context.Context, ticketID int64) (*model.Ticket, error)
}

type QueueFinder interface {
	FindQueue(ctx context.Context, queueID int64) (*model.Queue, error)
}

type Distributor interface {
	DistributeTicket(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*distribution.Result, error)
}

type PresenceAdmin interface {
	IsOnline(ctx context.Context, agentID int64) (bool, error)
	ListOnline(ctx context.Context) (map[int64]struct{}, error)
	Heartbeat(ctx context.Context, agentID int64) (bool, error)
	ForceOffline(ctx context.Context, agentID int64) error
}

type CursorAdmin interface {
	Reset(ctx context.Context, queueID int64) error
}

type StatsReader interface {
	Snapshot() distribution.StatsSnapshot
}

// Background loops started along with the server.
type Runner interface {
	Run(ctx context.Context)
}

// Kicker closes the local websocket connections of an agent.
type Kicker interface {
	Kick(agentId int64)
}

type Application struct {
	tickets     TicketFinder
	queues      QueueFinder
	distributor Distributor
	presence    PresenceAdmin
	cursor      CursorAdmin
	stats       StatsReader
	kicker      Kicker
	runners     []Runner

	hub               *client.Hub
	pingInterval      time.Duration
	distributeTimeout time.Duration
	wsUpgrader        *websocket.Upgrader
	logger            *zap.SugaredLogger
}

func ProvideApplication(
	config *config.Config,
	runtimeConfig *config.RuntimeConfig,
	hub *client.Hub,
	engine *distribution.Engine,
	stats *distribution.Stats,
	tracker *presence.Tracker,
	cursor *roundrobin.Cursor,
	ticketStore *store.TicketStore,
	queueStore *store.QueueStore,
	loggerFactory *infra.LoggerFactory,
) *Application {
	return &Application{
		tickets:     ticketStore,
		queues:      queueStore,
		distributor: engine,
		presence:    tracker,
		cursor:      cursor,
		stats:       stats,
		kicker:      hub,
		runners:     []Runner{runtimeConfig, hub},

		hub:               hub,
		pingInterval:      config.PingInterval(),
		distributeTimeout: config.DistributeTimeout(),
		wsUpgrader:        &websocket.Upgrader{},
		logger:            loggerFactory.Create("Application").Sugar(),
	}
}

func (a *Application) Run(ctx context.Context) {
	for _, runner := range a.runners {
		go runner.Run(ctx)
	}
}

func (a *Application) HandleWs(c echo.Context) error {
	rawAgentId := c.Request().Header.Get("agentId")
	if rawAgentId == "" {
		rawAgentId = c.QueryParam("agentId")
	}
	agentId, err := strconv.ParseInt(rawAgentId, 10, 64)
	if err != nil || agentId <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid agentId")
	}

	conn, err := a.wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client.NewClient(agentId, conn, a.hub, a.pingInterval).Run()
	return nil
}

func (a *Application) HandleDistribute(c echo.Context) error {
	ticketId, err := int64Param(c, "ticketId")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), a.distributeTimeout)
	defer cancel()

	ticket, err := a.tickets.FindTicket(ctx, ticketId)
	if err != nil {
		return a.storeError(err, "ticketId[%v] cannot load ticket", ticketId)
	}
	queue, err := a.queues.FindQueue(ctx, ticket.QueueID)
	if err != nil {
		return a.storeError(err, "ticketId[%v] queueId[%v] cannot load queue", ticketId, ticket.QueueID)
	}

	result, err := a.distributor.DistributeTicket(ctx, ticket, queue)
	if err != nil {
		a.logger.Errorf("ticketId[%v] distribution failed, ticket stays unassigned %v", ticketId, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "distribution failed")
	}

	return c.JSON(http.StatusOK, result)
}

func (a *Application) HandleListOnline(c echo.Context) error {
	online, err := a.presence.ListOnline(c.Request().Context())
	if err != nil {
		a.logger.Errorf("cannot list online agents %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	agentIds := make([]int64, 0, len(online))
	for agentId := range online {
		agentIds = append(agentIds, agentId)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agentIds": agentIds})
}

func (a *Application) HandleIsOnline(c echo.Context) error {
	agentId, err := int64Param(c, "agentId")
	if err != nil {
		return err
	}

	online, err := a.presence.IsOnline(c.Request().Context(), agentId)
	if err != nil {
		a.logger.Errorf("agentId[%v] cannot check presence %v", agentId, err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agentId": agentId, "online": online})
}

func (a *Application) HandleHeartbeat(c echo.Context) error {
	agentId, err := int64Param(c, "agentId")
	if err != nil {
		return err
	}

	online, err := a.presence.Heartbeat(c.Request().Context(), agentId)
	if err != nil {
		a.logger.Errorf("agentId[%v] cannot refresh presence %v", agentId, err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agentId": agentId, "online": online})
}

func (a *Application) HandleForceOffline(c echo.Context) error {
	agentId, err := int64Param(c, "agentId")
	if err != nil {
		return err
	}

	if err := a.presence.ForceOffline(c.Request().Context(), agentId); err != nil {
		a.logger.Errorf("agentId[%v] cannot force offline %v", agentId, err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	a.kicker.Kick(agentId)

	a.logger.Infof("agentId[%v] forced offline", agentId)
	return c.NoContent(http.StatusNoContent)
}

func (a *Application) HandleResetCursor(c echo.Context) error {
	queueId, err := int64Param(c, "queueId")
	if err != nil {
		return err
	}

	if err := a.cursor.Reset(c.Request().Context(), queueId); err != nil {
		a.logger.Errorf("queueId[%v] cannot reset cursor %v", queueId, err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	a.logger.Infof("queueId[%v] round-robin cursor reset", queueId)
	return c.NoContent(http.StatusNoContent)
}

func (a *Application) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, a.stats.Snapshot())
}

func (a *Application) storeError(err error, template string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	a.logger.Errorf(template+" %v", append(args, err)...)
	return echo.NewHTTPError(http.StatusInternalServerError)
}

func int64Param(c echo.Context, name string) (int64, error) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return value, nil
}
