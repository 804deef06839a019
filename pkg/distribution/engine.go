// Package distribution decides which agent receives a newly created ticket.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/lock"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/presence"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/roundrobin"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/store"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/workload"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix = "distribution:lock:queue:"

	// Upper bound for releasing a lock once the call's own context is done.
	releaseTimeout = time.Second
)

var ErrMissingInput = errors.New("distribution: ticket and queue are required")

type AgentStore interface {
	FindAgent(ctx context.Context, agentID int64) (*model.Agent, error)
	ListQueueAgents(ctx context.Context, queueID int64) ([]*model.Agent, error)
	IsQueueMember(ctx context.Context, agentID, queueID int64) (bool, error)
	TouchLastAssignment(ctx context.Context, agentID int64, at time.Time) error
}

type TicketStore interface {
	AssignTicket(ctx context.Context, ticketID, agentID int64) error
}

type ContactStore interface {
	FindContact(ctx context.Context, contactID int64) (*model.Contact, error)
}

type Presence interface {
	IsOnline(ctx context.Context, agentID int64) (bool, error)
	ListOnline(ctx context.Context) (map[int64]struct{}, error)
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*lock.Lease, error)
	Release(ctx context.Context, lease *lock.Lease) error
}

type Cursor interface {
	Next(ctx context.Context, queueID int64, eligibleCount int) (int, error)
}

type WorkloadRanker interface {
	Rank(ctx context.Context, queueID int64, candidateIDs []int64) ([]workload.Ranked, error)
}

// Policy holds the switches operators can flip at run time.
type Policy interface {
	LockFailClosed() bool
	IsAutoDistributionEnabled() bool
}

type Deps struct {
	Agents    AgentStore
	Tickets   TicketStore
	Contacts  ContactStore
	Presence  Presence
	Locker    Locker
	Cursor    Cursor
	Workload  WorkloadRanker
	Policy    Policy
	Stats     *Stats
	Listeners Listeners
}

type Options struct {
	LockTtl        time.Duration
	LockMaxRetries int
}

// Engine is stateless between calls; every DistributeTicket call is an
// independent unit of work and all shared state lives in redis and
// postgres.
type Engine struct {
	Deps
	options Options

	now    func() time.Time
	logger *zap.SugaredLogger
}

func ProvideEngine(
	config *config.Config,
	runtimeConfig *config.RuntimeConfig,
	agentStore *store.AgentStore,
	ticketStore *store.TicketStore,
	contactStore *store.ContactStore,
	tracker *presence.Tracker,
	locker *lock.Locker,
	cursor *roundrobin.Cursor,
	query *workload.Query,
	stats *Stats,
	listeners Listeners,
	loggerFactory *infra.LoggerFactory,
) *Engine {
	return NewEngine(Deps{
		Agents:    agentStore,
		Tickets:   ticketStore,
		Contacts:  contactStore,
		Presence:  tracker,
		Locker:    locker,
		Cursor:    cursor,
		Workload:  query,
		Policy:    runtimeConfig,
		Stats:     stats,
		Listeners: listeners,
	}, Options{
		LockTtl:        config.LockTtl(),
		LockMaxRetries: *config.LockMaxRetries,
	}, loggerFactory)
}

func NewEngine(deps Deps, options Options, loggerFactory *infra.LoggerFactory) *Engine {
	if deps.Stats == nil {
		deps.Stats = NewStats(1)
	}
	return &Engine{
		Deps:    deps,
		options: options,
		now:     time.Now,
		logger:  loggerFactory.Create("Distribution").Sugar(),
	}
}

func lockKey(queueID int64) string {
	return lockKeyPrefix + strconv.FormatInt(queueID, 10)
}

// DistributeTicket picks an agent for the ticket according to the queue's
// strategy. When an agent is picked, its last assignment time is stamped
// and, if the ticket is already persisted (ID > 0), the ticket's owner is
// written too. These writes are independent of the redis lock and cursor
// updates; nothing here is transactional across the two stores.
//
// Errors are only returned for store failures. No agent available is a
// Result with a nil Agent.
func (e *Engine) DistributeTicket(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*Result, error) {
	if ticket == nil || queue == nil {
		return nil, ErrMissingInput
	}

	start := time.Now()
	result, err := e.distribute(ctx, ticket, queue)
	e.Stats.record(result, err, time.Since(start))

	if err != nil {
		e.logger.Errorf("ticket[%v] queue[%v] distribution failed %v", ticket.ID, queue.ID, err)
		return nil, err
	}

	e.logger.Infof("ticket[%v] queue[%v] strategy[%v] agent[%v] reason[%v]",
		ticket.ID, queue.ID, result.Strategy, agentID(result.Agent), result.Reason)

	if result.Assigned() {
		e.Listeners.OnAssigned(ctx, ticket, result)
	}
	return result, nil
}

func (e *Engine) distribute(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*Result, error) {
	if queue.Strategy == model.StrategyManual || queue.Strategy == "" {
		return noAgent(model.StrategyManual, ReasonManual), nil
	}
	if !queue.Strategy.IsAutomatic() {
		e.logger.Warnf("queue[%v] has unknown strategy[%v]", queue.ID, queue.Strategy)
		return noAgent(queue.Strategy, ReasonUnknownStrategy), nil
	}
	if !e.Policy.IsAutoDistributionEnabled() {
		return noAgent(queue.Strategy, ReasonAutoDisabled), nil
	}

	lease, err := e.Locker.Acquire(ctx, lockKey(queue.ID), e.options.LockTtl, e.options.LockMaxRetries)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.Stats.recordLockMiss()
		if e.Policy.LockFailClosed() {
			e.logger.Warnf("queue[%v] lock not acquired, leaving ticket[%v] for manual pickup %v", queue.ID, ticket.ID, err)
			return noAgent(queue.Strategy, ReasonLockUnavailable), nil
		}
		// Two racing calls may now pick the same agent.
		e.logger.Warnf("queue[%v] lock not acquired, distributing ticket[%v] unlocked %v", queue.ID, ticket.ID, err)
	} else {
		defer e.release(ctx, lease)
	}

	if queue.PrioritizeWallet {
		owner, err := e.walletOwner(ctx, ticket, queue)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			return e.assign(ctx, ticket, owner, queue.Strategy, ReasonWalletOwner)
		}
	}

	switch queue.Strategy {
	case model.StrategyAutoBalanced:
		return e.distributeBalanced(ctx, ticket, queue)
	default:
		return e.distributeRoundRobin(ctx, ticket, queue)
	}
}

func (e *Engine) release(ctx context.Context, lease *lock.Lease) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
	}
	if err := e.Locker.Release(ctx, lease); err != nil {
		e.logger.Warnf("release lock key[%v] failed %v", lease.Key, err)
	}
}

// walletOwner returns the contact's sticky owner if it may take the ticket,
// nil otherwise.
func (e *Engine) walletOwner(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*model.Agent, error) {
	if ticket.ContactID == 0 {
		e.logger.Debugf("ticket[%v] has no contact, skip wallet routing", ticket.ID)
		return nil, nil
	}

	contact, err := e.Contacts.FindContact(ctx, ticket.ContactID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Infof("ticket[%v] contact[%v] not found, skip wallet routing", ticket.ID, ticket.ContactID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if contact.WalletUserID == nil {
		e.logger.Debugf("contact[%v] has no wallet owner", contact.ID)
		return nil, nil
	}
	ownerID := *contact.WalletUserID

	owner, err := e.Agents.FindAgent(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Infof("contact[%v] wallet owner[%v] not found, falling back", contact.ID, ownerID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	isMember, err := e.Agents.IsQueueMember(ctx, ownerID, queue.ID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		e.logger.Infof("wallet owner[%v] is not in queue[%v], falling back", ownerID, queue.ID)
		return nil, nil
	}

	online, err := e.Presence.IsOnline(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !online {
		e.logger.Infof("wallet owner[%v] is offline, falling back", ownerID)
		return nil, nil
	}

	if owner.ExcludedFromAutoAssignment {
		e.logger.Infof("wallet owner[%v] is excluded from auto assignment, falling back", ownerID)
		return nil, nil
	}

	return owner, nil
}

// onlineQueueAgents returns the queue members that are online, ordered by
// id.
func (e *Engine) onlineQueueAgents(ctx context.Context, queue *model.Queue) ([]*model.Agent, error) {
	online, err := e.Presence.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	if len(online) == 0 {
		return nil, nil
	}

	members, err := e.Agents.ListQueueAgents(ctx, queue.ID)
	if err != nil {
		return nil, err
	}

	var agents []*model.Agent
	for _, member := range members {
		if _, ok := online[member.ID]; ok {
			agents = append(agents, member)
		}
	}
	return agents, nil
}

func (e *Engine) distributeBalanced(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*Result, error) {
	agents, err := e.onlineQueueAgents(ctx, queue)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return noAgent(queue.Strategy, ReasonNoOnlineUsers), nil
	}

	candidateIDs := make([]int64, len(agents))
	for i, agent := range agents {
		candidateIDs[i] = agent.ID
	}

	ranked, err := e.Workload.Rank(ctx, queue.ID, candidateIDs)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return noAgent(queue.Strategy, ReasonNoEligibleUsers), nil
	}

	top := ranked[0]
	e.logger.Debugf("queue[%v] lowest workload agent[%v] activeTickets[%v] of candidates[%v]",
		queue.ID, top.Agent.ID, top.ActiveTickets, len(ranked))
	return e.assign(ctx, ticket, top.Agent, queue.Strategy, ReasonLowestWorkload)
}

func (e *Engine) distributeRoundRobin(ctx context.Context, ticket *model.Ticket, queue *model.Queue) (*Result, error) {
	agents, err := e.onlineQueueAgents(ctx, queue)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return noAgent(queue.Strategy, ReasonNoOnlineUsers), nil
	}

	// Ordered by id so the cursor points at the same agent across calls
	// and processes.
	eligible := treemap.NewWith(utils.Int64Comparator)
	for _, agent := range agents {
		if agent.ExcludedFromAutoAssignment {
			continue
		}
		eligible.Put(agent.ID, agent)
	}
	if eligible.Empty() {
		return noAgent(queue.Strategy, ReasonNoEligibleUsers), nil
	}

	index, err := e.Cursor.Next(ctx, queue.ID, eligible.Size())
	if err != nil {
		return nil, err
	}

	picked := eligible.Values()[index].(*model.Agent)
	e.logger.Debugf("queue[%v] round-robin index[%v] of eligible[%v] agent[%v]",
		queue.ID, index, eligible.Size(), picked.ID)
	return e.assign(ctx, ticket, picked, queue.Strategy, ReasonRoundRobin)
}

func (e *Engine) assign(ctx context.Context, ticket *model.Ticket, agent *model.Agent, strategy model.Strategy, reason string) (*Result, error) {
	now := e.now()
	if err := e.Agents.TouchLastAssignment(ctx, agent.ID, now); err != nil {
		return nil, fmt.Errorf("stamp agent[%v]: %w", agent.ID, err)
	}
	agent.LastAssignmentAt = &now

	if ticket.ID > 0 {
		if err := e.Tickets.AssignTicket(ctx, ticket.ID, agent.ID); err != nil {
			return nil, fmt.Errorf("assign ticket[%v]: %w", ticket.ID, err)
		}
		ownerID := agent.ID
		ticket.UserID = &ownerID
	}

	return &Result{Agent: agent, Strategy: strategy, Reason: reason}, nil
}

func agentID(agent *model.Agent) interface{} {
	if agent == nil {
		return nil
	}
	return agent.ID
}
