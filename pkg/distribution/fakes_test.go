package distribution

import (
	"context"
	"sort"
	"sync"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/lock"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/store"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/workload"
)

// fakeDB plays the relational store: agents, queue memberships, tickets
// and contacts.
type fakeDB struct {
	agents   map[int64]*model.Agent
	members  map[int64][]int64
	contacts map[int64]*model.Contact

	// Active ticket counts per agent.
	active map[int64]int

	touched  []int64
	assigned map[int64]int64

	touchErr error
	rankErr  error

	mu sync.Mutex
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		agents:   make(map[int64]*model.Agent),
		members:  make(map[int64][]int64),
		contacts: make(map[int64]*model.Contact),
		active:   make(map[int64]int),
		assigned: make(map[int64]int64),
	}
}

func (f *fakeDB) addAgent(queueID, agentID int64, name string, excluded bool) {
	f.agents[agentID] = &model.Agent{ID: agentID, Name: name, ExcludedFromAutoAssignment: excluded}
	f.members[queueID] = append(f.members[queueID], agentID)
}

func (f *fakeDB) copyAgent(agentID int64) *model.Agent {
	agent := *f.agents[agentID]
	return &agent
}

func (f *fakeDB) FindAgent(ctx context.Context, agentID int64) (*model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[agentID]; !ok {
		return nil, store.ErrNotFound
	}
	return f.copyAgent(agentID), nil
}

func (f *fakeDB) ListQueueAgents(ctx context.Context, queueID int64) ([]*model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]int64(nil), f.members[queueID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var agents []*model.Agent
	for _, id := range ids {
		agents = append(agents, f.copyAgent(id))
	}
	return agents, nil
}

func (f *fakeDB) IsQueueMember(ctx context.Context, agentID, queueID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.members[queueID] {
		if id == agentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDB) TouchLastAssignment(ctx context.Context, agentID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.agents[agentID].LastAssignmentAt = &at
	f.touched = append(f.touched, agentID)
	return nil
}

func (f *fakeDB) AssignTicket(ctx context.Context, ticketID, agentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[ticketID] = agentID
	f.active[agentID]++
	return nil
}

func (f *fakeDB) FindContact(ctx context.Context, contactID int64) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contact, ok := f.contacts[contactID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return contact, nil
}

// Rank mirrors the SQL: members only, excluded dropped, fewest active
// tickets first, then oldest last assignment with never assigned first.
func (f *fakeDB) Rank(ctx context.Context, queueID int64, candidateIDs []int64) ([]workload.Ranked, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rankErr != nil {
		return nil, f.rankErr
	}

	isMember := make(map[int64]bool)
	for _, id := range f.members[queueID] {
		isMember[id] = true
	}

	var ranked []workload.Ranked
	for _, id := range candidateIDs {
		if !isMember[id] || f.agents[id].ExcludedFromAutoAssignment {
			continue
		}
		ranked = append(ranked, workload.Ranked{Agent: f.copyAgent(id), ActiveTickets: f.active[id]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ActiveTickets != b.ActiveTickets {
			return a.ActiveTickets < b.ActiveTickets
		}
		switch {
		case a.Agent.LastAssignmentAt == nil && b.Agent.LastAssignmentAt != nil:
			return true
		case a.Agent.LastAssignmentAt != nil && b.Agent.LastAssignmentAt == nil:
			return false
		case a.Agent.LastAssignmentAt != nil && !a.Agent.LastAssignmentAt.Equal(*b.Agent.LastAssignmentAt):
			return a.Agent.LastAssignmentAt.Before(*b.Agent.LastAssignmentAt)
		}
		return a.Agent.ID < b.Agent.ID
	})
	return ranked, nil
}

type fakePresence struct {
	online map[int64]bool
	calls  int
	mu     sync.Mutex
}

func newFakePresence(ids ...int64) *fakePresence {
	p := &fakePresence{online: make(map[int64]bool)}
	for _, id := range ids {
		p.online[id] = true
	}
	return p
}

func (p *fakePresence) IsOnline(ctx context.Context, agentID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.online[agentID], nil
}

func (p *fakePresence) ListOnline(ctx context.Context) (map[int64]struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	online := make(map[int64]struct{})
	for id, ok := range p.online {
		if ok {
			online[id] = struct{}{}
		}
	}
	return online, nil
}

type fakeLocker struct {
	acquireErr error
	acquired   int
	released   int
	mu         sync.Mutex
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*lock.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	l.acquired++
	return &lock.Lease{Key: key, Token: "t"}, nil
}

func (l *fakeLocker) Release(ctx context.Context, lease *lock.Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

// fakeCursor keeps the same self-healing semantics as the redis script.
type fakeCursor struct {
	stored map[int64]int
	calls  int
	mu     sync.Mutex
}

func newFakeCursor() *fakeCursor {
	return &fakeCursor{stored: make(map[int64]int)}
}

func (c *fakeCursor) Next(ctx context.Context, queueID int64, eligibleCount int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	index := c.stored[queueID]
	if index < 0 || index >= eligibleCount {
		index = 0
	}
	c.stored[queueID] = (index + 1) % eligibleCount
	return index, nil
}

type fakePolicy struct {
	failClosed  bool
	autoEnabled bool
}

func (p *fakePolicy) LockFailClosed() bool            { return p.failClosed }
func (p *fakePolicy) IsAutoDistributionEnabled() bool { return p.autoEnabled }

type recordingListener struct {
	results []*Result
	mu      sync.Mutex
}

func (l *recordingListener) OnAssigned(ctx context.Context, ticket *model.Ticket, result *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}
