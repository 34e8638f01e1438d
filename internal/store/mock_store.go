// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/chatdesk/internal/widget"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.RWMutex
	agents       map[string]*Agent
	widgets      map[string]*widget.Config
	demos        map[string]*widget.Demo
	limits       map[string]*UsageLimit
	records      map[string]*UsageRecord
	tickets      map[string]*Ticket
	replies      map[string][]*TicketReply // keyed by ticket ID
	apiKeys      map[string]*APIKey        // keyed by ID
	apiKeyPrefix map[string]string         // prefix -> ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents:       make(map[string]*Agent),
		widgets:      make(map[string]*widget.Config),
		demos:        make(map[string]*widget.Demo),
		limits:       make(map[string]*UsageLimit),
		records:      make(map[string]*UsageRecord),
		tickets:      make(map[string]*Ticket),
		replies:      make(map[string][]*TicketReply),
		apiKeys:      make(map[string]*APIKey),
		apiKeyPrefix: make(map[string]string),
	}
}

// CreateAgent stores a new agent.
func (m *MockStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; ok {
		return ErrDuplicate
	}
	a := *agent
	m.agents[a.ID] = &a
	return nil
}

// GetAgent retrieves an agent by ID.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *a
	return &result, nil
}

// ListAgents returns agents for an owner ordered by name.
func (m *MockStore) ListAgents(ctx context.Context, ownerID string) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Agent
	for _, a := range m.agents {
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateAgent replaces an agent.
func (m *MockStore) UpdateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.agents[agent.ID]
	if !ok {
		return ErrNotFound
	}
	a := *agent
	a.OwnerID = existing.OwnerID
	a.CreatedAt = existing.CreatedAt
	m.agents[a.ID] = &a
	return nil
}

// DeleteAgent removes an agent.
func (m *MockStore) DeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

// CreateWidgetConfig stores a widget configuration.
func (m *MockStore) CreateWidgetConfig(ctx context.Context, cfg *widget.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[cfg.ID]; ok {
		return ErrDuplicate
	}
	c := *cfg
	m.widgets[c.ID] = &c
	return nil
}

// GetWidgetConfig retrieves a widget configuration.
func (m *MockStore) GetWidgetConfig(ctx context.Context, id string) (*widget.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.widgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// ListWidgetConfigs returns widget configurations for an owner, newest first.
func (m *MockStore) ListWidgetConfigs(ctx context.Context, ownerID string) ([]*widget.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*widget.Config
	for _, c := range m.widgets {
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateWidgetConfig replaces a widget configuration.
func (m *MockStore) UpdateWidgetConfig(ctx context.Context, cfg *widget.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[cfg.ID]; !ok {
		return ErrNotFound
	}
	c := *cfg
	m.widgets[c.ID] = &c
	return nil
}

// DeleteWidgetConfig removes a widget configuration.
func (m *MockStore) DeleteWidgetConfig(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.widgets[id]; !ok {
		return ErrNotFound
	}
	delete(m.widgets, id)
	return nil
}

// CreateDemo stores a demo.
func (m *MockStore) CreateDemo(ctx context.Context, demo *widget.Demo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.demos[demo.ID]; ok {
		return ErrDuplicate
	}
	d := *demo
	m.demos[d.ID] = &d
	return nil
}

// GetDemo retrieves a demo.
func (m *MockStore) GetDemo(ctx context.Context, id string) (*widget.Demo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.demos[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *d
	return &result, nil
}

// ListDemos returns demos for an owner, newest first.
func (m *MockStore) ListDemos(ctx context.Context, ownerID string) ([]*widget.Demo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*widget.Demo
	for _, d := range m.demos {
		if ownerID != "" && d.OwnerID != ownerID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateDemo replaces a demo's config and limit, keeping its used count.
func (m *MockStore) UpdateDemo(ctx context.Context, demo *widget.Demo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.demos[demo.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Config = demo.Config
	existing.UsageLimit = demo.UsageLimit
	existing.UpdatedAt = demo.UpdatedAt
	return nil
}

// DeleteDemo removes a demo.
func (m *MockStore) DeleteDemo(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.demos[id]; !ok {
		return ErrNotFound
	}
	delete(m.demos, id)
	return nil
}

// IncrementDemoUsage adds one to a demo's used count.
func (m *MockStore) IncrementDemoUsage(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.demos[id]
	if !ok {
		return 0, ErrNotFound
	}
	d.UsedCount++
	return d.UsedCount, nil
}

// GetUsageLimit retrieves a connection's usage limit.
func (m *MockStore) GetUsageLimit(ctx context.Context, connectionID string) (*UsageLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.limits[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *l
	return &result, nil
}

// SaveUsageLimit upserts a connection's usage limit.
func (m *MockStore) SaveUsageLimit(ctx context.Context, limit *UsageLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := *limit
	m.limits[l.ConnectionID] = &l
	return nil
}

// AddUsageRecord appends a usage history entry.
func (m *MockStore) AddUsageRecord(ctx context.Context, record *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *record
	m.records[r.ID] = &r
	return nil
}

// ListUsageRecords returns a connection's history, newest first.
func (m *MockStore) ListUsageRecords(ctx context.Context, connectionID string, limit int) ([]*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*UsageRecord
	for _, r := range m.records {
		if r.ConnectionID != connectionID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetUsageRecord returns a copy of a history entry.
func (m *MockStore) GetUsageRecord(ctx context.Context, id string) (*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// DeleteUsageRecord removes a history entry.
func (m *MockStore) DeleteUsageRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// ClearUsageRecords removes all history for a connection.
func (m *MockStore) ClearUsageRecords(ctx context.Context, connectionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.records {
		if r.ConnectionID == connectionID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// CreateTicket stores a ticket.
func (m *MockStore) CreateTicket(ctx context.Context, ticket *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[ticket.ID]; ok {
		return ErrDuplicate
	}
	t := *ticket
	m.tickets[t.ID] = &t
	return nil
}

// GetTicket retrieves a ticket.
func (m *MockStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// ListTickets returns tickets matching the filter, newest first.
func (m *MockStore) ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Ticket
	for _, t := range m.tickets {
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateTicket replaces a ticket.
func (m *MockStore) UpdateTicket(ctx context.Context, ticket *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[ticket.ID]; !ok {
		return ErrNotFound
	}
	t := *ticket
	m.tickets[t.ID] = &t
	return nil
}

// AddTicketReply appends a reply to an existing ticket.
func (m *MockStore) AddTicketReply(ctx context.Context, reply *TicketReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[reply.TicketID]; !ok {
		return ErrNotFound
	}
	r := *reply
	m.replies[r.TicketID] = append(m.replies[r.TicketID], &r)
	return nil
}

// ListTicketReplies returns a ticket's replies, oldest first.
func (m *MockStore) ListTicketReplies(ctx context.Context, ticketID string) ([]*TicketReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TicketReply, 0, len(m.replies[ticketID]))
	for _, r := range m.replies[ticketID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// CreateAPIKey stores an API key.
func (m *MockStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[key.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.apiKeyPrefix[key.Prefix]; ok {
		return ErrDuplicate
	}
	k := *key
	m.apiKeys[k.ID] = &k
	m.apiKeyPrefix[k.Prefix] = k.ID
	return nil
}

// GetAPIKeyByPrefix retrieves an API key by prefix.
func (m *MockStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.apiKeyPrefix[prefix]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.apiKeys[id]
	return &result, nil
}

// ListAPIKeys returns an owner's API keys, newest first.
func (m *MockStore) ListAPIKeys(ctx context.Context, ownerID string) ([]*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*APIKey
	for _, k := range m.apiKeys {
		if k.OwnerID != ownerID {
			continue
		}
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteAPIKey removes an API key.
func (m *MockStore) DeleteAPIKey(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.apiKeyPrefix, k.Prefix)
	delete(m.apiKeys, id)
	return nil
}

// TouchAPIKey records key usage.
func (m *MockStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	k.LastUsedAt = &t
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements the Store interface.
var _ Store = (*MockStore)(nil)
