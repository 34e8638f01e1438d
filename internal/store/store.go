// ABOUTME: Store interfaces and data types for chatdesk persistence
// ABOUTME: Defines agents, widget configs, demos, usage limits, tickets and API keys

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/chatdesk/internal/widget"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when trying to create an entity whose id already exists
var ErrDuplicate = errors.New("already exists")

// Agent is a prompt-configured chat agent that widgets route requests to
type Agent struct {
	ID           string
	OwnerID      string
	Name         string
	SystemPrompt string
	Model        string // empty uses the provider default
	Temperature  float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UsageLimit is a per-connection message quota
type UsageLimit struct {
	ConnectionID string
	Enabled      bool
	Limit        int
	PeriodDays   int // 30, 90 or 365
	Overage      bool
	UsedCount    int
	PeriodStart  time.Time
	UpdatedAt    time.Time
}

// PeriodEnd returns when the current counting period ends.
func (u *UsageLimit) PeriodEnd() time.Time {
	return u.PeriodStart.AddDate(0, 0, u.PeriodDays)
}

// UsageRecord is one entry in a connection's usage history
type UsageRecord struct {
	ID           string
	ConnectionID string
	Count        int // counter value after this record
	Overage      bool
	CreatedAt    time.Time
}

// Ticket status values
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Ticket priority values
const (
	TicketPriorityLow    = "low"
	TicketPriorityMedium = "medium"
	TicketPriorityHigh   = "high"
	TicketPriorityUrgent = "urgent"
)

// Ticket category values
const (
	TicketCategoryBilling   = "billing"
	TicketCategoryTechnical = "technical"
	TicketCategoryAgent     = "agent"
	TicketCategoryGeneral   = "general"
)

// Ticket is a customer support ticket
type Ticket struct {
	ID          string
	OwnerID     string
	Subject     string
	Description string
	Category    string
	Status      string
	Priority    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// TicketReply is a message on a support ticket thread
type TicketReply struct {
	ID        string
	TicketID  string
	Author    string
	Body      string
	Staff     bool
	CreatedAt time.Time
}

// TicketFilter narrows ListTickets results; empty fields match everything
type TicketFilter struct {
	OwnerID string
	Status  string
	Limit   int
}

// APIKey is a hashed dashboard API key
type APIKey struct {
	ID         string
	OwnerID    string
	Name       string
	Prefix     string // first characters of the plaintext, for display
	Hash       []byte // bcrypt hash of the plaintext
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// AgentStore persists agents
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context, ownerID string) ([]*Agent, error)
	UpdateAgent(ctx context.Context, agent *Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

// WidgetStore persists chatbot widget configurations and demos
type WidgetStore interface {
	CreateWidgetConfig(ctx context.Context, cfg *widget.Config) error
	GetWidgetConfig(ctx context.Context, id string) (*widget.Config, error)
	ListWidgetConfigs(ctx context.Context, ownerID string) ([]*widget.Config, error)
	UpdateWidgetConfig(ctx context.Context, cfg *widget.Config) error
	DeleteWidgetConfig(ctx context.Context, id string) error

	CreateDemo(ctx context.Context, demo *widget.Demo) error
	GetDemo(ctx context.Context, id string) (*widget.Demo, error)
	ListDemos(ctx context.Context, ownerID string) ([]*widget.Demo, error)
	UpdateDemo(ctx context.Context, demo *widget.Demo) error
	DeleteDemo(ctx context.Context, id string) error
	// IncrementDemoUsage adds one to the demo's used count and returns the new value
	IncrementDemoUsage(ctx context.Context, id string) (int, error)
}

// UsageStore persists usage limits and their history
type UsageStore interface {
	GetUsageLimit(ctx context.Context, connectionID string) (*UsageLimit, error)
	SaveUsageLimit(ctx context.Context, limit *UsageLimit) error
	AddUsageRecord(ctx context.Context, record *UsageRecord) error
	ListUsageRecords(ctx context.Context, connectionID string, limit int) ([]*UsageRecord, error)
	GetUsageRecord(ctx context.Context, id string) (*UsageRecord, error)
	DeleteUsageRecord(ctx context.Context, id string) error
	ClearUsageRecords(ctx context.Context, connectionID string) (int64, error)
}

// TicketStore persists support tickets and replies
type TicketStore interface {
	CreateTicket(ctx context.Context, ticket *Ticket) error
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, error)
	UpdateTicket(ctx context.Context, ticket *Ticket) error
	AddTicketReply(ctx context.Context, reply *TicketReply) error
	ListTicketReplies(ctx context.Context, ticketID string) ([]*TicketReply, error)
}

// APIKeyStore persists hashed API keys
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID string) ([]*APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Store is the full persistence surface used by the gateway
type Store interface {
	AgentStore
	WidgetStore
	UsageStore
	TicketStore
	APIKeyStore

	// Close releases any resources held by the store
	Close() error
}
