// ABOUTME: chatdesk-admin subcommands: agents, keys, token, demos, usage and tickets
// ABOUTME: Each command is a kong struct whose Run method receives the shared app

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/usage"
)

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

func (a *app) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.out, "✓ "+format+"\n", args...)
}

func (a *app) heading(title string) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintln(a.out, title)
	cyan.Fprintln(a.out, strings.Repeat("=", len(title)))
	fmt.Fprintln(a.out)
}

// --- agents ---

type agentsCmd struct {
	List   agentsListCmd   `cmd:"" help:"List an owner's agents."`
	Create agentsCreateCmd `cmd:"" help:"Create an agent."`
	Delete agentsDeleteCmd `cmd:"" help:"Delete an agent."`
}

type agentsListCmd struct {
	Owner string `required:"" help:"Owner id."`
}

func (c *agentsListCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	agents, err := st.ListAgents(a.ctx, c.Owner)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}

	a.heading("Agents")
	if len(agents) == 0 {
		fmt.Fprintln(a.out, "  No agents.")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "  ID\tNAME\tMODEL\tTEMP\tCREATED")
	fmt.Fprintln(w, "  --\t----\t-----\t----\t-------")
	for _, ag := range agents {
		model := ag.Model
		if model == "" {
			model = "(default)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%.1f\t%s\n", ag.ID, truncate(ag.Name, 24), model, ag.Temperature, ag.CreatedAt.Format("Jan 02 15:04"))
	}
	return w.Flush()
}

type agentsCreateCmd struct {
	Owner       string  `required:"" help:"Owner id."`
	Name        string  `required:"" help:"Display name."`
	Prompt      string  `help:"System prompt."`
	PromptFile  string  `type:"path" help:"Read the system prompt from a file."`
	Model       string  `help:"Model override; empty uses the provider default."`
	Temperature float64 `default:"0.7" help:"Sampling temperature (0-2)."`
}

func (c *agentsCreateCmd) Run(a *app) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name must not be blank")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}
	prompt := c.Prompt
	if c.PromptFile != "" {
		data, err := os.ReadFile(c.PromptFile)
		if err != nil {
			return fmt.Errorf("reading prompt file: %w", err)
		}
		prompt = string(data)
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	now := a.now()
	ag := &store.Agent{
		ID:           uuid.New().String(),
		OwnerID:      c.Owner,
		Name:         strings.TrimSpace(c.Name),
		SystemPrompt: prompt,
		Model:        c.Model,
		Temperature:  c.Temperature,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.CreateAgent(a.ctx, ag); err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	a.success("Created agent: %s", ag.ID)
	fmt.Fprintf(a.out, "  Name:   %s\n", ag.Name)
	fmt.Fprintf(a.out, "  Owner:  %s\n", ag.OwnerID)
	return nil
}

type agentsDeleteCmd struct {
	ID string `arg:"" help:"Agent id."`
}

func (c *agentsDeleteCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	if err := st.DeleteAgent(a.ctx, c.ID); err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}
	a.success("Deleted agent: %s", c.ID)
	return nil
}

// --- api keys ---

type keysCmd struct {
	List   keysListCmd   `cmd:"" help:"List an owner's API keys."`
	Create keysCreateCmd `cmd:"" help:"Create an API key and print it once."`
	Revoke keysRevokeCmd `cmd:"" help:"Revoke an API key."`
}

type keysListCmd struct {
	Owner string `required:"" help:"Owner id."`
}

func (c *keysListCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	keys, err := st.ListAPIKeys(a.ctx, c.Owner)
	if err != nil {
		return fmt.Errorf("listing api keys: %w", err)
	}

	a.heading("API Keys")
	if len(keys) == 0 {
		fmt.Fprintln(a.out, "  No API keys.")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "  ID\tNAME\tPREFIX\tLAST USED")
	fmt.Fprintln(w, "  --\t----\t------\t---------")
	for _, k := range keys {
		last := "never"
		if k.LastUsedAt != nil {
			last = k.LastUsedAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s...\t%s\n", k.ID, truncate(k.Name, 24), k.Prefix, last)
	}
	return w.Flush()
}

type keysCreateCmd struct {
	Owner string `required:"" help:"Owner id."`
	Name  string `required:"" help:"Label for the key."`
}

func (c *keysCreateCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	plaintext, key, err := a.apiKeys(st).Create(a.ctx, c.Owner, c.Name)
	if err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}
	a.success("Created API key: %s", key.ID)
	fmt.Fprintf(a.out, "  Key:  %s\n", plaintext)
	color.New(color.FgYellow).Fprintln(a.out, "  Store it now; it cannot be shown again.")
	return nil
}

type keysRevokeCmd struct {
	ID string `arg:"" help:"API key id."`
}

func (c *keysRevokeCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	if err := st.DeleteAPIKey(a.ctx, c.ID); err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	a.success("Revoked API key: %s", c.ID)
	return nil
}

// --- token ---

type tokenCmd struct {
	Owner string        `required:"" help:"Owner id the token authenticates as."`
	TTL   time.Duration `name:"ttl" default:"720h" help:"Token lifetime."`
	Out   string        `type:"path" help:"Write the token to this file instead of stdout."`
}

func (c *tokenCmd) Run(a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(c.Owner, c.TTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	if c.Out == "" {
		fmt.Fprintln(a.out, token)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(c.Out, []byte(token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	a.success("Saved token for %s to %s", c.Owner, c.Out)
	return nil
}

// --- demos ---

type demosCmd struct {
	List  demosListCmd  `cmd:"" help:"List an owner's demos with their usage."`
	Reset demosResetCmd `cmd:"" help:"Reset a demo's used count, optionally changing its limit."`
}

type demosListCmd struct {
	Owner string `required:"" help:"Owner id."`
}

func (c *demosListCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	demos, err := st.ListDemos(a.ctx, c.Owner)
	if err != nil {
		return fmt.Errorf("listing demos: %w", err)
	}

	a.heading("Demos")
	if len(demos) == 0 {
		fmt.Fprintln(a.out, "  No demos.")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "  ID\tNAME\tUSED\tLIMIT\tSTATE")
	fmt.Fprintln(w, "  --\t----\t----\t-----\t-----")
	for _, d := range demos {
		limit := "unlimited"
		if d.UsageLimit > 0 {
			limit = fmt.Sprint(d.UsageLimit)
		}
		state := "open"
		if d.LimitReached() {
			state = "exhausted"
		}
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n", d.ID, truncate(d.Config.Name, 24), d.UsedCount, limit, state)
	}
	return w.Flush()
}

type demosResetCmd struct {
	ID    string `arg:"" help:"Demo id."`
	Limit int    `default:"-1" help:"New usage limit, 0 for unlimited; negative keeps the current one."`
}

func (c *demosResetCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	demo, err := st.GetDemo(a.ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading demo: %w", err)
	}
	demo.UsedCount = 0
	if c.Limit >= 0 {
		demo.UsageLimit = c.Limit
	}
	demo.UpdatedAt = a.now()
	if err := st.UpdateDemo(a.ctx, demo); err != nil {
		return fmt.Errorf("updating demo: %w", err)
	}
	a.success("Reset demo %s (limit %d)", demo.ID, demo.UsageLimit)
	return nil
}

// --- usage ---

type usageCmd struct {
	Show usageShowCmd `cmd:"" help:"Show a connection's limit and recent history."`
	Set  usageSetCmd  `cmd:"" help:"Change a connection's limit."`
}

type usageShowCmd struct {
	Connection string `arg:"" help:"Widget config id."`
	History    int    `default:"10" help:"Number of history records to show."`
}

func (c *usageShowCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	svc := a.usage(st)
	limit, err := svc.Get(a.ctx, c.Connection)
	if err != nil {
		return err
	}

	a.heading("Usage: " + c.Connection)
	state := color.New(color.FgYellow).Sprint("disabled")
	if limit.Enabled {
		state = color.New(color.FgGreen).Sprint("enabled")
	}
	fmt.Fprintf(a.out, "  State:    %s\n", state)
	fmt.Fprintf(a.out, "  Used:     %d / %d\n", limit.UsedCount, limit.Limit)
	fmt.Fprintf(a.out, "  Period:   %d days (%s - %s)\n", limit.PeriodDays,
		limit.PeriodStart.Format("Jan 02, 2006"), limit.PeriodEnd().Format("Jan 02, 2006"))
	fmt.Fprintf(a.out, "  Overage:  %t\n", limit.Overage)

	records, err := svc.History(a.ctx, c.Connection, c.History)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	fmt.Fprintln(a.out)
	w := a.table()
	fmt.Fprintln(w, "  COUNT\tOVERAGE\tAT")
	fmt.Fprintln(w, "  -----\t-------\t--")
	for _, r := range records {
		fmt.Fprintf(w, "  %d\t%t\t%s\n", r.Count, r.Overage, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

type usageSetCmd struct {
	Connection string `arg:"" help:"Widget config id."`
	Limit      int    `required:"" help:"Messages allowed per period."`
	Period     int    `default:"30" help:"Period length in days (30, 90 or 365)."`
	Disable    bool   `help:"Store the limit but do not enforce it."`
	Overage    bool   `help:"Keep answering past the limit and flag the records."`
	Confirm    bool   `help:"Allow a period change that resets the counter."`
}

func (c *usageSetCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	limit, err := a.usage(st).Update(a.ctx, c.Connection, usage.Settings{
		Enabled:    !c.Disable,
		Limit:      c.Limit,
		PeriodDays: c.Period,
		Overage:    c.Overage,
	}, c.Confirm)
	if errors.Is(err, usage.ErrConfirmationRequired) {
		return fmt.Errorf("%w (pass --confirm)", err)
	}
	if err != nil {
		return err
	}
	a.success("Updated usage limit for %s: %d per %d days", limit.ConnectionID, limit.Limit, limit.PeriodDays)
	return nil
}

// --- tickets ---

type ticketsCmd struct {
	List   ticketsListCmd   `cmd:"" help:"List tickets across all owners."`
	Show   ticketsShowCmd   `cmd:"" help:"Show a ticket and its replies."`
	Reply  ticketsReplyCmd  `cmd:"" help:"Post a staff reply."`
	Status ticketsStatusCmd `cmd:"" help:"Change a ticket's status."`
}

type ticketsListCmd struct {
	Status string `help:"Only tickets with this status (open, in_progress, resolved, closed)."`
	Owner  string `help:"Only tickets of this owner."`
	Limit  int    `default:"50" help:"Maximum tickets to list."`
}

func (c *ticketsListCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	tickets, err := st.ListTickets(a.ctx, store.TicketFilter{OwnerID: c.Owner, Status: c.Status, Limit: c.Limit})
	if err != nil {
		return fmt.Errorf("listing tickets: %w", err)
	}

	a.heading("Tickets")
	if len(tickets) == 0 {
		fmt.Fprintln(a.out, "  No tickets.")
		return nil
	}
	w := a.table()
	fmt.Fprintln(w, "  ID\tSTATUS\tPRIORITY\tCATEGORY\tSUBJECT\tUPDATED")
	fmt.Fprintln(w, "  --\t------\t--------\t--------\t-------\t-------")
	for _, t := range tickets {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Category, truncate(t.Subject, 32), t.UpdatedAt.Format("Jan 02 15:04"))
	}
	return w.Flush()
}

type ticketsShowCmd struct {
	ID string `arg:"" help:"Ticket id."`
}

func (c *ticketsShowCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	t, err := st.GetTicket(a.ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading ticket: %w", err)
	}
	replies, err := st.ListTicketReplies(a.ctx, c.ID)
	if err != nil {
		return fmt.Errorf("listing replies: %w", err)
	}

	a.heading(t.Subject)
	fmt.Fprintf(a.out, "  ID:        %s\n", t.ID)
	fmt.Fprintf(a.out, "  Owner:     %s\n", t.OwnerID)
	fmt.Fprintf(a.out, "  Status:    %s\n", t.Status)
	fmt.Fprintf(a.out, "  Priority:  %s\n", t.Priority)
	fmt.Fprintf(a.out, "  Category:  %s\n", t.Category)
	fmt.Fprintf(a.out, "\n  %s\n", t.Description)

	gray := color.New(color.FgHiBlack)
	for _, r := range replies {
		fmt.Fprintln(a.out)
		who := r.Author
		if r.Staff {
			who += " (staff)"
		}
		gray.Fprintf(a.out, "  %s, %s\n", who, r.CreatedAt.Format("Jan 02 15:04"))
		fmt.Fprintf(a.out, "  %s\n", r.Body)
	}
	return nil
}

type ticketsReplyCmd struct {
	ID     string `arg:"" help:"Ticket id."`
	Body   string `required:"" help:"Reply text."`
	Author string `default:"support" help:"Name shown on the reply."`
}

func (c *ticketsReplyCmd) Run(a *app) error {
	if strings.TrimSpace(c.Body) == "" {
		return errors.New("reply body must not be blank")
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	t, err := st.GetTicket(a.ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading ticket: %w", err)
	}
	now := a.now()
	reply := &store.TicketReply{
		ID:        uuid.New().String(),
		TicketID:  t.ID,
		Author:    c.Author,
		Body:      strings.TrimSpace(c.Body),
		Staff:     true,
		CreatedAt: now,
	}
	if err := st.AddTicketReply(a.ctx, reply); err != nil {
		return fmt.Errorf("adding reply: %w", err)
	}
	if t.Status == store.TicketStatusOpen {
		t.Status = store.TicketStatusInProgress
	}
	t.UpdatedAt = now
	if err := st.UpdateTicket(a.ctx, t); err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	a.success("Replied to %s", t.ID)
	return nil
}

type ticketsStatusCmd struct {
	ID     string `arg:"" help:"Ticket id."`
	Status string `arg:"" enum:"open,in_progress,resolved,closed" help:"New status."`
}

func (c *ticketsStatusCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	t, err := st.GetTicket(a.ctx, c.ID)
	if err != nil {
		return fmt.Errorf("loading ticket: %w", err)
	}
	now := a.now()
	t.Status = c.Status
	t.UpdatedAt = now
	switch c.Status {
	case store.TicketStatusResolved:
		t.ResolvedAt = &now
	case store.TicketStatusOpen, store.TicketStatusInProgress:
		t.ResolvedAt = nil
	}
	if err := st.UpdateTicket(a.ctx, t); err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	a.success("Ticket %s is now %s", t.ID, t.Status)
	return nil
}
