// ABOUTME: Admin CLI for chatdesk operators, working directly on the gateway database
// ABOUTME: Manages agents, API keys, demos, usage limits and staff ticket replies

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/2389/chatdesk/internal/auth"
	"github.com/2389/chatdesk/internal/config"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/usage"
)

const banner = `
       _           _      _           _                 _           _
   ___| |__   __ _| |_ __| | ___  ___| | __   __ _  __| |_ __ ___ (_)_ __
  / __| '_ \ / _' | __/ _' |/ _ \/ __| |/ /  / _' |/ _' | '_ ' _ \| | '_ \
 | (__| | | | (_| | || (_| |  __/\__ \   <  | (_| | (_| | | | | | | | | | |
  \___|_| |_|\__,_|\__\__,_|\___||___/_|\_\  \__,_|\__,_|_| |_| |_|_|_| |_|
`

type cli struct {
	Config string `type:"path" env:"CHATDESK_CONFIG" help:"Gateway config file (default: XDG config dir)."`
	DB     string `type:"path" help:"SQLite database path; overrides database.path from the config."`

	Agents  agentsCmd  `cmd:"" help:"Manage agents."`
	Keys    keysCmd    `cmd:"" help:"Manage dashboard API keys."`
	Token   tokenCmd   `cmd:"" help:"Issue a dashboard JWT for an owner."`
	Demos   demosCmd   `cmd:"" help:"Inspect and reset demos."`
	Usage   usageCmd   `cmd:"" help:"Inspect and change connection usage limits."`
	Tickets ticketsCmd `cmd:"" help:"Work the support ticket queue."`
	Banner  bannerCmd  `cmd:"" hidden:"" help:"Print the banner."`
}

// app carries what commands need. The store is opened on first use so that
// commands which only read the config do not touch the database.
type app struct {
	ctx    context.Context
	cli    *cli
	out    io.Writer
	now    func() time.Time
	logger *slog.Logger

	store   store.Store
	cfg     *config.Config
	keyCost int
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	path := a.cli.Config
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) openStore() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.cli.DB
	if path == "" {
		cfg, err := a.config()
		if err != nil {
			return nil, err
		}
		path = cfg.Database.Path
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	a.store = st
	return st, nil
}

func (a *app) apiKeys(st store.Store) *auth.APIKeys {
	keys := auth.NewAPIKeys(st, a.logger)
	if a.keyCost > 0 {
		keys.SetCost(a.keyCost)
	}
	return keys
}

func (a *app) usage(st store.Store) *usage.Service {
	return usage.NewService(st, a.logger, usage.WithClock(a.now))
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func newParser(c *cli, out io.Writer) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("chatdesk-admin"),
		kong.Description("Operator tooling for a chatdesk gateway database."),
		kong.UsageOnError(),
		kong.Writers(out, out),
	)
}

func main() {
	if _, err := config.LoadEnvFiles(".env"); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	c := &cli{}
	parser, err := newParser(c, os.Stdout)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	a := &app{
		ctx:    context.Background(),
		cli:    c,
		out:    os.Stdout,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	defer a.close()

	if err := ctx.Run(a); err != nil {
		a.close()
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

type bannerCmd struct{}

func (bannerCmd) Run(a *app) error {
	color.New(color.FgCyan).Fprint(a.out, banner)
	return nil
}
