package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	authclient "github.com/evdealer/authclient"
	"github.com/evdealer/authclient/session"
	"github.com/pterm/pterm"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var errNotSignedIn = errors.New("not signed in\n\nRun 'evauthctl login' first")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	server      string
	sessionFile string
	redisAddr   string
	locale      string
	verbose     bool
}

// NewRootCmd builds the evauthctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "evauthctl",
		Short: "Sign in to the dealer backend and call its API",
		Long: `evauthctl signs in to the EV dealer backend with a password or an
identity provider token, keeps the session on disk, and sends authenticated
requests on your behalf.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("EVAUTH_CONFIG"), "Path to a YAML config file")
	flags.StringVar(&opts.server, "server", "", "Backend base URL (overrides config)")
	flags.StringVar(&opts.sessionFile, "session-file", "", "Where the session is kept (default ~/.evauth/session.json)")
	flags.StringVar(&opts.redisAddr, "redis", "", "Redis address for the session-backed copy")
	flags.StringVar(&opts.locale, "locale", "", "Message locale: en or vi")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log client warnings to stderr")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newRefreshCmd(opts),
		newGetCmd(opts),
		newExportCmd(opts),
		newIdPCmd(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		pterm.Error.WithWriter(os.Stderr).Println(err)
		os.Exit(1)
	}
}

func (o *globalOptions) loadConfig() (authclient.Config, error) {
	cfg, err := authclient.LoadConfig(o.configPath)
	if err != nil {
		return authclient.Config{}, fmt.Errorf("load config: %w", err)
	}
	if o.server != "" {
		cfg.Backend.BaseURL = o.server
	}
	switch o.locale {
	case "":
	case "vi":
		cfg.Messages = authclient.MessagesVI()
	case "en":
		cfg.Messages = authclient.DefaultConfig().Messages
	default:
		return authclient.Config{}, fmt.Errorf("unsupported locale %q", o.locale)
	}

	switch {
	case o.sessionFile != "":
		cfg.Session.DurablePath = o.sessionFile
	case cfg.Session.DurablePath == "":
		path, err := session.DefaultDurablePath()
		if err != nil {
			return authclient.Config{}, err
		}
		cfg.Session.DurablePath = path
	}
	return cfg, nil
}

// newClient builds a client for one command. The returned func releases it.
func (o *globalOptions) newClient(cmd *cobra.Command) (*authclient.Client, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelError
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	b := authclient.New().WithConfig(cfg).WithLogger(logger)
	var rdb *redis.Client
	if o.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: o.redisAddr})
		b.WithRedis(rdb)
	}

	client, err := b.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, fmt.Errorf("build client: %w", err)
	}
	return client, func() {
		client.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
	}, nil
}

// describe renders a client error with its field errors for the terminal.
func describe(cfg authclient.Config, err error) error {
	msg, fields := cfg.Messages.ParseError(err)
	if len(fields) == 0 {
		return errors.New(msg)
	}
	out := msg
	for field, reason := range fields {
		out += fmt.Sprintf("\n  %s: %s", field, reason)
	}
	return errors.New(out)
}
