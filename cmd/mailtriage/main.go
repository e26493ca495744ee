// Command mailtriage fetches recent Gmail messages into a local SQLite
// store, evaluates the configured rules against them, and applies the
// matching rules' actions back to Gmail.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joshsymonds/mailtriage/internal/actions"
	"github.com/joshsymonds/mailtriage/internal/config"
	gc "github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/gmailctl"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/rules"
	"github.com/joshsymonds/mailtriage/internal/runtime"
	"github.com/joshsymonds/mailtriage/internal/store"
	"github.com/joshsymonds/mailtriage/internal/triage"
)

type cliFlags struct {
	configPath     string
	rules          string
	db             string
	max            int
	query          string
	rps            int
	dryRun         bool
	credentials    string
	token          string
	auth           string
	authDir        string
	createLabels   bool
	logLevel       string
	runs           int
	importGmailctl bool
	set            map[string]bool
}

func main() {
	cli := parseFlags()
	if err := run(cli); err != nil {
		runtime.DefaultLogger().Error("mailtriage failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() cliFlags {
	configPath := flag.String("config", "", "config file (default ~/.mailtriage/config.toml)")
	rulesPath := flag.String("rules", "", "rules file (default ~/.mailtriage/rules.json)")
	db := flag.String("db", "", "sqlite database (default ~/.mailtriage/triage.db)")
	maxMessages := flag.Int("max", config.DefaultMaxMessages, "messages to fetch per run; 0 re-evaluates the store only")
	query := flag.String("query", "", "Gmail search query limiting the fetch")
	rps := flag.Int("rps", config.DefaultRPS, "max Gmail requests per second")
	dryRun := flag.Bool("dry-run", false, "log actions without touching Gmail or stored flags")
	credentials := flag.String("credentials", "", "OAuth client secret JSON (oauth mode)")
	token := flag.String("token", "", "cached OAuth token JSON (oauth mode)")
	authMode := flag.String("auth", "", "auth mode: oauth or gmailctl")
	authDir := flag.String("auth-dir", "", "gmailctl config directory (gmailctl mode)")
	createLabels := flag.Bool("create-labels", false, "create labels the rules reference but Gmail lacks")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error")
	runs := flag.Int("runs", 0, "print the N most recent run summaries and exit")
	importGmailctl := flag.Bool("import-gmailctl", false, "convert gmailctl filters to a rules document on stdout and exit")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	return cliFlags{
		configPath:     *configPath,
		rules:          *rulesPath,
		db:             *db,
		max:            *maxMessages,
		query:          *query,
		rps:            *rps,
		dryRun:         *dryRun,
		credentials:    *credentials,
		token:          *token,
		auth:           *authMode,
		authDir:        *authDir,
		createLabels:   *createLabels,
		logLevel:       *logLevel,
		runs:           *runs,
		importGmailctl: *importGmailctl,
		set:            set,
	}
}

// applyFlags lays explicitly passed flags over the file-derived config.
func applyFlags(cfg config.Config, cli cliFlags) config.Config {
	if cli.set["rules"] {
		cfg.Rules = cli.rules
	}
	if cli.set["db"] {
		cfg.DB = cli.db
	}
	if cli.set["max"] {
		cfg.MaxMessages = cli.max
	}
	if cli.set["query"] {
		cfg.Query = cli.query
	}
	if cli.set["rps"] {
		cfg.RPS = cli.rps
	}
	if cli.set["credentials"] {
		cfg.Credentials = cli.credentials
	}
	if cli.set["token"] {
		cfg.Token = cli.token
	}
	if cli.set["auth"] {
		cfg.Auth = cli.auth
	}
	if cli.set["auth-dir"] {
		cfg.AuthDir = cli.authDir
	}
	if cli.set["create-labels"] {
		cfg.CreateLabels = cli.createLabels
	}
	if cli.set["log-level"] {
		cfg.LogLevel = cli.logLevel
	}
	return cfg
}

func run(cli cliFlags) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dir, err := config.Dir()
	if err != nil {
		return err
	}
	path := cli.configPath
	if path == "" {
		path = filepath.Join(dir, "config.toml")
	}
	cfg, err := config.Load(path, cli.set["config"], config.Default(dir))
	if err != nil {
		return err
	}
	cfg = applyFlags(cfg, cli)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := runtime.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := runtime.NewLogger(level)

	if cli.importGmailctl {
		return importFilters(ctx, cfg, log)
	}
	if cli.runs > 0 {
		return printRuns(ctx, cfg, cli.runs)
	}

	// The rules document is parsed and validated before any credential
	// or network work.
	set, err := rules.LoadFile(cfg.Rules)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	limiter := rate.NewPerSecond(cfg.RPS)

	labels, err := loadLabels(ctx, client, limiter, set)
	if err != nil {
		return err
	}
	exec := actions.NewExecutor(client, limiter, labels, log)
	exec.DryRun = cli.dryRun
	if cfg.CreateLabels {
		if err := exec.EnsureLabels(ctx, set.LabelNames()); err != nil {
			return err
		}
	}

	svc := triage.NewService(client, st, exec, limiter, log)
	opts := triage.Options{
		Rules:       set,
		Query:       gc.Query{Raw: cfg.Query},
		MaxMessages: cfg.MaxMessages,
		PageSize:    cfg.PageSize,
	}

	sum, runErr := svc.Run(ctx, opts)
	note := ""
	if cli.dryRun {
		note = "dry-run"
	}
	if runErr != nil {
		if note != "" {
			note += "; "
		}
		note += "aborted: " + runErr.Error()
		if sum.Finished.IsZero() {
			sum.Finished = time.Now()
		}
	}
	if err := st.SaveRun(ctx, sum.Record(note)); err != nil {
		log.Warn("save run record failed", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("triage run: %w", runErr)
	}
	return nil
}

func newClient(ctx context.Context, cfg config.Config) (gc.Client, error) {
	switch cfg.Auth {
	case config.AuthGmailctl:
		dir := cfg.AuthDir
		if dir == "" {
			var err error
			dir, err = config.GmailctlDir()
			if err != nil {
				return nil, err
			}
		}
		return runtime.NewGmailctlClient(ctx, dir)
	default:
		return runtime.NewOAuthClient(ctx, runtime.Credentials{
			ClientFile: cfg.Credentials,
			TokenFile:  cfg.Token,
		})
	}
}

// loadLabels fetches the Gmail label map when the rules need one. Rules
// without label actions skip the call entirely.
func loadLabels(ctx context.Context, client gc.Client, limiter rate.Limiter, set rules.Set) (actions.LabelMap, error) {
	if len(set.LabelNames()) == 0 {
		return actions.NewLabelMap(nil, nil), nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return actions.LabelMap{}, err
	}
	byName, byID, err := client.ListLabels(ctx)
	if err != nil {
		return actions.LabelMap{}, fmt.Errorf("list labels: %w", err)
	}
	return actions.NewLabelMap(byName, byID), nil
}

func importFilters(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	runner := gmailctl.Runner{ConfigDir: cfg.AuthDir}
	export, err := runner.ExportFilters(ctx)
	if err != nil {
		return err
	}
	conv, err := gmailctl.ToRules(export)
	if err != nil {
		return err
	}
	for _, reason := range conv.Skipped {
		log.Warn("skipped filter", "reason", reason)
	}
	log.Info("converted gmailctl filters", "rules", conv.Rules, "skipped", len(conv.Skipped))
	_, err = os.Stdout.Write(conv.Doc)
	return err
}

func printRuns(ctx context.Context, cfg config.Config, n int) error {
	st, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	recent, err := st.RecentRuns(ctx, n)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range recent {
		took := r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
		fmt.Printf("%s  took=%s fetched=%d saved=%d skipped=%d matched=%d ok=%d failed=%d not_found=%d",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), took,
			r.Fetched, r.Saved, r.Skipped, r.Matched,
			r.ActionsOK, r.ActionsFailed, r.ActionsNotFound)
		if r.Note != "" {
			fmt.Printf("  note=%q", r.Note)
		}
		fmt.Println()
	}
	return nil
}
