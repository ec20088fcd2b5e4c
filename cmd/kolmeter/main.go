package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"kolmeter/internal/analytics"
	"kolmeter/internal/cmdlog"
	"kolmeter/internal/config"
	"kolmeter/internal/jobs"
	"kolmeter/internal/logging"
	"kolmeter/internal/metrics"
	"kolmeter/internal/model"
	"kolmeter/internal/provider"
	"kolmeter/internal/schedule"
	"kolmeter/internal/store/sqlitestore"
	"kolmeter/internal/theme"
)

const defaultConfigPath = "./kolmeter.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if err := config.LoadDotEnv(); err != nil {
		fmt.Println("warning:", err)
	}
	var run func() error
	switch cmd {
	case "init":
		run = cmdInit
	case "accounts":
		run = cmdAccounts
	case "collect":
		run = cmdCollect
	case "score":
		run = cmdScore
	case "run":
		run = cmdRun
	case "schedule":
		run = cmdSchedule
	case "last":
		run = cmdLast
	default:
		printHelp()
		return
	}
	if err := cmdlog.Run(cmd, run); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: kolmeter <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./kolmeter.yaml")
	fmt.Println("  accounts    add|list|disable|enable|sync tracked accounts")
	fmt.Println("  collect     Fetch and store tweets for every tracked account")
	fmt.Println("  score       Classify stored tweets and print the score table")
	fmt.Println("  run         collect, then score; prints the run summary")
	fmt.Println("  schedule    Run on the configured cron spec until interrupted")
	fmt.Println("  last        Print the most recent run summary")
}

// app is the wiring shared by commands that touch the store.
type app struct {
	cfg    config.Config
	db     *sqlitestore.DB
	runner *jobs.Runner
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
	} else if err != nil {
		return nil, err
	}
	logging.SetLevel(cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider.APIKey == "" {
		fmt.Println("warning: missing KOLMETER_API_KEY; provider calls will fail")
	}
	db, err := sqlitestore.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	client := provider.NewHTTPClient(cfg.Provider, &http.Client{})
	return &app{cfg: cfg, db: db, runner: jobs.NewRunner(db, client, cfg)}, nil
}

func (a *app) Close() { _ = a.db.Close() }

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdInit() error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", defaultConfigPath, "path to write config")
	official := fs.String("official", "", "official handle interactions are measured against")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	cfg.Collection.OfficialHandle = *official
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	return nil
}

func cmdAccounts() error {
	if len(os.Args) < 3 {
		return errors.New("usage: kolmeter accounts add|list|disable|enable|sync [handle...]")
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("accounts "+sub, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	all := fs.Bool("all", false, "list disabled accounts too")
	_ = fs.Parse(os.Args[3:])

	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	switch sub {
	case "add":
		for _, h := range fs.Args() {
			acc, err := a.db.AddTrackedAccount(ctx, h)
			if err != nil {
				return err
			}
			fmt.Printf("tracking @%s (%s)\n", acc.Handle, acc.ID)
		}
	case "sync":
		for _, h := range a.cfg.Collection.Handles {
			if _, err := a.db.AddTrackedAccount(ctx, h); err != nil {
				return err
			}
		}
		fmt.Printf("synced %d handles from config\n", len(a.cfg.Collection.Handles))
	case "disable", "enable":
		for _, h := range fs.Args() {
			if err := a.db.SetAccountActive(ctx, h, sub == "enable"); err != nil {
				return err
			}
			fmt.Printf("%sd @%s\n", sub, h)
		}
	case "list":
		accounts, err := a.db.ListTrackedAccounts(ctx, !*all)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			state := "active"
			if !acc.Active {
				state = "disabled"
			}
			providerID := acc.ProviderID
			if providerID == "" {
				providerID = "-"
			}
			fmt.Printf("@%-20s %-22s %s\n", acc.Handle, providerID, state)
		}
	default:
		return fmt.Errorf("unknown accounts command %q", sub)
	}
	return nil
}

func cmdCollect() error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop := signalContext()
	defer stop()
	results, err := a.runner.Collect(ctx)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func cmdScore() error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	daily := fs.Bool("daily", false, "also print interactions per day")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	res, err := a.runner.Score(context.Background())
	if err != nil {
		return err
	}
	for _, s := range res.Scores {
		fmt.Printf("@%-20s score=%-8.1f rounded=%-5d participation=%5.1f%% %s best_effort=%d\n",
			s.Handle, s.WeightedScore, s.RoundedScore, s.ParticipationRate, s.StatusLabel, s.BestEffort)
	}
	fmt.Printf("totals: %v (official tweets known: %d)\n", res.TotalsByKind, res.OfficialIDs)
	if *daily {
		b := analytics.DailyInteractions(res.Interactions)
		for _, k := range analytics.SortedBucketKeys(b) {
			fmt.Printf("%s -> %v\n", k.Format("2006-01-02"), b[k])
		}
		byAccount := analytics.ByAccount(res.Interactions)
		for _, s := range res.Scores {
			per := analytics.DailyInteractions(byAccount[s.AccountID])
			for _, k := range analytics.SortedBucketKeys(per) {
				fmt.Printf("  @%s %s -> %v\n", s.Handle, k.Format("2006-01-02"), per[k])
			}
		}
	}
	return nil
}

func cmdRun() error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	metrics.StartServer(a.cfg.Metrics.Addr)
	ctx, stop := signalContext()
	defer stop()
	sum := a.runner.RunOnce(ctx)
	if err := printJSON(sum); err != nil {
		return err
	}
	if sum.Error != "" {
		return errors.New(sum.Error)
	}
	return nil
}

func cmdSchedule() error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	spec := fs.String("spec", "", "cron spec; defaults to collection.schedule")
	now := fs.Bool("now", false, "run once immediately before waiting")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if *spec == "" {
		*spec = a.cfg.Collection.Schedule
	}
	first, err := schedule.Next(*spec, time.Now().UTC())
	if err != nil {
		return err
	}
	metrics.StartServer(a.cfg.Metrics.Addr)

	ctx, stop := signalContext()
	defer stop()
	s := schedule.New(ctx)
	pass := func(ctx context.Context) {
		sum := a.runner.RunOnce(ctx)
		if next, ok := s.NextRun("collect"); ok {
			logging.Info("schedule_next", map[string]any{"run_id": sum.RunID, "next": next.Format(time.RFC3339)})
		}
	}
	if err := s.Add("collect", *spec, pass); err != nil {
		return err
	}
	if *now {
		pass(ctx)
	}
	s.Start()
	fmt.Println("Next run:", first.Format(time.RFC3339))
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

func cmdLast() error {
	fs := flag.NewFlagSet("last", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "config path")
	_ = fs.Parse(os.Args[2:])
	a, err := openApp(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	rec, err := a.db.LastRun(ctx)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		fmt.Println("no runs yet")
		return nil
	}
	if err != nil {
		return err
	}
	var sum jobs.RunSummary
	if err := json.Unmarshal(rec.Summary, &sum); err != nil {
		return fmt.Errorf("decode run %s: %w", rec.ID, err)
	}
	fmt.Printf("run %s started=%s finished=%s canceled=%t\n", rec.ID,
		rec.StartedAt.Format(time.RFC3339), rec.FinishedAt.Format(time.RFC3339), rec.Canceled)
	fmt.Printf("accounts: %d success, %d failed, %d canceled\n",
		sum.Count(model.StatusSuccess), sum.Count(model.StatusFailed), sum.Count(model.StatusCanceled))
	totals, err := a.db.InteractionTotals(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("stored interactions: %v\n", totals)
	return printJSON(sum.ScoreTable)
}
