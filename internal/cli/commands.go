package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/adforge/adforge/internal/api"
	"github.com/adforge/adforge/internal/audit"
	"github.com/adforge/adforge/internal/campaign"
	"github.com/adforge/adforge/internal/config"
	"github.com/adforge/adforge/internal/engine"
	"github.com/adforge/adforge/internal/logging"
	"github.com/adforge/adforge/internal/metrics"
	"github.com/adforge/adforge/internal/pipeline"
	"github.com/adforge/adforge/internal/providers"
	"github.com/adforge/adforge/internal/store"
	"github.com/adforge/adforge/internal/tui"
)

// runtime bundles everything a command needs: config, the snapshot store,
// and an engine wired to the offline stub collaborators.
type runtime struct {
	cfg     *config.Config
	jobs    store.JobStore
	eng     *engine.Engine
	trail   *audit.Trail
	closers []func()
}

func (rt *runtime) close() {
	if rt.eng != nil {
		rt.eng.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func setupRuntime(withEngine bool, approvalTimeout time.Duration) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("cli: working directory: %w", err)
	}
	if err := config.InitAdforgeDir(cwd); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg}

	switch cfg.Project.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(context.Background(), cfg.Project.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.InitSchema(context.Background()); err != nil {
			pg.Close()
			return nil, err
		}
		rt.jobs = pg
		rt.closers = append(rt.closers, pg.Close)
	default:
		fs, err := store.NewFileStore(cfg.JobsDir())
		if err != nil {
			return nil, err
		}
		rt.jobs = fs
	}

	if !withEngine {
		return rt, nil
	}

	logger, closeLog, err := logging.FileLogger(cfg.AdforgeProjectDir)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() { closeLog() })

	trail, err := audit.New(auditPath(cfg))
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.trail = trail

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithOutputDir(cfg.OutputDir()),
		engine.WithMatching(cfg.Project.Matching.ImagesPerVariant, cfg.Project.Matching.MaxParallel),
		engine.WithApprovalTimeout(cfg.ApprovalTimeout()),
	}
	if approvalTimeout > 0 {
		opts = append(opts, engine.WithApprovalTimeout(approvalTimeout))
	}
	if url := cfg.Project.AMQPURL; url != "" {
		recorder, err := campaign.NewAMQPRecorder(url)
		if err != nil {
			// Side-channel only: a dead broker must not block runs.
			logger.Warn("campaign side-channel unavailable", "error", err)
		} else {
			opts = append(opts, engine.WithRecorder(recorder))
			rt.closers = append(rt.closers, recorder.Close)
		}
	}
	if addr := cfg.Project.MetricsAddr; addr != "" {
		metrics.StartServer(addr)
	}

	eng, err := engine.New(rt.jobs, providers.StubSet(), opts...)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.eng = eng
	return rt, nil
}

func runPipeline(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	variants := fs.Int("variants", 3, "number of copy variants to generate")
	platform := fs.String("platform", "meta", "target ad platform")
	objective := fs.String("objective", "conversions", "campaign objective")
	campaignRef := fs.String("campaign", "", "optional external campaign reference")
	plain := fs.Bool("plain", false, "stream progress as log lines instead of the TUI")
	autoApprove := fs.Bool("auto-approve", false, "approve every variant when the gate opens (plain mode)")
	approvalTimeout := fs.Duration("approval-timeout", 0, "override the configured approval gate timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	url := fs.Arg(0)
	if url == "" {
		return fmt.Errorf("usage: adforge run [flags] <url>")
	}

	rt, err := setupRuntime(true, *approvalTimeout)
	if err != nil {
		return err
	}
	defer rt.close()

	jobID, err := rt.eng.Start(context.Background(), pipeline.Config{
		URL:          url,
		VariantCount: *variants,
		Platform:     *platform,
		Objective:    *objective,
		CampaignRef:  *campaignRef,
	})
	if err != nil {
		return err
	}
	fmt.Printf("started job %s\n", jobID)
	return watchJob(rt, jobID, *plain, *autoApprove)
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	plain := fs.Bool("plain", false, "stream progress as log lines instead of the TUI")
	autoApprove := fs.Bool("auto-approve", false, "approve every variant when the gate opens (plain mode)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID := fs.Arg(0)
	if jobID == "" {
		return fmt.Errorf("usage: adforge resume [flags] <job-id>")
	}

	rt, err := setupRuntime(true, 0)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.eng.Resume(context.Background(), jobID); err != nil {
		return err
	}
	return watchJob(rt, jobID, *plain, *autoApprove)
}

func auditPath(cfg *config.Config) string {
	return filepath.Join(cfg.LogsDir(), "audit.log")
}

// recordTrail mirrors the job's progress stream into the audit trail so the
// transition history survives after the TUI exits.
func recordTrail(rt *runtime, jobID string) {
	updates, err := rt.eng.Watch(jobID)
	if err != nil {
		return
	}
	go func() {
		last := pipeline.ProgressSnapshot{Percent: -1}
		for snap := range updates {
			if snap.Stage == last.Stage && snap.Percent == last.Percent {
				continue
			}
			rt.trail.Record(snap)
			last = snap
		}
	}()
}

func watchJob(rt *runtime, jobID string, plain, autoApprove bool) error {
	eng := rt.eng
	recordTrail(rt, jobID)
	if !plain {
		if err := tui.Watch(eng, jobID); err != nil {
			if errors.Is(err, engine.ErrJobNotFound) {
				// The run finished before the view subscribed; fall
				// through to the stored result.
				return printFinal(eng, jobID)
			}
			return err
		}
		return printFinal(eng, jobID)
	}

	updates, err := eng.Watch(jobID)
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			return printFinal(eng, jobID)
		}
		return err
	}
	for snap := range updates {
		fmt.Printf("[%3d%%] %-18s %s\n", snap.Percent, snap.Stage, snap.Message)
		if autoApprove && snap.Stage == pipeline.StageAwaitingApproval {
			state, err := eng.State(context.Background(), jobID)
			if err == nil {
				ids := make([]string, 0, len(state.Variants))
				for _, v := range state.Variants {
					ids = append(ids, v.ID)
				}
				if err := eng.Approve(jobID, ids); err != nil && !errors.Is(err, engine.ErrDecisionAlreadyMade) {
					return err
				}
			}
			autoApprove = false
		}
	}
	return printFinal(eng, jobID)
}

func printFinal(eng *engine.Engine, jobID string) error {
	state, err := eng.Result(context.Background(), jobID)
	if err != nil {
		return err
	}
	fmt.Printf("job %s finished: %s", state.JobID, state.Stage)
	if state.Error != "" {
		fmt.Printf(" (%s)", state.Error)
	}
	fmt.Printf("\n  variants=%d matches=%d ads=%d scores=%d approved=%d duration=%s\n",
		len(state.Variants), len(state.Matches), len(state.ComposedAds),
		len(state.Scores), len(state.ApprovedVariantIDs), state.Duration.Round(time.Millisecond))
	for _, warning := range state.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum jobs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := setupRuntime(false, 0)
	if err != nil {
		return err
	}
	defer rt.close()

	states, err := rt.jobs.List(context.Background(), *limit)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("no jobs yet")
		return nil
	}
	fmt.Printf("%-38s %-18s %5s  %s\n", "JOB", "STAGE", "PCT", "UPDATED")
	for _, state := range states {
		fmt.Printf("%-38s %-18s %4d%%  %s\n",
			state.JobID, state.Stage, state.Percent, state.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	showAudit := fs.Bool("audit", false, "print the job's transition trail instead of the snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID := fs.Arg(0)
	if jobID == "" {
		return fmt.Errorf("usage: adforge show [-audit] <job-id>")
	}

	rt, err := setupRuntime(false, 0)
	if err != nil {
		return err
	}
	defer rt.close()

	if *showAudit {
		trail, err := audit.New(auditPath(rt.cfg))
		if err != nil {
			return err
		}
		lines, total := trail.TailJob(jobID, 100)
		if total == 0 {
			fmt.Println("no trail entries for", jobID)
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	}

	state, err := rt.jobs.Load(context.Background(), jobID)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

// runServe keeps an engine alive behind the local HTTP API until interrupted.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address override (host:port)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := setupRuntime(true, 0)
	if err != nil {
		return err
	}
	defer rt.close()

	settings := api.SettingsFromConfig(rt.cfg)
	settings.Enabled = true
	if *addr != "" {
		host, port, err := net.SplitHostPort(*addr)
		if err != nil {
			return fmt.Errorf("cli: invalid -addr %q: %w", *addr, err)
		}
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("cli: invalid -addr port %q: %w", port, err)
		}
		settings.Host = host
		settings.Port = parsed
	}

	srv := api.NewServer(settings, rt.eng, api.WithLogger(logging.New(os.Stderr, slog.LevelInfo)))
	if err := srv.Start(context.Background()); err != nil {
		return err
	}
	fmt.Printf("adforge API listening on %s\n", srv.BaseURL())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	fmt.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
