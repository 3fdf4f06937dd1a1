package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"genetrader/internal/metrics"
	"genetrader/internal/model"
	api "genetrader/pkg/genetrader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:], out)
	case "resume":
		return runResume(ctx, args[1:], out)
	case "checkpoints":
		return runCheckpoints(ctx, args[1:], out)
	case "show":
		return runShow(ctx, args[1:], out)
	case "evaluate":
		return runEvaluate(ctx, args[1:], out)
	case "history":
		return runHistory(ctx, args[1:], out)
	case "diagnostics":
		return runDiagnostics(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := bindCommon(fs)
	overrides := bindRunOverrides(fs)
	runID := fs.String("run-id", "", "checkpoint namespace (random uuid when empty)")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.config(fs, overrides)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)
	if err != nil {
		return err
	}
	observers, shutdown := serveMetrics(*metricsAddr, &logger)
	defer shutdown()

	client, err := openClient(ctx, cfg.Checkpoint.Store, cfg.Checkpoint.Path, &logger, observers)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, api.RunRequest{Config: cfg, RunID: *runID})
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

func runResume(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	common := bindCommon(fs)
	overrides := bindRunOverrides(fs)
	runID := fs.String("run-id", "", "run id to resume")
	generation := fs.Int("from", 0, "checkpoint generation to resume from (0 for latest)")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("resume requires --run-id")
	}

	cfg, err := common.config(fs, overrides)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)
	if err != nil {
		return err
	}
	observers, shutdown := serveMetrics(*metricsAddr, &logger)
	defer shutdown()

	client, err := openClient(ctx, cfg.Checkpoint.Store, cfg.Checkpoint.Path, &logger, observers)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Resume(ctx, api.ResumeRequest{
		Config:     cfg,
		RunID:      *runID,
		Generation: *generation,
	})
	if err != nil {
		return err
	}
	printSummary(out, summary)
	return nil
}

func runCheckpoints(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("checkpoints", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id (empty lists every run)")
	jsonOut := fs.Bool("json", false, "emit checkpoints as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client(ctx, fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	infos, err := client.Checkpoints(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no checkpoints")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tGENERATION\tVARIANT\tSIZE\tBYTES\tSAVED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\n",
			info.RunID,
			info.Generation,
			info.Variant,
			info.Size,
			humanize.Bytes(uint64(info.Bytes)),
			humanize.Time(time.Unix(info.SavedAt, 0)),
		)
	}
	return tw.Flush()
}

func runShow(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	generation := fs.Int("generation", 0, "checkpoint generation (0 for latest)")
	jsonOut := fs.Bool("json", false, "emit the full checkpoint as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("show requires --run-id")
	}

	client, err := common.client(ctx, fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	snapshot, err := client.Show(ctx, api.ShowRequest{RunID: *runID, Generation: *generation})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, snapshot)
	}

	fmt.Fprintf(out, "run_id=%s generation=%d variant=%s size=%d mutation_rate=%.4f next_id=%d\n",
		snapshot.RunID, snapshot.Generation, snapshot.Variant, snapshot.Size(), snapshot.MutationRate, snapshot.NextID)
	for _, n := range snapshot.Networks {
		fmt.Fprintf(out, "id=%d fitness=%s species=%d layers=%d\n", n.ID, formatFitness(n.Fitness), n.Cluster, len(n.Layers))
	}
	for _, g := range snapshot.Genomes {
		fmt.Fprintf(out, "id=%d fitness=%s species=%d genes=%d\n", g.ID, formatFitness(g.Fitness), g.Cluster, len(g.Genes))
	}
	return nil
}

func runEvaluate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	common := bindCommon(fs)
	overrides := bindRunOverrides(fs)
	runID := fs.String("run-id", "", "run id")
	generation := fs.Int("generation", 0, "checkpoint generation (0 for latest)")
	individual := fs.Uint64("individual", 0, "individual id (0 for the best stored fitness)")
	jsonOut := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("evaluate requires --run-id")
	}

	cfg, err := common.config(fs, overrides)
	if err != nil {
		return err
	}
	client, err := openClient(ctx, cfg.Checkpoint.Store, cfg.Checkpoint.Path, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Evaluate(ctx, api.EvaluateRequest{
		Config:       cfg,
		RunID:        *runID,
		Generation:   *generation,
		IndividualID: *individual,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, report)
	}
	fmt.Fprintf(out, "run_id=%s generation=%d individual=%d variant=%s bars=%d\n",
		report.RunID, report.Generation, report.IndividualID, report.Variant, report.Bars)
	fmt.Fprintf(out, "fitness=%s strategy_return=%.4f%% buy_and_hold=%.4f%% trades=%d sortino=%s max_drawdown=%.4f\n",
		formatFitness(report.Fitness), report.StrategyReturn, report.BuyAndHold, report.Trades, formatFitness(report.Sortino), report.MaxDrawdown)
	return nil
}

func runHistory(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("history requires --run-id")
	}

	client, err := common.client(ctx, fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, history)
	}
	for i, avg := range history {
		fmt.Fprintf(out, "generation=%d average_fitness=%.6f\n", i, avg)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	common := bindCommon(fs)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("diagnostics requires --run-id")
	}

	client, err := common.client(ctx, fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, *runID)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, diagnostics)
	}
	for _, d := range diagnostics {
		fmt.Fprintf(out, "generation=%d avg=%.6f best=%s valid=%d species=%d mutation_rate=%.4f selection=%s selected_avg=%.6f size=%d eval=%s\n",
			d.Generation,
			d.AverageFitness,
			formatFitness(d.BestFitness),
			d.ValidCount,
			d.SpeciesCount,
			d.MutationRate,
			d.Selection,
			d.SelectedAvg,
			d.PopulationSize,
			time.Duration(d.EvaluationSeconds*float64(time.Second)).Round(time.Millisecond),
		)
	}
	return nil
}

func openClient(ctx context.Context, storeKind, storePath string, logger *zerolog.Logger, observers []api.Observer) (*api.Client, error) {
	client, err := api.New(api.Options{
		StoreKind: storeKind,
		StorePath: storePath,
		Logger:    logger,
		Observers: observers,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// serveMetrics starts a Prometheus endpoint when addr is set and returns the
// collector as an observer plus a shutdown func.
func serveMetrics(addr string, logger *zerolog.Logger) ([]api.Observer, func()) {
	if addr == "" {
		return nil, func() {}
	}
	collector := metrics.NewCollector()
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return []api.Observer{collector}, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func printSummary(out io.Writer, s api.RunSummary) {
	fmt.Fprintf(out, "run_id=%s variant=%s generations=%d..%d population=%d best_fitness=%s mutation_rate=%.4f\n",
		s.RunID, s.Variant, s.StartGeneration, s.NextGeneration-1, s.PopulationSize, formatFitness(s.FinalBestFitness), s.MutationRate)
	for i, avg := range s.History {
		fmt.Fprintf(out, "generation=%d average_fitness=%.6f\n", s.StartGeneration+i, avg)
	}
}

func formatFitness(f model.Fitness) string {
	if !f.Valid() {
		b, _ := f.MarshalJSON()
		return string(b)
	}
	return fmt.Sprintf("%.6f", float64(f))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: genetraderctl <run|resume|checkpoints|show|evaluate|history|diagnostics> [flags]", msg)
}
