// Command macsleuth learns which randomized Wi-Fi MAC addresses belong to
// which person by correlating presence with device fingerprints. It only
// ever suggests mappings; the people file is never modified.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"macsleuth/internal/codec"
	"macsleuth/internal/config"
	"macsleuth/internal/domain"
	"macsleuth/internal/service"
	"macsleuth/internal/watcher"
)

var (
	configPath string
	debugFlag  bool

	dryRunFlag  bool
	jsonFlag    bool
	hoursFlag   int
	patchFlag   bool
	formatFlag  string
	noStartFlag bool
	listenFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "macsleuth",
	Short:         "macsleuth - learn randomized Wi-Fi MACs from presence",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run learning cycles on the configured schedule",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single learning cycle and print its suggestions",
	Args:  cobra.NoArgs,
	RunE:  runCycle,
}

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Show suggestions from the journal",
	Args:  cobra.NoArgs,
	RunE:  runSuggestions,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset which pairs were already suggested",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggested (identifier, person) pairs",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear <person> [identifier]",
	Short: "Make a pair, or all of a person's pairs, eligible again",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLedgerClear,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted engine state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the engine state document",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search $MACSLEUTH_CONFIG, ./macsleuth.yaml, ~/.config, /etc)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	runCmd.Flags().StringVar(&listenFlag, "listen", "", "Serve the HTTP API on this address (overrides server.listen)")
	runCmd.Flags().BoolVar(&noStartFlag, "no-initial-cycle", false, "Wait for the first scheduled tick instead of running a cycle at startup")
	cycleCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Do not persist state or journal suggestions")
	cycleCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the cycle report as JSON")
	suggestionsCmd.Flags().IntVar(&hoursFlag, "hours", 24, "Look back this many hours")
	suggestionsCmd.Flags().BoolVar(&patchFlag, "patch", false, "Print a people file snippet with the suggested MACs")
	stateShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or yaml")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerClearCmd)
	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(runCmd, cycleCmd, suggestionsCmd, ledgerCmd, stateCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{requirePeople: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	events := make(chan service.Event, 100)
	a.svc.EventBus().Subscribe(events)
	go printSuggestions(ctx, out, events)

	w := watcher.New(a.cfg.PeopleFile, func() {
		people, err := loadPeople(a.cfg.PeopleFile)
		if err != nil {
			a.log.Error().Err(err).Msg("Keeping previous identities, people file rejected")
			return
		}
		a.svc.SetIdentities(people)
	}, a.log)
	go func() {
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("People file watcher stopped")
		}
	}()

	scan := a.cfg.EffectiveScan()
	sched, err := service.NewScheduler(scan.Cron, a.svc, a.log)
	if err != nil {
		return err
	}

	listen := a.cfg.Server.Listen
	if listenFlag != "" {
		listen = listenFlag
	}
	var server *http.Server
	if listen != "" {
		server = a.startServer(ctx, listen)
	}

	a.log.Info().Strs("sources", a.registry.Names()).Str("schedule", scan.Cron).Msg("Starting macsleuth")

	if !noStartFlag {
		if _, err := sched.RunNow(ctx); err != nil {
			a.log.Error().Err(err).Msg("Initial cycle failed")
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.log.Info().Msg("Shutting down")
	sched.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	return nil
}

func printSuggestions(ctx context.Context, out io.Writer, events <-chan service.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if s, ok := ev.Payload.(domain.Suggestion); ok && ev.Type == service.EventSuggestion {
				fmt.Fprintln(out, codec.FormatSuggestion(s))
				fmt.Fprintln(out)
			}
		}
	}
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{requirePeople: true, dryRun: dryRunFlag})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.svc.RunCycle(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	writeReport(out, report)
	return nil
}

func writeReport(out io.Writer, report service.CycleReport) {
	fmt.Fprintf(out, "Ingested %d observations, %d unknown, %d rejected\n",
		report.Ingested, report.Unknown, len(report.Rejected))
	for _, r := range report.Rejected {
		fmt.Fprintf(out, "  rejected %s: %s\n", r.Item, r.Reason)
	}
	for _, e := range report.SourceErrors {
		fmt.Fprintf(out, "  source error: %s\n", e)
	}
	if len(report.Missing) > 0 {
		fmt.Fprintf(out, "Home but unseen: %v\n", report.Missing)
	}
	if len(report.Suggestions) == 0 {
		fmt.Fprintf(out, "No new suggestions (%d below threshold, %d already suggested)\n",
			report.BelowThreshold, report.Suppressed)
		return
	}
	for _, s := range report.Suggestions {
		fmt.Fprintln(out)
		fmt.Fprintln(out, codec.FormatSuggestion(s))
	}
}

func runSuggestions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if hoursFlag <= 0 || hoursFlag > service.MaxSuggestionHours {
		return fmt.Errorf("--hours must be between 1 and %d", service.MaxSuggestionHours)
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	suggestions, err := a.svc.Suggestions(ctx, time.Duration(hoursFlag)*time.Hour)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if patchFlag {
		return codec.NewYAMLCodec().ExportPeoplePatch(suggestions, out)
	}

	if len(suggestions) == 0 {
		fmt.Fprintf(out, "No suggestions in the last %d hours\n", hoursFlag)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATED\tPERSON\tIDENTIFIER\tSCORE\tHOSTNAME\tIP")
	for _, s := range suggestions {
		score := fmt.Sprintf("%.2f", s.Score)
		if s.HighConfidence {
			score += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.GeneratedAt.Local().Format(time.DateTime), s.Person, s.Identifier, score, s.Hostname, s.IP)
	}
	return tw.Flush()
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.svc.Ledger()
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "Ledger is empty")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSON\tIDENTIFIER\tLAST SUGGESTED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Person, e.Identifier, e.LastSuggested.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	person := args[0]
	var identifier string
	if len(args) == 2 {
		identifier = args[1]
	}

	removed, err := a.svc.ClearLedger(ctx, identifier, person)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d ledger entries for %s\n", removed, person)
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	exporter, ok := codec.ForFormat(formatFlag)
	if !ok {
		return fmt.Errorf("unsupported format %q", formatFlag)
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	return exporter.Export(a.svc.Snapshot(), cmd.OutOrStdout())
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if path == "" {
		path = fmt.Sprintf("(defaults, none found; create %s)", config.DefaultConfigPath())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Config: %s\n%s\n", path, cfg.Summary())
	return nil
}
