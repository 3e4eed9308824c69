package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lei/runwatch/internal/backend"
	"github.com/lei/runwatch/internal/models"
	"github.com/lei/runwatch/internal/output"
	"github.com/lei/runwatch/internal/platform"
	"github.com/lei/runwatch/internal/service"
	"github.com/lei/runwatch/internal/tui"
	"github.com/lei/runwatch/pkg/gateway"
)

var (
	saveDir         string
	runsSearch      string
	runsStatus      string
	runsLimit       int
	runsWatch       bool
	exportFormat    string
	exportStdout    bool
	terminateReason string
	terminateYes    bool
	servePort       int
)

func init() {
	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch WORKFLOW_ID RUN_ID",
		Short: "Follow one run live",
		Args:  cobra.ExactArgs(2),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&saveDir, "dir", ".", "directory exports are saved to")
	rootCmd.AddCommand(watchCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"ls"},
		Short:   "List recent runs",
		Args:    cobra.NoArgs,
		RunE:    runRuns,
	}
	runsCmd.Flags().StringVar(&runsSearch, "search", "", "filter by workflow id, run id, type or phase")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "comma-separated run statuses, e.g. RUNNING,FAILED")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 0, "number of runs to fetch (default from config)")
	runsCmd.Flags().BoolVarP(&runsWatch, "watch", "w", false, "keep the list open and refreshing; enter opens a run")
	runsCmd.Flags().StringVar(&saveDir, "dir", ".", "directory exports are saved to")
	rootCmd.AddCommand(runsCmd)

	// export command
	exportCmd := &cobra.Command{
		Use:   "export WORKFLOW_ID RUN_ID STAGE",
		Short: "Save a stage's output as JSON or HTML",
		Args:  cobra.ExactArgs(3),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", output.FormatJSON, "json or html")
	exportCmd.Flags().StringVar(&saveDir, "dir", ".", "directory to save into")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "write to stdout instead of a file")
	rootCmd.AddCommand(exportCmd)

	// copy command
	copyCmd := &cobra.Command{
		Use:   "copy WORKFLOW_ID RUN_ID STAGE",
		Short: "Copy a stage's output to the clipboard",
		Args:  cobra.ExactArgs(3),
		RunE:  runCopy,
	}
	rootCmd.AddCommand(copyCmd)

	// terminate command
	terminateCmd := &cobra.Command{
		Use:   "terminate WORKFLOW_ID RUN_ID",
		Short: "Stop a running workflow",
		Args:  cobra.ExactArgs(2),
		RunE:  runTerminate,
	}
	terminateCmd.Flags().StringVar(&terminateReason, "reason", "", "reason recorded by the backend")
	terminateCmd.Flags().BoolVarP(&terminateYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(terminateCmd)

	// retry command
	retryCmd := &cobra.Command{
		Use:   "retry WORKFLOW_ID RUN_ID [STAGE]",
		Short: "Re-run a stage (default: the terminal stage)",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runRetry,
	}
	rootCmd.AddCommand(retryCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// openGateway builds a gateway from config and flags. Terminal commands keep
// logs off the screen: they go to --log-file or are dropped.
func openGateway(logToStdout bool) (*gateway.Gateway, func(), error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := gateway.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}
	if backendKey != "" {
		cfg.Backend.APIKey = backendKey
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	closeLog := func() {}
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cfg.Logging.Output = f
		closeLog = func() { f.Close() }
	case !logToStdout:
		cfg.Logging.Output = io.Discard
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return gw, func() {
		gw.Close()
		closeLog()
	}, nil
}

func identityArgs(args []string) (models.RunIdentity, error) {
	id := models.RunIdentity{WorkflowID: args[0], RunID: args[1]}
	if err := id.Validate(); err != nil {
		return models.RunIdentity{}, err
	}
	return id, nil
}

// friendly turns backend failures into the message a person should see
func friendly(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) || errors.Is(err, backend.ErrNetwork) {
		return errors.New(backend.UserMessage(err))
	}
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	id, err := identityArgs(args)
	if err != nil {
		return err
	}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	return watchRun(cmd.Context(), gw, id)
}

func watchRun(ctx context.Context, gw *gateway.Gateway, id models.RunIdentity) error {
	model := tui.NewDetailModel(ctx, tui.DetailConfig{
		Service:  gw.Service(),
		Identity: id,
		Platform: platform.Terminal(saveDir),
		Logger:   gw.Logger(),
	})

	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func runRuns(cmd *cobra.Command, args []string) error {
	statuses, invalid := service.ParseStatuses(runsStatus)
	if len(invalid) > 0 {
		return fmt.Errorf("unknown status: %s", strings.Join(invalid, ", "))
	}
	if runsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	query := service.RunQuery{Limit: runsLimit, Search: runsSearch, Statuses: statuses}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	if runsWatch {
		return browseRuns(cmd.Context(), gw, query)
	}

	runs, err := gw.Service().ListRuns(cmd.Context(), query)
	if err != nil {
		return friendly(err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}
	printRuns(os.Stdout, runs, time.Now())
	return nil
}

// browseRuns alternates between the live list and the detail of the chosen run
func browseRuns(ctx context.Context, gw *gateway.Gateway, query service.RunQuery) error {
	for {
		list := tui.NewListModel(ctx, tui.ListConfig{
			Service: gw.Service(),
			Query:   query,
			Logger:  gw.Logger(),
		})
		final, err := tea.NewProgram(list, tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}

		m, ok := final.(tui.ListModel)
		if !ok {
			return nil
		}
		id, ok := m.Selected()
		if !ok {
			return nil
		}
		if err := watchRun(ctx, gw, id); err != nil {
			return err
		}
	}
}

func printRuns(out io.Writer, runs []models.RunSummary, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKFLOW\tRUN\tTYPE\tSTATUS\tPHASE\tSTARTED")
	for _, r := range runs {
		started := "-"
		if r.StartTime != nil {
			started = humanize.RelTime(*r.StartTime, now, "ago", "from now")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Identity.WorkflowID, r.Identity.RunID, orDash(r.WorkflowType), r.Status, orDash(r.CurrentPhase), started)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runExport(cmd *cobra.Command, args []string) error {
	id, err := identityArgs(args)
	if err != nil {
		return err
	}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	artifact, err := gw.Service().ExportStage(cmd.Context(), id, args[2], exportFormat)
	if err != nil {
		return friendly(err)
	}

	if exportStdout {
		_, err := os.Stdout.Write(artifact.Data)
		return err
	}

	saver := &platform.DirSaver{Dir: saveDir}
	path, err := saver.Save(artifact.Filename, artifact.Data)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%s)\n", path, humanize.Bytes(uint64(len(artifact.Data))))
	return nil
}

func runCopy(cmd *cobra.Command, args []string) error {
	id, err := identityArgs(args)
	if err != nil {
		return err
	}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	out, err := gw.Service().StageOutput(cmd.Context(), id, args[2])
	if err != nil {
		return friendly(err)
	}
	if out.Classification.Kind == output.KindEmpty {
		return fmt.Errorf("stage %s has no output yet", args[2])
	}

	clip := platform.Terminal(saveDir).Clipboard
	if platform.CopyOrShow(clip, out.Classification.CopyText(), os.Stdout) {
		fmt.Fprintf(os.Stderr, "Copied %s output to the clipboard\n", args[2])
	}
	return nil
}

func runTerminate(cmd *cobra.Command, args []string) error {
	id, err := identityArgs(args)
	if err != nil {
		return err
	}

	confirm := &platform.PromptConfirmer{
		In:         os.Stdin,
		Out:        os.Stderr,
		AssumeYes:  terminateYes,
		BypassHint: "use --yes to skip",
	}
	ok, err := confirm.Confirm(fmt.Sprintf("Terminate run %s?", id))
	if errors.Is(err, platform.ErrCancelled) {
		fmt.Println("Aborted")
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted")
		return nil
	}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	env, err := gw.Service().TerminateRun(cmd.Context(), id, terminateReason)
	if err != nil {
		return friendly(err)
	}
	fmt.Println(messageOr(env, "Run terminated"))
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	id, err := identityArgs(args)
	if err != nil {
		return err
	}
	var stage string
	if len(args) == 3 {
		stage = args[2]
	}

	gw, closeGW, err := openGateway(false)
	if err != nil {
		return err
	}
	defer closeGW()

	res, err := gw.Service().RetryStage(cmd.Context(), id, stage)
	if err != nil {
		return friendly(err)
	}
	fmt.Println(messageOr(res.Envelope, fmt.Sprintf("Retry of %s started", res.Stage)))
	return nil
}

func messageOr(env *backend.Envelope, fallback string) string {
	if env != nil && env.Message != "" {
		return env.Message
	}
	return fallback
}

func runServe(cmd *cobra.Command, args []string) error {
	gw, closeGW, err := openGateway(true)
	if err != nil {
		return err
	}
	defer closeGW()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return gw.Start(ctx)
}
