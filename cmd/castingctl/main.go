package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/app"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/prefilter"
	"github.com/joseph-ayodele/casting-aggregator/internal/server"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
	"github.com/joseph-ayodele/casting-aggregator/internal/vocab"
)

const usage = `usage: castingctl <command> [flags]

commands:
  migrate                               apply database migrations
  run-once                              run one polling cycle and drain the queues
  add-source -kind K -locator L [-name N] [-disabled]
  sources                               list sources with watermarks
  chat-groups [-register]               list chat gateway groups
  dlq [-limit N]                        list dead letters
  requeue -id ID                        requeue a dead letter
  export-dlq -out FILE                  write dead letters to xlsx
  export-records [-status S] -out FILE  write casting calls to xlsx
  classify -text TEXT                   pre-filter dry run
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "classify":
		err = classify(args)
	case "run-once", "add-source", "sources", "chat-groups", "dlq", "requeue", "export-dlq", "export-records":
		err = withApp(ctx, cfg, logger, func(a *app.App) error { return dispatch(ctx, a, cmd, args) })
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		printError("unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func withApp(ctx context.Context, cfg *common.Config, logger *slog.Logger, fn func(*app.App) error) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func dispatch(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "run-once":
		return runOnce(ctx, a)
	case "add-source":
		return addSource(ctx, a, args)
	case "sources":
		return listSources(ctx, a)
	case "chat-groups":
		return chatGroups(ctx, a, args)
	case "dlq":
		return listDLQ(ctx, a, args)
	case "requeue":
		return requeue(ctx, a, args)
	case "export-dlq":
		return exportDLQ(ctx, a, args)
	case "export-records":
		return exportRecords(ctx, a, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func migrate(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	store, err := server.ConnectDB(ctx, cfg.Database, true, logger)
	if err != nil {
		return err
	}
	defer server.CloseDB(store, logger)
	fmt.Println("migrations applied")
	return nil
}

func classify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	text := fs.String("text", "", "text to classify (required)")
	_ = fs.Parse(args)
	if *text == "" {
		return fmt.Errorf("-text is required")
	}
	d := prefilter.New(vocab.Default()).Classify(*text)
	return printJSON(d)
}

func runOnce(ctx context.Context, a *app.App) error {
	sum, err := a.Orchestrator.TriggerManualRun(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(sum); err != nil {
		return err
	}
	return a.Drain(ctx)
}

func addSource(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("add-source", flag.ExitOnError)
	kindStr := fs.String("kind", "", "chat_group | web_page | social_account, or chat | page | social (required)")
	locator := fs.String("locator", "", "group id, page url or social handle (required)")
	name := fs.String("name", "", "display name")
	disabled := fs.Bool("disabled", false, "register without polling it")
	_ = fs.Parse(args)

	reg, err := sources.NewRegistration(*kindStr, *locator, *name)
	if err != nil {
		return err
	}
	src, err := a.Sources.Upsert(ctx, reg.Kind, reg.Locator, reg.Name, !*disabled)
	if err != nil {
		return err
	}
	return printJSON(src)
}

func listSources(ctx context.Context, a *app.App) error {
	srcs, err := a.Sources.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tNAME\tENABLED\tLAST POLLED\tERRORS")
	for _, s := range srcs {
		last := "never"
		if s.LastProcessedAt != nil {
			last = s.LastProcessedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%d\n", s.ID, s.Kind, s.Name, s.Enabled, last, s.ErrorCount)
	}
	return w.Flush()
}

func chatGroups(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("chat-groups", flag.ExitOnError)
	register := fs.Bool("register", false, "register every listed group as a source")
	_ = fs.Parse(args)

	if a.Chat == nil {
		return fmt.Errorf("CHAT_API_URL is not set")
	}
	groups, err := a.Chat.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Printf("%s\t%s\n", g.ID, g.Name)
		if *register {
			if _, err := a.Sources.Upsert(ctx, constants.SourceKindChat, g.ID, g.Name, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func listDLQ(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("dlq", flag.ExitOnError)
	limit := fs.Int("limit", 50, "max entries")
	_ = fs.Parse(args)

	dls, err := a.DLQ.List(ctx, *limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tATTEMPTS\tFAILED AT\tERROR")
	for _, d := range dls {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", d.ID, d.Stage, d.Attempts, d.FailedAt.Format(time.RFC3339), d.Error)
	}
	return w.Flush()
}

func requeue(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	id := fs.String("id", "", "dead letter id (required)")
	_ = fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	target, err := a.DLQ.Requeue(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("requeued %s as %s\n", *id, target)
	return nil
}

func exportDLQ(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export-dlq", flag.ExitOnError)
	out := fs.String("out", "dead-letters.xlsx", "output XLSX file path")
	limit := fs.Int("limit", 1000, "max entries")
	_ = fs.Parse(args)

	b, err := a.Exports.DeadLettersXLSX(ctx, *limit)
	if err != nil {
		return err
	}
	return writeFile(*out, b)
}

func exportRecords(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export-records", flag.ExitOnError)
	statusStr := fs.String("status", "", "pending_review | open | rejected | dead (default all)")
	out := fs.String("out", "casting-calls.xlsx", "output XLSX file path")
	limit := fs.Int("limit", 1000, "max rows")
	_ = fs.Parse(args)

	var status constants.RecordStatus
	if *statusStr != "" {
		st, ok := constants.ParseRecordStatus(*statusStr)
		if !ok {
			return fmt.Errorf("unknown -status %q", *statusStr)
		}
		status = st
	}
	b, err := a.Exports.RecordsXLSX(ctx, status, *limit)
	if err != nil {
		return err
	}
	return writeFile(*out, b)
}

func writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
