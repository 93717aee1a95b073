package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/app"
	"github.com/rumor-ml/commons.systems/budgetter/internal/config"
	"github.com/rumor-ml/commons.systems/budgetter/internal/dedup"
	"github.com/rumor-ml/commons.systems/budgetter/internal/output"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/rules"
	"github.com/rumor-ml/commons.systems/budgetter/internal/scanner"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/ui"
)

const version = "0.1.0"

const usage = `budgetctl - command line companion of the budgetter server

Usage:
  budgetctl [global flags] <command> [flags] [args]

Commands:
  import     Import OFX statements (files or directories)
  preview    Show what importing a statement would write
  seed       Create starter categories and rules
  recompute  Recompute the monthly combined balances
  version    Show version

Global flags:
`

// errUsage marks errors after which usage was already printed.
var errUsage = errors.New("usage")

// cli carries the global flags and output streams of one invocation.
type cli struct {
	stdout  io.Writer
	stderr  io.Writer
	ui      *ui.Printer
	envFile string
	dbPath  string
	verbose bool
	now     func() time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{stdout: stdout, stderr: stderr, ui: ui.New(stderr), now: time.Now}

	global := flag.NewFlagSet("budgetctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&c.envFile, "env", ".env", "dotenv file loaded before the environment")
	global.StringVar(&c.dbPath, "db", "", "SQLite database path (overrides database.path)")
	global.BoolVar(&c.verbose, "verbose", false, "Show detailed logs")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}

	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprintf(stderr, "Error: a command is required\n\n")
		global.Usage()
		return errUsage
	}

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "import":
		return c.importCmd(ctx, cmdArgs)
	case "preview":
		return c.previewCmd(ctx, cmdArgs)
	case "seed":
		return c.seedCmd(ctx, cmdArgs)
	case "recompute":
		return c.recomputeCmd(ctx, cmdArgs)
	case "version":
		fmt.Fprintf(stdout, "budgetctl version %s\n", version)
		return nil
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmd)
		global.Usage()
		return errUsage
	}
}

// open loads configuration and builds the app in CLI mode.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return nil, err
	}
	if c.dbPath != "" {
		cfg.Database.Path = c.dbPath
	}

	level := zerolog.WarnLevel
	if c.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: c.stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	return app.New(ctx, cfg, log, app.ModeCLI)
}

func (c *cli) flagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage:\n  budgetctl %s [flags] %s\n\nFlags:\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// collect expands args into statement files. Directories are scanned.
func (c *cli) collect(ctx context.Context, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		found, err := scanner.New(arg).Scan(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			files = append(files, f.Path)
		}
	}
	return files, nil
}

func (c *cli) importCmd(ctx context.Context, args []string) error {
	fs := c.flagSet("import", "<file-or-dir>...")
	stateFile := fs.String("state", "", "Import ledger file; files already imported are skipped")
	force := fs.Bool("force", false, "Import files even when the ledger has seen them")
	outputFile := fs.String("output", "", "Write a JSON report to this file")
	mergeMode := fs.Bool("merge", false, "Append the report to the history in -output")
	jsonOut := fs.Bool("json", false, "Print the JSON report to stdout")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(c.stderr, "Error: at least one file or directory is required\n\n")
		fs.Usage()
		return errUsage
	}

	files, err := c.collect(ctx, fs.Args())
	if err != nil {
		return fmt.Errorf("failed to collect statements: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no statement files found (supported extensions: .ofx, .qfx)")
	}

	var state *dedup.State
	if *stateFile != "" {
		if state, err = dedup.LoadOrNew(*stateFile); err != nil {
			return fmt.Errorf("failed to load state file %q: %w\n\nThe ledger exists but cannot be read. Move it aside to start over; the database itself skips known transactions", *stateFile, err)
		}
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c.ui.Header("Importing Statements")
	batch := output.NewBatch(c.now())
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.ui.Step(i+1, len(files), filepath.Base(path))
		batch.Add(c.importFile(ctx, a, state, path, *force))
	}

	if state != nil {
		if err := dedup.SaveState(state, *stateFile); err != nil {
			return fmt.Errorf("failed to save state file: %w", err)
		}
	}

	if batch.Imported > 0 {
		if _, err := a.RefreshDashboard(ctx); err != nil {
			c.ui.Warning(fmt.Sprintf("dashboard not refreshed: %v", err))
		}
	}

	c.ui.KeyValues([][2]string{
		{"files", strconv.Itoa(len(batch.Files))},
		{"imported", strconv.Itoa(batch.Imported)},
		{"skipped", strconv.Itoa(batch.Skipped)},
		{"failed", strconv.Itoa(batch.Failed)},
	})

	if *outputFile != "" {
		if err := output.WriteBatchToFile(batch, output.WriteOptions{FilePath: *outputFile, MergeMode: *mergeMode}); err != nil {
			return err
		}
	}
	if *jsonOut {
		if err := output.WriteBatch(batch, c.stdout); err != nil {
			return err
		}
	}

	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to import", batch.Failed, len(files))
	}
	return nil
}

// importFile imports one file and records it in the ledger. Failures are
// reported in the result, not returned.
func (c *cli) importFile(ctx context.Context, a *app.App, state *dedup.State, path string, force bool) output.FileResult {
	res := output.FileResult{Path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		res.Status, res.Error = output.StatusFailed, err.Error()
		c.ui.Error(err.Error())
		return res
	}

	fingerprint := dedup.Fingerprint(content)
	if state != nil && !force && state.IsDuplicate(fingerprint) {
		res.Status = output.StatusDuplicate
		c.ui.Info("already imported, skipped")
		return res
	}

	report, err := a.Pipeline.Import(ctx, filepath.Base(path), bytes.NewReader(content), parser.SourceCLI)
	if err != nil {
		res.Status, res.Error = output.StatusFailed, err.Error()
		c.ui.Error(err.Error())
		return res
	}
	res.Status, res.Report = output.StatusImported, report
	c.ui.Success(fmt.Sprintf("%d imported, %d already known", report.Imported, report.Skipped))

	if state != nil {
		if err := state.RecordImport(fingerprint, filepath.Base(path), report.Imported, c.now()); err != nil {
			c.ui.Warning(fmt.Sprintf("ledger not updated: %v", err))
		}
	}
	return res
}

func (c *cli) previewCmd(ctx context.Context, args []string) error {
	fs := c.flagSet("preview", "<file>")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(c.stderr, "Error: exactly one file is required\n\n")
		fs.Usage()
		return errUsage
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	preview, err := a.Pipeline.PreviewPath(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, preview)
}

func (c *cli) seedCmd(ctx context.Context, args []string) error {
	fs := c.flagSet("seed", "")
	file := fs.String("file", "", "Seed YAML file (default: built-in categories)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	var (
		seed *rules.Seed
		err  error
	)
	if *file != "" {
		seed, err = rules.LoadSeedFile(*file)
	} else {
		seed, err = rules.LoadEmbeddedSeed()
	}
	if err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var res rules.SeedResult
	err = a.Store.WithTx(ctx, func(q *store.Queries) error {
		var err error
		res, err = seed.Apply(ctx, q)
		return err
	})
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	c.ui.Success(fmt.Sprintf("created %d categories and %d rules", res.Categories, res.Rules))
	return nil
}

func (c *cli) recomputeCmd(ctx context.Context, args []string) error {
	fs := c.flagSet("recompute", "")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Aggregator.RecomputeSavings(ctx); err != nil {
		return err
	}
	balances, err := a.Store.ListMonthlyBalances(ctx)
	if err != nil {
		return err
	}

	rows := make([][2]string, len(balances))
	for i, b := range balances {
		rows[i] = [2]string{b.Label(), b.Balance.StringFixed(2)}
	}
	c.ui.Header("Monthly Combined Balances")
	c.ui.KeyValues(rows)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
