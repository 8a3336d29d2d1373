// reskit: multi-culture resource file manager.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/reskit/config"
	"github.com/minios-linux/reskit/culture"
	"github.com/minios-linux/reskit/discover"
	"github.com/minios-linux/reskit/i18n"
	"github.com/minios-linux/reskit/logging"
	"github.com/minios-linux/reskit/resfile"
	"github.com/minios-linux/reskit/resource"
	"github.com/minios-linux/reskit/rules"
	"github.com/minios-linux/reskit/sheetfile"
	"github.com/minios-linux/reskit/snapshot"
	"github.com/minios-linux/reskit/table"
	"github.com/minios-linux/reskit/tracker"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir   string
	logLevel  string
	logFormat string
)

// errViolations makes `reskit check` exit non-zero without an extra error line.
var errViolations = errors.New("consistency violations found")

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reskit",
		Short: i18n.T("Multi-culture resource file manager"),
		Long: i18n.T(`reskit keeps the resource files of a source tree in sync across cultures.

Every resource entity is a neutral file (Strings.properties, messages.yaml)
plus one file per culture next to it (Strings.de.properties). reskit loads
them into one table, checks it for consistency, exchanges it with translators
through spreadsheets, and tracks which keys the source code still uses.

Commands:
  status      Show entities, cultures and translation progress
  check       Run the consistency rules
  export      Write the table to a CSV/TSV spreadsheet
  import      Apply a spreadsheet to the resource files
  snapshot    Capture the table and compare it later
  refs        Count code references of every key

Settings are read from .reskit.yaml in the root directory.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", i18n.T("Source tree root directory"))
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", i18n.T("Log level: debug, info, warn, error (overrides config)"))
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", i18n.T("Log format: text, json (overrides config)"))

	root.AddCommand(
		newStatusCmd(),
		newCheckCmd(),
		newExportCmd(),
		newImportCmd(),
		newSnapshotCmd(),
		newRefsCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")

	if err := newRootCmd().Execute(); err != nil {
		switch {
		case resource.IsCanceled(err):
			logWarning(i18n.T("Interrupted, nothing more was written"))
			os.Exit(130)
		case errors.Is(err, errViolations):
		default:
			logError("%v", err)
		}
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Long:  i18n.T(`Display version, commit hash, and build date.`),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reskit version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
			if langs := i18n.Available(); len(langs) > 0 {
				fmt.Printf("  messages:  %s\n", strings.Join(langs, ", "))
			}
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Workspace: config + loaded resource table
// ---------------------------------------------------------------------------

type workspace struct {
	root string
	cfg  *config.File
	m    *resource.Manager
	log  *slog.Logger
}

// interruptContext returns a context canceled by Ctrl-C.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning(i18n.T("Interrupted, stopping..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openWorkspace loads the configuration and every resource file below the
// root directory.
func openWorkspace(ctx context.Context) (context.Context, *workspace, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return ctx, nil, err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return ctx, nil, err
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	logging.Setup(os.Stderr, level, format)
	ctx, _ = logging.WithOperation(ctx)
	log := logging.FromContext(ctx)

	opts := cfg.ManagerOptions(abs)
	opts.Logger = log
	m := resource.NewManager(resfile.Store{Neutral: cfg.Neutral()}, opts)

	files, err := discover.ResourceFiles(abs, discover.Options{
		Extensions: cfg.Extensions,
		Exclude:    cfg.ExcludePattern(),
	})
	if err != nil {
		return ctx, nil, err
	}
	log.Debug("resource files discovered", "root", abs, "files", len(files))

	res, err := m.Reload(ctx, files)
	if err != nil {
		return ctx, nil, err
	}
	for _, f := range res.Failures {
		logWarning(i18n.T("Skipped %s: %v"), relPath(abs, f.Path), f.Err)
	}

	return ctx, &workspace{root: abs, cfg: cfg, m: m, log: log}, nil
}

// save writes pending edits unless they were already written on commit.
func (w *workspace) save(ctx context.Context) error {
	if w.cfg.SaveImmediately && !w.m.HasChanges() {
		return nil
	}
	res, err := w.m.Save(ctx)
	if err != nil {
		return err
	}
	for _, p := range res.Saved {
		logSuccess(i18n.T("Saved %s"), relPath(w.root, p))
	}
	for _, f := range res.Failures {
		logError(i18n.T("Could not save %s: %v"), relPath(w.root, f.Path), f.Err)
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf(i18n.T("%d files could not be saved"), len(res.Failures))
	}
	return nil
}

func relPath(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

// parseCultures parses a comma-separated culture list; "." is neutral.
func parseCultures(list string) ([]culture.Key, error) {
	var keys []culture.Key
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if s == "." {
			keys = append(keys, culture.Neutral)
			continue
		}
		k, err := culture.Parse(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// status (read-only: entities + translation progress)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: i18n.T("Show entities, cultures and translation progress"),
		Long: i18n.T(`Show the discovered resource entities and per-culture translation progress.

A key counts as translated for a culture when it has a value there or is
marked invariant. Does not modify any files.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runStatus(ctx)
		},
	}

	return cmd
}

// cultureStats aggregates translation progress of one culture.
type cultureStats struct {
	culture    culture.Key
	total      int
	translated int
	missing    int // entities without a file for the culture
}

func collectStats(m *resource.Manager) []cultureStats {
	var out []cultureStats
	for _, k := range m.Cultures() {
		if k.IsNeutral() {
			continue
		}
		st := cultureStats{culture: k}
		for _, e := range m.Entities() {
			l, ok := e.Language(k)
			if !ok {
				st.total += len(e.Keys())
				st.missing++
				continue
			}
			total, translated, _ := l.Stats()
			st.total += total
			st.translated += translated
		}
		out = append(out, st)
	}
	return out
}

func runStatus(ctx context.Context) error {
	_, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	m := w.m

	projects := make(map[string]bool)
	keys := 0
	for _, e := range m.Entities() {
		projects[e.Project()] = true
		keys += len(e.Keys())
	}

	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, i18n.T("Resources"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", i18n.T("Root:"), w.root)
	fmt.Fprintf(os.Stderr, "  %-12s %s (%s)\n", i18n.T("Neutral:"), w.cfg.Neutral(), w.cfg.Neutral().DisplayName())
	fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Projects:"), len(projects))
	fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Entities:"), len(m.Entities()))
	fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Keys:"), keys)
	fmt.Fprintln(os.Stderr)

	stats := collectStats(m)
	if len(stats) == 0 {
		logInfo(i18n.T("No culture files found."))
		return nil
	}

	cultures := make([]string, len(stats))
	for i, st := range stats {
		cultures[i] = st.culture.Name()
	}
	width := langColumnWidth(cultures)

	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorBlue, i18n.T("Translation Progress"), colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, st := range stats {
		percent := 100
		if st.total > 0 {
			percent = st.translated * 100 / st.total
		}
		fmt.Fprintf(os.Stderr, "%s %s %5d/%-5d %s\n",
			langCell(st.culture, width), progressBar(percent, 20), st.translated, st.total, st.culture.DisplayName())
	}
	fmt.Fprintln(os.Stderr)

	for _, st := range stats {
		if st.missing > 0 {
			logInfo(i18n.N("%s: %d entity has no file yet", "%s: %d entities have no file yet", st.missing), st.culture, st.missing)
		}
	}
	for _, e := range m.Entities() {
		for _, l := range e.Languages() {
			for key, n := range l.Duplicates() {
				logWarning(i18n.T("%s [%s]: key %q occurs %d times"), e.ID(), l.Culture(), key, n+1)
			}
		}
	}
	return nil
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset + fmt.Sprintf("%4d%%", percent)
}

func langColumnWidth(langs []string) int {
	width := 0
	for _, l := range langs {
		if len(l) > width {
			width = len(l)
		}
	}
	return width
}

func langCell(k culture.Key, width int) string {
	flag := k.Flag()
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, k.Name())
}

// ---------------------------------------------------------------------------
// check (consistency rules)
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	var (
		ruleList  string
		listRules bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: i18n.T("Run the consistency rules"),
		Long: i18n.T(`Run the enabled consistency rules over every entry and culture.

Invariant entries are skipped, as are rules disabled for a single entry.
Exits with status 1 when a violation is found.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if listRules {
				reg := rules.DefaultRegistry()
				for _, id := range reg.IDs() {
					r, _ := reg.Get(id)
					fmt.Printf("%-16s %s\n", id, r.Description())
				}
				return nil
			}
			ctx, cancel := interruptContext()
			defer cancel()
			return runCheck(ctx, ruleList)
		},
	}

	cmd.Flags().StringVar(&ruleList, "rules", "", i18n.T("Comma-separated rule IDs to run (default: from config, else all)"))
	cmd.Flags().BoolVar(&listRules, "list", false, i18n.T("List the available rules and exit"))

	return cmd
}

func runCheck(ctx context.Context, ruleList string) error {
	_, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	enabled := w.cfg.Rules
	if ruleList != "" {
		enabled = strings.Split(ruleList, ",")
		for i := range enabled {
			enabled[i] = strings.TrimSpace(enabled[i])
		}
	}
	engine, err := rules.NewEngine(rules.DefaultRegistry(), enabled)
	if err != nil {
		return err
	}

	entries := w.m.TableEntries()
	total := 0
	for _, entry := range entries {
		for _, v := range engine.Violations(entry) {
			total++
			fmt.Printf("%s\t%s\t%s\n", entry.Entity().ID(), entry.Key(), v)
		}
	}

	if total == 0 {
		logSuccess(i18n.T("No consistency violations in %d entries"), len(entries))
		return nil
	}

	counts := engine.Summary(entries)
	fmt.Fprintln(os.Stderr)
	for _, id := range rules.SortedRuleCounts(counts) {
		fmt.Fprintf(os.Stderr, "  %-16s %d\n", id, counts[id])
	}
	logWarning(i18n.N("%d violation found", "%d violations found", total), total)
	return errViolations
}

// ---------------------------------------------------------------------------
// export (table -> spreadsheet)
// ---------------------------------------------------------------------------

func newExportCmd() *cobra.Command {
	var (
		mode     string
		cultures string
		comments bool
		ext      string
	)

	cmd := &cobra.Command{
		Use:   "export <file|dir>",
		Short: i18n.T("Write the table to a CSV/TSV spreadsheet"),
		Long: i18n.T(`Write the resource table to a spreadsheet.

In single mode the target is one file with Project, Entity and Key columns.
In per-entity mode the target is a directory with one file per entity.
Culture columns are named ".<culture>" ("." for neutral); comment columns
are prefixed with "#". Files ending in .tsv are tab separated.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runExport(ctx, args[0], mode, cultures, comments, ext)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", i18n.T("Sheet layout: single or per-entity (default: from config)"))
	cmd.Flags().StringVar(&cultures, "cultures", "", i18n.T("Comma-separated cultures to export (\".\" is neutral; default: all)"))
	cmd.Flags().BoolVar(&comments, "comments", false, i18n.T("Include comment columns"))
	cmd.Flags().StringVar(&ext, "ext", ".csv", i18n.T("File extension of per-entity sheets (.csv or .tsv)"))

	return cmd
}

func runExport(ctx context.Context, target, modeName, cultureList string, comments bool, ext string) error {
	_, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	mode := w.cfg.Mode()
	if modeName != "" {
		if mode, err = table.ParseMode(modeName); err != nil {
			return err
		}
	}

	scope := resource.FullScope(w.m, comments)
	if cultureList != "" {
		keys, err := parseCultures(cultureList)
		if err != nil {
			return err
		}
		scope.Languages = keys
		if comments {
			scope.Comments = keys
		}
	}

	sheets := table.Export(w.m, scope, mode)
	if err := sheetfile.Write(target, sheets, mode, ext); err != nil {
		return err
	}

	rows := 0
	for _, s := range sheets {
		rows += len(s.Rows) - 1
	}
	logSuccess(i18n.T("Exported %d rows in %d sheets to %s"), rows, len(sheets), target)
	return nil
}

// ---------------------------------------------------------------------------
// import (spreadsheet -> table)
// ---------------------------------------------------------------------------

func newImportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file|dir>",
		Short: i18n.T("Apply a spreadsheet to the resource files"),
		Long: i18n.T(`Apply a spreadsheet written by export (possibly edited) to the table.

The whole sheet is validated before anything changes. Only cells that differ
from the current table are applied; rows for unknown keys add them, and an
Action column set to "remove" deletes the key. Missing culture files are
created next to the neutral file.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runImport(ctx, args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, i18n.T("Show the changes without applying them"))

	return cmd
}

func runImport(ctx context.Context, source string, dryRun bool) error {
	ctx, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	sheets, mode, err := sheetfile.Read(source)
	if err != nil {
		return err
	}
	w.log.Debug("sheets read", "source", source, "mode", mode.String(), "sheets", len(sheets))

	cs, err := table.Import(w.m, sheets, w.cfg.DuplicatePolicy())
	if err != nil {
		var ie *table.ImportError
		if errors.As(err, &ie) {
			return fmt.Errorf(i18n.T("import refused, nothing was changed: %w"), err)
		}
		return err
	}
	if len(cs) == 0 {
		logInfo(i18n.T("The table already matches %s"), source)
		return nil
	}

	if dryRun {
		for _, c := range cs {
			fmt.Println(c)
		}
		logInfo(i18n.N("%d change would be applied", "%d changes would be applied", len(cs)), len(cs))
		return nil
	}

	res, err := w.m.Apply(ctx, cs)
	if err != nil {
		return err
	}
	for _, d := range res.Denied {
		logWarning("%v", d)
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	logSuccess(i18n.T("Applied %d changes, skipped %d"), res.Applied, res.Skipped)
	return nil
}

// ---------------------------------------------------------------------------
// snapshot (capture + compare)
// ---------------------------------------------------------------------------

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: i18n.T("Capture the table and compare it later"),
	}

	create := &cobra.Command{
		Use:   "create <file>",
		Short: i18n.T("Write a snapshot of the whole table"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runSnapshotCreate(ctx, args[0])
		},
	}

	var revert bool
	diff := &cobra.Command{
		Use:   "diff <file>",
		Short: i18n.T("Compare the table with a snapshot"),
		Long: i18n.T(`List every cell that changed, was added or was removed since the snapshot
was taken. With --revert, changed and removed cells are restored.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runSnapshotDiff(ctx, args[0], revert)
		},
	}
	diff.Flags().BoolVar(&revert, "revert", false, i18n.T("Restore the snapshot content of changed and removed cells"))

	cmd.AddCommand(create, diff)
	return cmd
}

func runSnapshotCreate(ctx context.Context, path string) error {
	_, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	text, err := snapshot.Create(w.m, resource.FullScope(w.m, true))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logSuccess(i18n.T("Snapshot written to %s"), path)
	return nil
}

func runSnapshotDiff(ctx context.Context, path string, revert bool) error {
	ctx, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	o := snapshot.NewOverlay(w.m)
	defer o.Close()
	if err := o.Load(string(data)); err != nil {
		return err
	}

	for _, d := range o.Changes() {
		fmt.Println(formatDiff(d))
	}
	s := o.Summary()
	logInfo(i18n.T("%d unchanged, %d changed, %d added, %d removed"), s.Unchanged, s.Changed, s.Added, s.Removed)

	if !revert {
		return nil
	}
	cs := o.RevertChanges()
	if len(cs) == 0 {
		logInfo(i18n.T("Nothing to revert"))
		return nil
	}
	res, err := w.m.Apply(ctx, cs)
	if err != nil {
		return err
	}
	for _, d := range res.Denied {
		logWarning("%v", d)
	}
	if err := w.save(ctx); err != nil {
		return err
	}
	logSuccess(i18n.T("Reverted %d cells"), res.Applied)
	return nil
}

func formatDiff(d snapshot.CellDiff) string {
	cult := d.Culture.Name()
	if cult == "" {
		cult = "."
	}
	switch d.Kind {
	case snapshot.Added:
		return fmt.Sprintf("+ %s %s [%s] %q", d.Entity, d.Key, cult, d.New.Value)
	case snapshot.Removed:
		return fmt.Sprintf("- %s %s [%s] %q", d.Entity, d.Key, cult, d.Old.Value)
	}
	return fmt.Sprintf("~ %s %s [%s] %q -> %q", d.Entity, d.Key, cult, d.Old.Value, d.New.Value)
}

// ---------------------------------------------------------------------------
// refs (code reference counts)
// ---------------------------------------------------------------------------

func newRefsCmd() *cobra.Command {
	var (
		unused  bool
		details bool
	)

	cmd := &cobra.Command{
		Use:   "refs",
		Short: i18n.T("Count code references of every key"),
		Long: i18n.T(`Scan the configured source directories for references to resource keys.

Without patterns in .reskit.yaml every identifier equal to a key counts.
Patterns such as "Resources.$File.$Key" narrow the match to one entity.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext()
			defer cancel()
			return runRefs(ctx, unused, details)
		},
	}

	cmd.Flags().BoolVar(&unused, "unused", false, i18n.T("Only list keys without references"))
	cmd.Flags().BoolVar(&details, "details", false, i18n.T("List every reference location"))

	return cmd
}

func runRefs(ctx context.Context, unused, details bool) error {
	ctx, w, err := openWorkspace(ctx)
	if err != nil {
		return err
	}

	files, err := discover.SourceFiles(w.cfg.SourcePaths(w.root), w.cfg.References.SourceExtensions)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logInfo(i18n.T("No source files found."))
		return nil
	}
	logInfo(i18n.T("Scanning %s"), discover.DescribeFiles(files))

	tr := tracker.New(tracker.Options{Logger: w.log})
	defer tr.Close()
	scan := tr.BeginFind(w.m, w.cfg.TrackerConfig(), files)
	stop := context.AfterFunc(ctx, tr.StopFind)
	defer stop()

	if err := scan.Wait(); err != nil {
		return err
	}
	for _, f := range scan.Failures() {
		logWarning(i18n.T("Skipped %s: %v"), relPath(w.root, f.Path), f.Err)
	}

	zero := 0
	for _, entry := range w.m.TableEntries() {
		id := entry.Entity().ID()
		n := scan.Count(id, entry.Key())
		if n == 0 {
			zero++
		}
		if unused && n > 0 {
			continue
		}
		fmt.Printf("%5d  %s\t%s\n", n, id, entry.Key())
		if details {
			for _, r := range scan.References(id, entry.Key()) {
				fmt.Printf("       %s:%d\n", relPath(w.root, r.File), r.Line)
			}
		}
	}
	logInfo(i18n.N("%d key has no references", "%d keys have no references", zero), zero)
	return nil
}
