package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/mosaic/internal/action"
	"github.com/smileynet/mosaic/internal/cache"
	"github.com/smileynet/mosaic/internal/config"
	"github.com/smileynet/mosaic/internal/loader"
	"github.com/smileynet/mosaic/internal/orchestrator"
	"github.com/smileynet/mosaic/internal/render"
	"github.com/smileynet/mosaic/internal/source"
	"github.com/smileynet/mosaic/internal/state"
	"github.com/smileynet/mosaic/internal/tui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// CLI is the top-level command structure for mosaic.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	Browse  BrowseCmd        `cmd:"" default:"withargs" help:"Browse a directory of images."`
	Scan    ScanCmd          `cmd:"" help:"List the images a browse would show."`
	Forget  ForgetCmd        `cmd:"" help:"Discard the saved session for a directory."`
}

// BrowseCmd opens the gallery TUI over a directory.
type BrowseCmd struct {
	Dir      string `arg:"" optional:"" default:"." help:"Directory to browse."`
	Renderer string `help:"Tile renderer (halfblock or solid). Overrides config."`
	NoResume bool   `help:"Start at the top instead of the saved position." default:"false"`
}

// ScanCmd lists recognized images without opening the TUI.
type ScanCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Directory to scan."`
}

// ForgetCmd removes the persisted session for a directory.
type ForgetCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Directory whose session to forget."`
}

// teaRunner abstracts Bubble Tea program execution for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

// loadConfig loads layered config from user and directory paths with env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/mosaic/config.yaml"),
		".mosaic.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sessionStore returns the store for per-directory browse sessions.
func sessionStore() *state.FileStore {
	return state.NewFileStore(os.ExpandEnv("$HOME/.local/state/mosaic/sessions"))
}

// Run builds the pipeline and launches the gallery.
func (b *BrowseCmd) Run() error {
	if !tui.IsTTY(os.Stdout) {
		return fmt.Errorf("browse: requires a terminal (TTY)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	if b.Renderer != "" {
		cfg.Render.Renderer = b.Renderer
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	dir, err := filepath.Abs(b.Dir)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	items, err := source.NewScanner(cfg.Source.Extensions).Scan(ctx, dir)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	renderer, err := render.NewRegistry().NewRenderer(cfg.Render.Renderer)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	builder := render.NewBuilder(renderer, render.Sizes{
		TileCols: tui.DefaultCellCols, TileRows: tui.DefaultCellRows,
		OriginalCols: 120, OriginalRows: 60,
	})

	c := cache.New(cache.WithCapacity(cfg.Cache.Capacity))
	ldr := loader.New(loader.WithMaxInFlight(cfg.Loader.MaxInFlight))
	reader := source.NewReader()
	bridge := tui.NewBridge()
	defer bridge.Close()

	orch := orchestrator.New(c, ldr, reader.Read, builder.Build,
		orchestrator.WithStatusCallback(bridge.Callback()),
		orchestrator.WithRetryBudgets(cfg.Loader.Retry.ThumbnailAttempts, cfg.Loader.Retry.OriginalAttempts),
		orchestrator.WithBackoff(cfg.Loader.Retry.BackoffBase, cfg.Loader.Retry.BackoffMax),
		orchestrator.WithWorkingSetLimit(cfg.Viewport.WorkingSetLimit),
		orchestrator.WithHoldWindow(cfg.Loader.HoldWindow),
	)
	defer orch.Close()

	var runner *action.Runner
	if cfg.Action.Command != "" {
		runner = action.NewRunner(cfg.Action.Command)
	}

	opts := []tui.ModelOption{
		tui.WithOverscanRows(cfg.Viewport.OverscanRows),
		tui.WithAspectRatio(cfg.Viewport.AspectRatio),
	}
	store := sessionStore()
	if !b.NoResume {
		if sess, found, err := store.Load(dir); err == nil && found {
			opts = append(opts, tui.WithInitialPosition(itemIndex(items, sess.SelectedID), sess.ScrollOffset))
		}
	}

	model := tui.NewModel(items, orch, runner, opts...)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	go bridge.Forward(prog)

	final, err := b.run(prog)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	// Persist where the browse left off. Best-effort.
	if m, ok := final.(tui.Model); ok && len(items) > 0 {
		_ = store.Save(state.Session{
			Root:         dir,
			ScrollOffset: m.Scroll(),
			Columns:      m.Columns(),
			SelectedID:   m.SelectedID(),
			Renderer:     cfg.Render.Renderer,
		})
	}
	return nil
}

// run executes the tea program, enabling testable wiring.
func (b *BrowseCmd) run(prog teaRunner) (tea.Model, error) {
	return prog.Run()
}

// itemIndex resolves a saved item ID to its index, or 0 when gone.
func itemIndex(items []source.Item, id string) int {
	if id == "" {
		return 0
	}
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return 0
}

// Run executes the scan command.
func (s *ScanCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	items, err := source.NewScanner(cfg.Source.Extensions).Scan(ctx, s.Dir)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return s.run(os.Stdout, items)
}

// run prints the scan result, enabling testable wiring.
func (s *ScanCmd) run(w io.Writer, items []source.Item) error {
	for _, it := range items {
		_, _ = fmt.Fprintln(w, it.ID)
	}
	_, _ = fmt.Fprintf(w, "%d images\n", len(items))
	return nil
}

// Run executes the forget command.
func (f *ForgetCmd) Run() error {
	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	return f.run(os.Stdout, sessionStore(), dir)
}

// sessionRemover abstracts session removal for testing.
type sessionRemover interface {
	Remove(root string) error
}

// run removes the session, enabling testable wiring.
func (f *ForgetCmd) run(w io.Writer, store sessionRemover, dir string) error {
	if err := store.Remove(dir); err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Forgot session for %s\n", dir)
	return nil
}

// Exit codes.
const (
	exitSuccess = 0
	exitRun     = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var unknown *render.UnknownRendererError
	if errors.As(err, &unknown) {
		return exitSetup
	}
	if errors.Is(err, state.ErrInvalidRoot) {
		return exitSetup
	}
	return exitRun
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Vars{"version": version + " " + commit + " " + date})
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
