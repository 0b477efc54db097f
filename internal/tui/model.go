// Package tui implements the terminal gallery: a scrollable grid of
// rendered tiles backed by the loading pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smileynet/mosaic/internal/action"
	"github.com/smileynet/mosaic/internal/cache"
	"github.com/smileynet/mosaic/internal/orchestrator"
	"github.com/smileynet/mosaic/internal/render"
	"github.com/smileynet/mosaic/internal/source"
	"github.com/smileynet/mosaic/internal/viewport"
)

// Default inner cell dimensions for grid tiles.
const (
	DefaultCellCols = 20
	DefaultCellRows = 8
)

// ActionDoneMsg reports a finished external command.
type ActionDoneMsg struct {
	Result action.Result
	Err    error
}

// Model is the Bubble Tea model for the gallery grid.
type Model struct {
	items  []source.Item
	orch   *orchestrator.Orchestrator
	runner *action.Runner

	cellCols int // tile content width in cells
	cellRows int // tile content height in rows
	est      *viewport.HeightEstimator

	width    int
	height   int
	cursor   int
	scroll   int // grid offset in terminal rows
	preview  bool
	overscan int

	spinner  spinner.Model
	status   string
	quitting bool
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithCellSize overrides the tile content dimensions.
func WithCellSize(cols, rows int) ModelOption {
	return func(m *Model) {
		m.cellCols = cols
		m.cellRows = rows
	}
}

// WithAspectRatio sizes tile rows adaptively: measured tile heights
// take over once available, with a width/aspect estimate covering the
// cold start. It supersedes the row count from WithCellSize.
func WithAspectRatio(ratio float64) ModelOption {
	return func(m *Model) { m.est = viewport.NewHeightEstimator(ratio) }
}

// WithOverscanRows overrides how many extra rows load beyond the
// visible window.
func WithOverscanRows(n int) ModelOption {
	return func(m *Model) { m.overscan = n }
}

// WithInitialPosition restores cursor and scroll from a saved session.
func WithInitialPosition(cursor, scroll int) ModelOption {
	return func(m *Model) {
		m.cursor = cursor
		m.scroll = scroll
	}
}

// NewModel creates a gallery over items. runner may be nil when no
// action command is configured.
func NewModel(items []source.Item, orch *orchestrator.Orchestrator, runner *action.Runner, opts ...ModelOption) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot

	m := Model{
		items:    items,
		orch:     orch,
		runner:   runner,
		cellCols: DefaultCellCols,
		cellRows: DefaultCellRows,
		overscan: viewport.DefaultOverscanRows,
		spinner:  s,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.cursor < 0 || m.cursor >= len(items) {
		m.cursor = 0
	}
	m.applyEstimatedRows()
	return m
}

// applyEstimatedRows syncs the tile row count with the height
// estimator. Layout and load planning both read cellRows, so they
// cannot diverge.
func (m *Model) applyEstimatedRows() {
	if m.est == nil {
		return
	}
	if rows := m.est.ItemHeight(m.cellCols, 1, 0); rows > 0 {
		m.cellRows = rows
	}
}

// Cursor returns the selected item index, for session persistence.
func (m Model) Cursor() int { return m.cursor }

// Scroll returns the grid row offset, for session persistence.
func (m Model) Scroll() int { return m.scroll }

// Columns returns the current grid column count.
func (m Model) Columns() int {
	return GridColumns(m.width, m.cellOuterCols())
}

// SelectedID returns the selected item's ID, or "" for an empty
// collection.
func (m Model) SelectedID() string {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return ""
	}
	return m.items[m.cursor].ID
}

// cellOuterCols is the cell width including its border.
func (m Model) cellOuterCols() int { return m.cellCols + 2 }

// cellOuterRows is the cell height including its border.
func (m Model) cellOuterRows() int { return m.cellRows + 2 }

// gridHeight is the terminal rows available to the grid.
func (m Model) gridHeight() int {
	h := m.height - 1 // status bar
	if h < 0 {
		h = 0
	}
	return h
}

func (m Model) metrics() viewport.Metrics {
	return viewport.Metrics{
		Height:       m.gridHeight(),
		ScrollOffset: m.scroll,
		Columns:      m.Columns(),
		Gap:          CellGap,
		ItemHeight:   m.cellOuterRows(),
		TotalItems:   len(m.items),
		OverscanRows: m.overscan,
	}
}

// reconcile pushes the current window to the pipeline.
func (m Model) reconcile() {
	m.orch.Reconcile(m.items, m.metrics(), m.preview)
}

// Init starts the spinner tick and the initial load pass.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clampScroll()
		m.reconcile()
		return m, nil

	case TileUpdateMsg:
		if msg.Status == orchestrator.StatusFailed {
			m.status = fmt.Sprintf("failed to load %s after %d attempts (r to retry)", msg.ID, msg.Attempts)
		}
		if m.est != nil && msg.Kind == cache.Thumbnail && msg.Status == orchestrator.StatusLoaded {
			if h, ok := m.orch.Peek(msg.ID, msg.Kind); ok {
				if tile, ok := h.Resource.(render.Tile); ok {
					m.est.Observe(tile.Height)
				}
			}
			before := m.cellRows
			m.applyEstimatedRows()
			if m.cellRows != before {
				m.clampScroll()
				m.reconcile()
			}
		}
		return m, nil

	case ActionDoneMsg:
		switch {
		case msg.Err != nil:
			m.status = fmt.Sprintf("action: %v", msg.Err)
		case !msg.Result.ExitedOK:
			m.status = fmt.Sprintf("action failed: %s", msg.Result.Err)
		default:
			m.status = "action completed"
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.preview {
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc", "enter":
			m.preview = false
			m.reconcile()
		}
		return m, nil
	}

	cols := m.Columns()
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "left", "h":
		m.moveCursor(-1)
	case "right", "l":
		m.moveCursor(1)
	case "up", "k":
		m.moveCursor(-cols)
	case "down", "j":
		m.moveCursor(cols)
	case "pgup":
		m.moveCursor(-cols * m.rowsPerPage())
	case "pgdown":
		m.moveCursor(cols * m.rowsPerPage())
	case "g", "home":
		m.cursor = 0
		m.afterMove()
	case "G", "end":
		if len(m.items) > 0 {
			m.cursor = len(m.items) - 1
		}
		m.afterMove()

	case "r":
		if id := m.SelectedID(); id != "" {
			m.orch.ForceReload(id)
			m.reconcile()
			m.status = "reloading " + id
		}

	case "enter":
		if len(m.items) > 0 {
			m.preview = true
			m.reconcile()
		}

	case "o":
		if m.runner != nil && m.cursor < len(m.items) {
			path := m.items[m.cursor].PrimaryPath
			runner := m.runner
			return m, func() tea.Msg {
				res, err := runner.Run(context.Background(), path)
				return ActionDoneMsg{Result: res, Err: err}
			}
		}
	}
	return m, nil
}

// rowsPerPage is how many full grid rows fit in the window.
func (m Model) rowsPerPage() int {
	rh := m.cellOuterRows() + CellGap
	n := m.gridHeight() / rh
	if n < 1 {
		n = 1
	}
	return n
}

func (m *Model) moveCursor(delta int) {
	if len(m.items) == 0 {
		return
	}
	next := m.cursor + delta
	if next < 0 {
		next = 0
	}
	if next >= len(m.items) {
		next = len(m.items) - 1
	}
	if next == m.cursor {
		return
	}
	m.cursor = next
	m.afterMove()
}

// afterMove keeps the cursor visible and re-plans loads. The
// interaction note lets the pipeline coalesce dispatch during held
// keys.
func (m *Model) afterMove() {
	m.status = ""
	m.ensureCursorVisible()
	m.orch.NoteInteraction()
	m.reconcile()
}

func (m *Model) ensureCursorVisible() {
	cols := m.Columns()
	if cols < 1 || m.gridHeight() < 1 {
		return
	}
	rh := m.cellOuterRows() + CellGap
	row := m.cursor / cols
	top := row * rh
	bottom := top + m.cellOuterRows()
	if top < m.scroll {
		m.scroll = top
	}
	if bottom > m.scroll+m.gridHeight() {
		m.scroll = bottom - m.gridHeight()
	}
	m.clampScroll()
}

func (m *Model) clampScroll() {
	if m.scroll < 0 {
		m.scroll = 0
	}
	cols := m.Columns()
	if cols < 1 {
		return
	}
	rh := m.cellOuterRows() + CellGap
	totalRows := (len(m.items) + cols - 1) / cols
	maxScroll := totalRows*rh - CellGap - m.gridHeight()
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}
}

// View renders the grid or the preview overlay.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}
	if len(m.items) == 0 {
		return PlaceholderStyle().Render("no images found") + "\n" + m.statusBar()
	}
	if m.preview {
		return m.previewView()
	}
	return m.gridView()
}

func (m Model) gridView() string {
	cols := m.Columns()
	vis := viewport.Visible(m.metrics())
	if vis.Empty() {
		return m.statusBar()
	}

	spacer := strings.Repeat(" ", CellGap)
	var rows []string
	for start := vis.Start - vis.Start%cols; start <= vis.End; start += cols {
		var cells []string
		for i := start; i < start+cols && i < len(m.items); i++ {
			if len(cells) > 0 {
				cells = append(cells, spacer)
			}
			cells = append(cells, m.cellView(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	// Row separator matches the vertical gap the load planner assumes.
	grid := strings.Join(rows, strings.Repeat("\n", CellGap+1))

	// Clip to the window: drop the scrolled-off top rows.
	rh := m.cellOuterRows() + CellGap
	firstRenderedRow := (vis.Start / cols) * rh
	skip := m.scroll - firstRenderedRow
	lines := strings.Split(grid, "\n")
	if skip > 0 && skip < len(lines) {
		lines = lines[skip:]
	}
	if len(lines) > m.gridHeight() {
		lines = lines[:m.gridHeight()]
	}
	return strings.Join(lines, "\n") + "\n" + m.statusBar()
}

func (m Model) cellView(i int) string {
	content := m.tileContent(m.items[i].ID, cache.Thumbnail)
	style := PlainCell()
	if i == m.cursor {
		style = SelectedCell()
	}
	return style.Width(m.cellCols).Height(m.cellRows).Render(content)
}

// tileContent resolves a tile's body: rendered cells, a failure
// glyph, or a spinner placeholder.
func (m Model) tileContent(id string, kind cache.Kind) string {
	if h, ok := m.orch.Peek(id, kind); ok {
		if tile, ok := h.Resource.(render.Tile); ok {
			return tile.Cells
		}
	}
	if m.orch.Failed(id, kind) {
		return FailedStyle().Render("✗ load failed")
	}
	return PlaceholderStyle().Render(m.spinner.View() + " loading")
}

func (m Model) previewView() string {
	item := m.items[m.cursor]
	content := m.tileContent(item.ID, cache.Original)
	// Fall back to the thumbnail while the original is in flight.
	if h, ok := m.orch.Peek(item.ID, cache.Original); !ok || h == nil {
		if th, tok := m.orch.Peek(item.ID, cache.Thumbnail); tok {
			if tile, yes := th.Resource.(render.Tile); yes {
				content = tile.Cells
			}
		}
	}
	body := lipgloss.Place(m.width, m.gridHeight(), lipgloss.Center, lipgloss.Center, content)
	return body + "\n" + m.statusBar()
}

func (m Model) statusBar() string {
	if m.status != "" {
		return StatusBar().Render(m.status)
	}
	pos := ""
	if len(m.items) > 0 {
		pos = fmt.Sprintf("%d/%d  %s", m.cursor+1, len(m.items), m.items[m.cursor].ID)
	}
	help := "←↓↑→ move · enter preview · o open · r retry · q quit"
	bar := pos
	if bar != "" {
		bar += "  ·  "
	}
	return StatusBar().Render(bar) + PlaceholderStyle().Render(help)
}
