package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/smileynet/mosaic/internal/cache"
	"github.com/smileynet/mosaic/internal/loader"
	"github.com/smileynet/mosaic/internal/orchestrator"
	"github.com/smileynet/mosaic/internal/render"
	"github.com/smileynet/mosaic/internal/source"
)

func testItems(n int) []source.Item {
	items := make([]source.Item, n)
	for i := range items {
		id := fmt.Sprintf("img-%02d.png", i)
		items[i] = source.Item{ID: id, PrimaryPath: "/gallery/" + id}
	}
	return items
}

func newGalleryModel(t *testing.T, n int) Model {
	t.Helper()
	c := cache.New()
	t.Cleanup(c.Clear)
	read := func(ctx context.Context, path string) ([]byte, error) {
		return []byte(path), nil
	}
	build := func(data []byte, pathHint string, kind cache.Kind) (*cache.Handle, error) {
		tile := render.Tile{Cells: "##", Width: 2, Height: 1}
		return cache.NewHandle(tile, len(tile.Cells), nil), nil
	}
	orch := orchestrator.New(c, loader.New(loader.WithMaxInFlight(4)), read, build, orchestrator.WithHoldWindow(0))
	t.Cleanup(orch.Close)
	return NewModel(testItems(n), orch, nil)
}

// newAspectModel builds a gallery with adaptive row sizing whose
// tiles all render tileHeight rows tall.
func newAspectModel(t *testing.T, n, tileHeight int, ratio float64) Model {
	t.Helper()
	c := cache.New()
	t.Cleanup(c.Clear)
	read := func(ctx context.Context, path string) ([]byte, error) {
		return []byte(path), nil
	}
	build := func(data []byte, pathHint string, kind cache.Kind) (*cache.Handle, error) {
		tile := render.Tile{Cells: "##", Width: 2, Height: tileHeight}
		return cache.NewHandle(tile, len(tile.Cells), nil), nil
	}
	orch := orchestrator.New(c, loader.New(loader.WithMaxInFlight(4)), read, build, orchestrator.WithHoldWindow(0))
	t.Cleanup(orch.Close)
	return NewModel(testItems(n), orch, nil, WithAspectRatio(ratio))
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return updated.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(key(k))
		m = updated.(Model)
	}
	return m
}

func TestModel_CursorMovement(t *testing.T) {
	m := sized(t, newGalleryModel(t, 12))
	cols := m.Columns()
	if cols < 2 {
		t.Fatalf("grid has %d columns, test needs at least 2", cols)
	}

	m = press(t, m, "right")
	if m.Cursor() != 1 {
		t.Errorf("cursor = %d after right, want 1", m.Cursor())
	}

	m = press(t, m, "down")
	if m.Cursor() != 1+cols {
		t.Errorf("cursor = %d after down, want %d", m.Cursor(), 1+cols)
	}

	m = press(t, m, "h")
	if m.Cursor() != cols {
		t.Errorf("cursor = %d after h, want %d", m.Cursor(), cols)
	}
}

func TestModel_CursorClampedAtEnds(t *testing.T) {
	m := sized(t, newGalleryModel(t, 3))

	m = press(t, m, "h", "h")
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d after moving left at start, want 0", m.Cursor())
	}

	m = press(t, m, "G", "l", "j")
	if m.Cursor() != 2 {
		t.Errorf("cursor = %d after moving right at end, want 2", m.Cursor())
	}
}

func TestModel_HomeAndEnd(t *testing.T) {
	m := sized(t, newGalleryModel(t, 40))

	m = press(t, m, "G")
	if m.Cursor() != 39 {
		t.Errorf("cursor = %d after G, want 39", m.Cursor())
	}
	m = press(t, m, "g")
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d after g, want 0", m.Cursor())
	}
	if m.Scroll() != 0 {
		t.Errorf("scroll = %d after g, want 0", m.Scroll())
	}
}

func TestModel_ScrollFollowsCursor(t *testing.T) {
	m := sized(t, newGalleryModel(t, 200))

	m = press(t, m, "G")
	if m.Scroll() == 0 {
		t.Error("scroll stayed 0 after jumping to the last item")
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := sized(t, newGalleryModel(t, 3))

	updated, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q produced no command, want tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q produced %T, want tea.QuitMsg", cmd())
	}
	if updated.(Model).View() != "" {
		t.Error("quitting model still renders content")
	}
}

func TestModel_PreviewToggle(t *testing.T) {
	m := sized(t, newGalleryModel(t, 3))

	m = press(t, m, "enter")
	if !m.preview {
		t.Fatal("enter did not open preview")
	}
	m = press(t, m, "esc")
	if m.preview {
		t.Error("esc did not close preview")
	}
}

func TestModel_FailureUpdatesStatus(t *testing.T) {
	m := sized(t, newGalleryModel(t, 3))

	updated, _ := m.Update(TileUpdateMsg{
		ID:       "img-01.png",
		Kind:     cache.Thumbnail,
		Status:   orchestrator.StatusFailed,
		Attempts: 3,
	})
	view := updated.(Model).View()
	if !strings.Contains(view, "img-01.png") || !strings.Contains(view, "3 attempts") {
		t.Errorf("view does not surface the failure, got status line %q", updated.(Model).status)
	}
}

func TestModel_ViewShowsPosition(t *testing.T) {
	m := sized(t, newGalleryModel(t, 5))
	m = press(t, m, "right")

	if got := m.View(); !strings.Contains(got, "2/5") {
		t.Errorf("view does not show position 2/5")
	}
}

func TestModel_EmptyCollection(t *testing.T) {
	m := sized(t, newGalleryModel(t, 0))
	if got := m.View(); !strings.Contains(got, "no images") {
		t.Errorf("empty-collection view = %q, want a no-images notice", got)
	}
	// Movement on an empty collection must not panic.
	m = press(t, m, "right", "down", "G", "enter")
	if m.Cursor() != 0 {
		t.Errorf("cursor = %d on empty collection, want 0", m.Cursor())
	}
}

func TestModel_AspectRatioSetsInitialRowBudget(t *testing.T) {
	m := newAspectModel(t, 3, 5, 2.0)

	// Before any tile lands, row count comes from tile width and the
	// configured aspect: 20 cells at 2:1 is 10 rows.
	if want := DefaultCellCols / 2; m.cellRows != want {
		t.Errorf("cellRows = %d with 2:1 aspect, want %d", m.cellRows, want)
	}
}

func TestModel_MeasuredTileHeightOverridesEstimate(t *testing.T) {
	m := sized(t, newAspectModel(t, 3, 5, 2.0))

	// Wait for a thumbnail to land so the update can measure it.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.orch.Peek("img-00.png", cache.Thumbnail); ok {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	updated, _ := m.Update(TileUpdateMsg{
		ID:     "img-00.png",
		Kind:   cache.Thumbnail,
		Status: orchestrator.StatusLoaded,
	})
	m = updated.(Model)
	if m.cellRows != 5 {
		t.Errorf("cellRows = %d after measuring a 5-row tile, want 5", m.cellRows)
	}
}

func TestGridColumns(t *testing.T) {
	tests := []struct {
		total, cell, want int
	}{
		{0, 22, 1},
		{22, 22, 1},
		{45, 22, 2},
		{80, 22, 3},
		{80, 0, 1},
	}
	for _, tt := range tests {
		if got := GridColumns(tt.total, tt.cell); got != tt.want {
			t.Errorf("GridColumns(%d, %d) = %d, want %d", tt.total, tt.cell, got, tt.want)
		}
	}
}
