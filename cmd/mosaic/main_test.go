package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/smileynet/mosaic/internal/render"
	"github.com/smileynet/mosaic/internal/source"
	"github.com/smileynet/mosaic/internal/state"
)

// errExitCalled is a sentinel used to catch kong's os.Exit calls in tests.
var errExitCalled = errors.New("exit called")

func TestCLI_VersionFlag(t *testing.T) {
	// Given: a CLI parser with version, commit, and date fields
	var cli CLI
	var buf bytes.Buffer
	versionStr := "v1.0.0 abc1234 2026-01-01T00:00:00Z"
	k, err := kong.New(&cli,
		kong.Vars{"version": versionStr},
		kong.Writers(&buf, &buf),
		kong.Exit(func(int) { panic(errExitCalled) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	// When: --version flag is passed
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic from --version flag")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, errExitCalled) {
			panic(r)
		}

		// Then: version, commit, and date are all present in output
		output := buf.String()
		for _, want := range []string{"v1.0.0", "abc1234", "2026-01-01T00:00:00Z"} {
			if !strings.Contains(output, want) {
				t.Errorf("version output = %q, want to contain %q", output, want)
			}
		}
	}()

	k.Parse([]string{"--version"}) //nolint:errcheck // --version triggers panic via Exit hook
}

func TestCLI_BrowseIsDefault(t *testing.T) {
	var cli CLI
	k, err := kong.New(&cli, kong.Vars{"version": "test"})
	if err != nil {
		t.Fatal(err)
	}

	kctx, err := k.Parse([]string{"/some/dir"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(kctx.Command(), "browse") {
		t.Errorf("command = %q, want browse", kctx.Command())
	}
	if cli.Browse.Dir != "/some/dir" {
		t.Errorf("dir = %q, want /some/dir", cli.Browse.Dir)
	}
}

func TestCLI_BrowseFlags(t *testing.T) {
	var cli CLI
	k, err := kong.New(&cli, kong.Vars{"version": "test"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = k.Parse([]string{"browse", ".", "--renderer", "solid", "--no-resume"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Browse.Renderer != "solid" {
		t.Errorf("renderer = %q, want solid", cli.Browse.Renderer)
	}
	if !cli.Browse.NoResume {
		t.Error("no-resume flag not set")
	}
}

func TestCLI_ScanDefaultsToCwd(t *testing.T) {
	var cli CLI
	k, err := kong.New(&cli, kong.Vars{"version": "test"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = k.Parse([]string{"scan"})
	if err != nil {
		t.Fatal(err)
	}
	if cli.Scan.Dir != "." {
		t.Errorf("dir = %q, want .", cli.Scan.Dir)
	}
}

func TestScanCmd_Output(t *testing.T) {
	var buf bytes.Buffer
	items := []source.Item{
		{ID: "a.png", PrimaryPath: "/d/a.png"},
		{ID: "sub/b.jpg", PrimaryPath: "/d/sub/b.jpg"},
	}

	if err := (&ScanCmd{}).run(&buf, items); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"a.png", "sub/b.jpg", "2 images"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

// fakeRemover records Remove calls for ForgetCmd tests.
type fakeRemover struct {
	removed []string
	err     error
}

func (f *fakeRemover) Remove(root string) error {
	f.removed = append(f.removed, root)
	return f.err
}

func TestForgetCmd_RemovesSession(t *testing.T) {
	var buf bytes.Buffer
	rem := &fakeRemover{}

	if err := (&ForgetCmd{}).run(&buf, rem, "/pics"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(rem.removed) != 1 || rem.removed[0] != "/pics" {
		t.Errorf("removed = %v, want [/pics]", rem.removed)
	}
	if !strings.Contains(buf.String(), "/pics") {
		t.Errorf("output %q does not confirm the directory", buf.String())
	}
}

func TestForgetCmd_PropagatesError(t *testing.T) {
	rem := &fakeRemover{err: fmt.Errorf("disk gone")}
	err := (&ForgetCmd{}).run(&bytes.Buffer{}, rem, "/pics")
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("run() error = %v, want wrapped disk error", err)
	}
}

func TestItemIndex(t *testing.T) {
	items := []source.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	if got := itemIndex(items, "b"); got != 1 {
		t.Errorf("itemIndex(b) = %d, want 1", got)
	}
	if got := itemIndex(items, "gone"); got != 0 {
		t.Errorf("itemIndex(gone) = %d, want 0", got)
	}
	if got := itemIndex(items, ""); got != 0 {
		t.Errorf("itemIndex(\"\") = %d, want 0", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitSuccess},
		{name: "generic", err: errors.New("boom"), want: exitRun},
		{
			name: "unknown renderer",
			err:  fmt.Errorf("browse: %w", &render.UnknownRendererError{Name: "sixel"}),
			want: exitSetup,
		},
		{
			name: "invalid session root",
			err:  fmt.Errorf("forget: %w", state.ErrInvalidRoot),
			want: exitSetup,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
