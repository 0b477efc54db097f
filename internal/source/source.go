// Package source supplies the item list and the byte-read primitive
// for a collection. Items come from scanning a local directory; the
// loading pipeline treats the result as an ordered snapshot.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Item is one entry of a collection. ID is stable across rescans of
// the same tree (it is the path relative to the collection root).
type Item struct {
	ID            string
	PrimaryPath   string
	ThumbnailPath string // optional pre-rendered thumbnail; empty means derive from PrimaryPath
}

// ThumbSource returns the path thumbnail loads should read.
func (it Item) ThumbSource() string {
	if it.ThumbnailPath != "" {
		return it.ThumbnailPath
	}
	return it.PrimaryPath
}

// DefaultExtensions are the image file extensions recognized by Scan.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// scanParallelism bounds concurrent stat calls during a scan.
const scanParallelism = 8

// Scanner walks a directory tree for image files.
type Scanner struct {
	extensions map[string]struct{}
}

// NewScanner creates a Scanner recognizing the given extensions
// (case-insensitive, leading dot required). An empty list means
// DefaultExtensions.
func NewScanner(extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{extensions: set}
}

// Scan walks root and returns the recognized image files as an
// ordered item list, sorted by relative path so rescans of an
// unchanged tree produce an identical snapshot. Unreadable or
// irregular entries are verified concurrently and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]Item, error) {
	var relPaths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: scanning %s: %w", root, err)
	}

	// Verify candidates are regular, non-empty files. Stat calls are
	// the slow part on network mounts, so they run concurrently.
	keep := make([]bool, len(relPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanParallelism)
	for i, rel := range relPaths {
		i, rel := i, rel
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			info, err := os.Stat(filepath.Join(root, rel))
			if err != nil {
				return nil // vanished between walk and stat; skip
			}
			keep[i] = info.Mode().IsRegular() && info.Size() > 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("source: scanning %s: %w", root, err)
	}

	items := make([]Item, 0, len(relPaths))
	for i, rel := range relPaths {
		if !keep[i] {
			continue
		}
		items = append(items, Item{
			ID:          filepath.ToSlash(rel),
			PrimaryPath: filepath.Join(root, rel),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Reader is the asynchronous byte-read primitive handed to the
// loading pipeline. Failures are not classified; the pipeline treats
// every failure as retry-eligible.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read returns the file's bytes, honoring context cancellation before
// starting the read.
func (r *Reader) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("source: %s is empty", path)
	}
	return data, nil
}
