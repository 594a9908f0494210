package fileloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// sourcePart is one parsed file of a directory load
type sourcePart struct {
	name     string
	hash     string
	table    *table
	warnings []string
}

// DiscoverFiles returns the regular files under dir matching pattern, sorted,
// and whether the list was cut at maxFiles.
func DiscoverFiles(dir, pattern string, maxFiles int) ([]string, bool, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, false, fmt.Errorf("pattern matching failed: %w", err)
	}
	sort.Strings(matches)

	var files []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if ft, _ := DetectFileTypeAndCompression(match); ft == FileTypeUnknown {
			continue
		}
		if maxFiles > 0 && len(files) >= maxFiles {
			return files, true, nil
		}
		files = append(files, match)
	}
	return files, false, nil
}

// loadDirectory parses every matching file concurrently and unions them.
// Records keep file order then row order; each carries its relative path.
func loadDirectory(ctx context.Context, dir string, opts Options) (*source, error) {
	files, truncated, err := DiscoverFiles(dir, opts.Pattern, opts.MaxFiles)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no loadable files in %s matching %q", dir, opts.Pattern)
	}

	parts := make([]sourcePart, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				rel = filepath.Base(path)
			}
			rel = filepath.ToSlash(rel)
			t, warnings, err := parseBytes(data, path, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			hash, err := HashBytes(data, opts.HashKey)
			if err != nil {
				return err
			}
			parts[i] = sourcePart{name: rel, hash: hash, table: t, warnings: warnings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &source{fields: []string{SourceFileField}}
	seen := map[string]struct{}{SourceFileField: {}}
	for _, p := range parts {
		for _, f := range p.table.fields {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out.fields = append(out.fields, f)
			}
		}
		for _, row := range p.table.rows {
			row[SourceFileField] = p.name
			out.rows = append(out.rows, row)
		}
		for _, w := range p.warnings {
			out.warnings = append(out.warnings, p.name+": "+w)
		}
	}
	if truncated {
		out.warnings = append(out.warnings, fmt.Sprintf("directory has more than %d matching files; the rest were skipped", opts.MaxFiles))
	}
	out.id, err = hashParts(parts, opts.HashKey)
	if err != nil {
		return nil, err
	}
	return out, nil
}
