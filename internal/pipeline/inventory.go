package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"scanflow/internal/services"
)

// Inventory lists the acquisition and summary files available at the source
// endpoint. Implementations must be cheap to call repeatedly; the sync job
// asks for a fresh listing on every run.
type Inventory interface {
	DataFiles(ctx context.Context) ([]string, error)
	SummaryFiles(ctx context.Context) ([]string, error)
}

// Fetcher transfers one named source file to a local destination path.
type Fetcher interface {
	FetchData(ctx context.Context, name, dest string) error
	FetchSummary(ctx context.Context, name, dest string) error
}

// LocalInventory reads a drop directory on the local filesystem, typically a
// mounted share the scanner console exports to. Archives are data files,
// plain-text files are acquisition summaries; anything else is ignored.
type LocalInventory struct {
	dir string
}

// NewLocalInventory builds an inventory over dir.
func NewLocalInventory(dir string) *LocalInventory {
	return &LocalInventory{dir: dir}
}

// DataFiles lists the archive files in the drop directory.
func (l *LocalInventory) DataFiles(ctx context.Context) ([]string, error) {
	return l.list(ctx, ".zip")
}

// SummaryFiles lists the summary documents in the drop directory.
func (l *LocalInventory) SummaryFiles(ctx context.Context) ([]string, error) {
	return l.list(ctx, ".txt")
}

func (l *LocalInventory) list(ctx context.Context, ext string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfig, "sync", "list inbox", l.dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// LocalFetcher copies source files out of the drop directory.
type LocalFetcher struct {
	dir string
}

// NewLocalFetcher builds a fetcher over dir.
func NewLocalFetcher(dir string) *LocalFetcher {
	return &LocalFetcher{dir: dir}
}

// FetchData copies the named archive to dest.
func (l *LocalFetcher) FetchData(ctx context.Context, name, dest string) error {
	return l.fetch(ctx, name, dest)
}

// FetchSummary copies the named summary document to dest.
func (l *LocalFetcher) FetchSummary(ctx context.Context, name, dest string) error {
	return l.fetch(ctx, name, dest)
}

func (l *LocalFetcher) fetch(ctx context.Context, name, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyFile(filepath.Join(l.dir, name), dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
