package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

var yearDirName = regexp.MustCompile(`^\d{4}$`)

// Directory lists <root>/<year>/*.pdf as WorkItems.
type Directory struct {
	root        string
	years       map[string]struct{}
	parallelism int
	logger      *zap.Logger
}

// NewDirectory builds a Directory lister. An empty years slice lists every year.
func NewDirectory(root string, years []string, parallelism int, logger *zap.Logger) *Directory {
	if parallelism <= 0 {
		parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{root: root, years: yearFilter(years), parallelism: parallelism, logger: logger}
}

// Discover walks the year directories concurrently and returns sorted items.
func (d *Directory) Discover(ctx context.Context) ([]paper.WorkItem, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read discovery root %s: %w", d.root, err)
	}

	var (
		mu    sync.Mutex
		items []paper.WorkItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, entry := range entries {
		year := entry.Name()
		if !entry.IsDir() || !yearDirName.MatchString(year) {
			continue
		}
		if len(d.years) > 0 {
			if _, ok := d.years[year]; !ok {
				continue
			}
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found, err := d.listYear(year)
			if err != nil {
				return err
			}
			mu.Lock()
			items = append(items, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	SortItems(items)
	d.logger.Info("directory listing finished", zap.String("root", d.root), zap.Int("papers", len(items)))
	return items, nil
}

func (d *Directory) listYear(year string) ([]paper.WorkItem, error) {
	dir := filepath.Join(d.root, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []paper.WorkItem
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		out = append(out, paper.WorkItem{
			Source: filepath.Join(dir, name),
			Group:  year,
			ID:     name,
		})
	}
	return out, nil
}
