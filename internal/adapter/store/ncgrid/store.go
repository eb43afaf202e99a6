// Package ncgrid reads and writes annual raster stacks stored as one NetCDF
// file per year.
package ncgrid

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.ngs.io/ecotrend/internal/adapter/store"
	"go.ngs.io/ecotrend/internal/raster"
)

// YearPlaceholder is replaced by the four-digit year in file patterns.
const YearPlaceholder = "{year}"

// Store loads raster stacks from NetCDF files.
type Store struct {
	cache map[string]*raster.Grid // Cache loaded grids by path and variable.
	mu    sync.RWMutex            // Protect cache.
}

// NewStore creates a new NetCDF stack store.
func NewStore() *Store {
	return &Store{cache: make(map[string]*raster.Grid)}
}

// LoadStack loads the grid of every year for src. Grids already loaded for
// another stack are shared, not re-read, so an in-place mask applied to one
// stack is seen by every stack holding the same file.
func (s *Store) LoadStack(src store.Source, years []int) (*raster.Stack, error) {
	if !strings.Contains(src.Pattern, YearPlaceholder) {
		return nil, fmt.Errorf("pattern %q for %s has no %s placeholder", src.Pattern, src.Name, YearPlaceholder)
	}
	stack := &raster.Stack{
		Name:        src.Name,
		Years:       append([]int(nil), years...),
		Categorical: src.Categorical,
	}
	for _, year := range years {
		target := strings.ReplaceAll(src.Pattern, YearPlaceholder, strconv.Itoa(year))
		path, err := findFile(src.Dir, target)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", src.Name, year, err)
		}
		grid, err := s.loadGrid(path, src.Variable)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", src.Name, year, err)
		}
		stack.Grids = append(stack.Grids, grid)
	}
	return stack, nil
}

func (s *Store) loadGrid(path, variable string) (*raster.Grid, error) {
	key := path + "#" + variable

	// Check cache first.
	s.mu.RLock()
	if grid, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return grid, nil
	}
	s.mu.RUnlock()

	grid, err := LoadGrid(path, variable)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	s.mu.Lock()
	s.cache[key] = grid
	s.mu.Unlock()
	return grid, nil
}

// findFile searches dir recursively for a file named target (case-insensitive).
func findFile(dir, target string) (string, error) {
	var match string
	errFound := errors.New("found")
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), target) {
			match = path
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return match, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return "", fmt.Errorf("file %s not found under %s", target, dir)
}
