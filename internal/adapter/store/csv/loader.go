// Package csv provides CSV-based point time series loading.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.ngs.io/ecotrend/internal/domain"
)

// SeriesStore provides access to single-point annual series stored as
// "<name>.csv" files with a "year,value" header.
type SeriesStore struct {
	dataDir string
}

// NewSeriesStore creates a new CSV-based series store.
func NewSeriesStore(dataDir string) *SeriesStore {
	return &SeriesStore{
		dataDir: dataDir,
	}
}

// LoadSeries loads the named series.
func (s *SeriesStore) LoadSeries(name string) (domain.Series, error) {
	path := filepath.Join(s.dataDir, name+".csv")
	return ReadSeriesFile(path)
}

// ReadSeriesFile reads a year,value CSV file. Empty cells and the tokens
// "nan", "na" and "nodata" are read as missing values. Rows must be in
// strictly increasing year order.
func ReadSeriesFile(path string) (domain.Series, error) {
	//nolint:gosec // G304: path comes from configuration or the command line.
	file, err := os.Open(path)
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to open CSV file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	return ReadSeries(file)
}

// ReadSeries parses a year,value CSV stream.
func ReadSeries(r io.Reader) (domain.Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.Series{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	expectedHeaders := []string{"year", "value"}
	if len(header) != len(expectedHeaders) {
		return domain.Series{}, fmt.Errorf("invalid CSV header: expected %v, got %v", expectedHeaders, header)
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) != expectedHeaders[i] {
			return domain.Series{}, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, expectedHeaders[i], h)
		}
	}

	var series domain.Series
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Series{}, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) != 2 {
			return domain.Series{}, fmt.Errorf("invalid CSV record: expected 2 columns, got %d", len(record))
		}

		year, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return domain.Series{}, fmt.Errorf("invalid year %q: %w", record[0], err)
		}
		if n := len(series.Years); n > 0 && year <= series.Years[n-1] {
			return domain.Series{}, fmt.Errorf("year %d is not after %d", year, series.Years[n-1])
		}

		value, err := parseValue(record[1])
		if err != nil {
			return domain.Series{}, fmt.Errorf("invalid value for year %d: %w", year, err)
		}
		series.Years = append(series.Years, year)
		series.Values = append(series.Values, value)
	}

	if len(series.Years) == 0 {
		return domain.Series{}, fmt.Errorf("no rows found in CSV")
	}
	return series, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "nodata":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ListSeries returns available series names.
func (s *SeriesStore) ListSeries() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	names := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".csv") {
			names = append(names, strings.TrimSuffix(name, ".csv"))
		}
	}
	sort.Strings(names)
	return names, nil
}
