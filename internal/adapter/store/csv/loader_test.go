package csv

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeries(t *testing.T) {
	input := `year,value
2000, 0.41
2001,NaN
2002,
2003,0.47
2004,nodata
`
	s, err := ReadSeries(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []int{2000, 2001, 2002, 2003, 2004}, s.Years)
	assert.Equal(t, 0.41, s.Values[0])
	assert.True(t, math.IsNaN(s.Values[1]))
	assert.True(t, math.IsNaN(s.Values[2]))
	assert.Equal(t, 0.47, s.Values[3])
	assert.True(t, math.IsNaN(s.Values[4]))
	assert.Equal(t, 2, s.ValidCount())
}

func TestReadSeries_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad header", "yr,val\n2000,1\n"},
		{"no rows", "year,value\n"},
		{"bad year", "year,value\ntwo,1\n"},
		{"bad value", "year,value\n2000,abc\n"},
		{"unordered", "year,value\n2001,1\n2000,2\n"},
		{"duplicate", "year,value\n2000,1\n2000,2\n"},
		{"extra column", "year,value\n2000,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeries(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestSeriesStore(t *testing.T) {
	dir := t.TempDir()
	content := "year,value\n2000,1\n2001,2\n2002,3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site_b.csv"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site_a.csv"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	store := NewSeriesStore(dir)
	names, err := store.ListSeries()
	require.NoError(t, err)
	assert.Equal(t, []string{"site_a", "site_b"}, names)

	s, err := store.LoadSeries("site_a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, s.Values)

	_, err = store.LoadSeries("missing")
	assert.Error(t, err)
}
