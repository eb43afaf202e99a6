package http

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/raster"
	"go.ngs.io/ecotrend/internal/usecase"
)

func stack(name string, fill func(t, r, c int) float64) *raster.Stack {
	years := domain.YearRange(2000, 2011)
	s := &raster.Stack{Name: name, Years: years}
	for t := range years {
		g := raster.NewGrid(2, 3, raster.GeoTransform{0, 1, 0, 2, 0, -1}, "EPSG:4326", 0)
		for r := 0; r < 2; r++ {
			for c := 0; c < 3; c++ {
				g.Values[r][c] = fill(t, r, c)
			}
		}
		s.Grids = append(s.Grids, g)
	}
	return s
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pr := stack("PR", func(t, r, c int) float64 { return math.Sin(float64(t*7 + r + c)) })
	nl := stack("NL", func(t, r, c int) float64 { return math.Cos(float64(t*3 + r*c)) })
	eco := stack("EcoIndex", func(t, r, c int) float64 {
		if r == 1 && c == 2 {
			return math.NaN()
		}
		return 2 * math.Sin(float64(t*7+r+c))
	})

	log, _ := test.NewNullLogger()
	engine := usecase.NewGridEngine(log)
	engine.Attributor.Forest.Trees = 10
	engine.Classifier.Partition = domain.Partition{domain.GroupClimate, domain.GroupHuman}

	inspector, err := usecase.NewPixelInspector(engine, usecase.Inputs{
		Trend:    []*raster.Stack{eco},
		Response: eco,
		Drivers:  []*raster.Stack{pr, nl},
	})
	require.NoError(t, err)
	return SetupRouter(inspector, log)
}

func get(t *testing.T, router *gin.Engine, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealthCheck(t *testing.T) {
	w, body := get(t, newTestRouter(t), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetGrid(t *testing.T) {
	w, body := get(t, newTestRouter(t), "/v1/grid")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["height"])
	assert.Equal(t, float64(3), body["width"])
	assert.Equal(t, "EcoIndex", body["response"])
	assert.Equal(t, []interface{}{"PR", "NL"}, body["drivers"])
}

func TestGetPixelTrend(t *testing.T) {
	router := newTestRouter(t)

	w, body := get(t, router, "/v1/pixels/trend?row=0&col=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EcoIndex", body["stack"])
	assert.Equal(t, float64(12), body["n"])
	assert.NotNil(t, body["mann_kendall"])

	// Map coordinates resolve to the same cell.
	w, byXY := get(t, router, "/v1/pixels/trend?x=1.5&y=1.5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body["sen_slope"], byXY["sen_slope"])
	assert.Equal(t, float64(1), byXY["col"])

	// Undefined values encode as null.
	w, body = get(t, router, "/v1/pixels/trend?row=1&col=2&stack=EcoIndex")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["sen_slope"])
	assert.Nil(t, body["p_value"])
	assert.Nil(t, body["values"].([]interface{})[0])
	assert.NotEmpty(t, body["note"])
}

func TestGetPixelAttribution(t *testing.T) {
	router := newTestRouter(t)

	w, body := get(t, router, "/v1/pixels/attribution?row=0&col=0")
	require.Equal(t, http.StatusOK, w.Code)
	drivers := body["drivers"].([]interface{})
	require.Len(t, drivers, 2)
	assert.Equal(t, "PR", drivers[0].(map[string]interface{})["name"])
	assert.Contains(t, []interface{}{"climate-dominated", "human-dominated", "mixed"}, body["dominance"])

	w, body = get(t, router, "/v1/pixels/attribution?row=1&col=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "undefined", body["dominance"])
	assert.Equal(t, float64(0), body["dominance_code"])
	assert.Nil(t, body["climate_score"])
}

func TestHandlerErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		target string
		status int
	}{
		{"/v1/pixels/trend", http.StatusBadRequest},
		{"/v1/pixels/trend?row=0", http.StatusBadRequest},
		{"/v1/pixels/trend?row=a&col=0", http.StatusBadRequest},
		{"/v1/pixels/trend?row=0&col=x", http.StatusBadRequest},
		{"/v1/pixels/trend?row=5&col=0", http.StatusBadRequest},
		{"/v1/pixels/trend?row=0&col=0&stack=LST", http.StatusNotFound},
		{"/v1/pixels/attribution?row=-1&col=0", http.StatusBadRequest},
		{"/v1/pixels/trend?x=abc&y=1", http.StatusBadRequest},
		{"/v1/pixels/trend?x=10&y=1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w, body := get(t, router, tt.target)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}
