package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/ecotrend/internal/usecase"
)

// Handler handles HTTP requests for per-cell inspection.
type Handler struct {
	inspector *usecase.PixelInspector
}

// NewHandler creates a new HTTP handler.
func NewHandler(inspector *usecase.PixelInspector) *Handler {
	return &Handler{
		inspector: inspector,
	}
}

// GetGrid handles GET /v1/grid.
func (h *Handler) GetGrid(c *gin.Context) {
	c.JSON(http.StatusOK, h.inspector.Grid())
}

// GetPixelTrend handles GET /v1/pixels/trend.
func (h *Handler) GetPixelTrend(c *gin.Context) {
	row, col, ok := h.parseCell(c)
	if !ok {
		return
	}

	response, err := h.inspector.Trend(c.Query("stack"), row, col)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetPixelAttribution handles GET /v1/pixels/attribution.
func (h *Handler) GetPixelAttribution(c *gin.Context) {
	row, col, ok := h.parseCell(c)
	if !ok {
		return
	}

	response, err := h.inspector.Attribution(row, col)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// parseCell reads the cell from the row and col query parameters, or from
// the x and y map coordinates. It writes an error response and returns
// false when neither pair is usable.
func (h *Handler) parseCell(c *gin.Context) (row, col int, ok bool) {
	rowStr, colStr := c.Query("row"), c.Query("col")
	xStr, yStr := c.Query("x"), c.Query("y")

	if (rowStr == "" || colStr == "") && xStr != "" && yStr != "" {
		x, err := strconv.ParseFloat(xStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid x: %v", err)})
			return 0, 0, false
		}
		y, err := strconv.ParseFloat(yStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid y: %v", err)})
			return 0, 0, false
		}
		row, col, err = h.inspector.Locate(x, y)
		if err != nil {
			writeError(c, err)
			return 0, 0, false
		}
		return row, col, true
	}

	if rowStr == "" || colStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "row and col (or x and y) parameters are required"})
		return 0, 0, false
	}

	row, err := strconv.Atoi(rowStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid row: %v", err)})
		return 0, 0, false
	}
	col, err = strconv.Atoi(colStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid col: %v", err)})
		return 0, 0, false
	}
	return row, col, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrOutOfGrid):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrUnknownStack), errors.Is(err, usecase.ErrNoDrivers):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
