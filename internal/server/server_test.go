package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/spendwatch/internal/config"
	"github.com/mbd888/spendwatch/internal/report"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		Port:         "0",
		Env:          "development",
		FlagFile:     filepath.Join(dir, "flagged.json"),
		InvalidFile:  filepath.Join(dir, "invalid.txt"),
		StdThreshold: 3,
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func seedBatch(t *testing.T, s *Server) {
	t.Helper()
	batch := strings.Join([]string{
		`{"D":"1", "T":"2"}`,
		`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "2", "amount": "10.00"}`,
		`{"event_type":"purchase", "timestamp":"2017-06-13 11:33:02", "id": "3", "amount": "20.00"}`,
		`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:03", "id1": "1", "id2": "2"}`,
		`{"event_type":"befriend", "timestamp":"2017-06-13 11:33:03", "id1": "1", "id2": "3"}`,
	}, "\n")
	require.NoError(t, s.LoadBatch(context.Background(), strings.NewReader(batch)))
}

func postEvent(s *Server, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(body))
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzBeforeRun(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngestBeforeBatchPhase(t *testing.T) {
	s, _ := newTestServer(t)

	w := postEvent(s, `{"event_type":"purchase", "timestamp":"2017-06-13 11:33:01", "id": "1", "amount": "5.00"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngestFlagsAnomalousPurchase(t *testing.T) {
	s, dir := newTestServer(t)
	seedBatch(t, s)

	// mean=15, sd=5, threshold 30
	w := postEvent(s, `{"event_type":"purchase", "timestamp":"2017-06-13 11:34:00", "id": "1", "amount": "100.00"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Flagged bool               `json:"flagged"`
		Flag    *report.FlagRecord `json:"flag"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Flagged)
	require.NotNil(t, resp.Flag)
	assert.Equal(t, "15.00", resp.Flag.Mean)
	assert.Equal(t, "5.00", resp.Flag.SD)

	// The flag also reached the file sink chain (flushed on Close)
	require.NoError(t, s.Close())
	data, err := os.ReadFile(filepath.Join(dir, "flagged.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mean":"15.00"`)
}

func TestIngestNormalPurchase(t *testing.T) {
	s, _ := newTestServer(t)
	seedBatch(t, s)

	w := postEvent(s, `{"event_type":"purchase", "timestamp":"2017-06-13 11:34:00", "id": "1", "amount": "12.00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"flagged":false`)
}

func TestIngestRelationshipEvent(t *testing.T) {
	s, _ := newTestServer(t)
	seedBatch(t, s)

	w := postEvent(s, `{"event_type":"befriend", "timestamp":"2017-06-13 11:34:00", "id1": "1", "id2": "9"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"flagged":false`)
}

func TestIngestInvalidRecord(t *testing.T) {
	s, dir := newTestServer(t)
	seedBatch(t, s)

	w := postEvent(s, `{"event_type":"purchase", "timestamp":"nope", "id": "1", "amount": "5.00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, s.Close())
	data, err := os.ReadFile(filepath.Join(dir, "invalid.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"nope"`)
}

func TestIngestEmptyBody(t *testing.T) {
	s, _ := newTestServer(t)
	seedBatch(t, s)

	w := postEvent(s, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentFlags(t *testing.T) {
	s, _ := newTestServer(t)
	seedBatch(t, s)

	postEvent(s, `{"event_type":"purchase", "timestamp":"2017-06-13 11:34:00", "id": "1", "amount": "100.00"}`)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/v1/flags?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Flags []*report.FlagRecord `json:"flags"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Flags, 1)
	assert.Equal(t, "100", resp.Flags[0].Amount)
}

func TestRecentFlagsBadLimit(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/v1/flags?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t)
	seedBatch(t, s)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Degree    int `json:"degree"`
		Window    int `json:"window"`
		Nodes     int `json:"nodes"`
		Edges     int `json:"edges"`
		Customers int `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Degree)
	assert.Equal(t, 2, stats.Window)
	assert.Equal(t, 3, stats.Nodes)
	assert.Equal(t, 2, stats.Edges)
	assert.Equal(t, 2, stats.Customers)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestFlagRingBounds(t *testing.T) {
	r := newFlagRing(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec := &report.FlagRecord{ID: string(rune('a' + i))}
		require.NoError(t, r.WriteFlag(ctx, rec))
	}

	recent := r.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].ID)
	assert.Equal(t, "c", recent[2].ID)
}
