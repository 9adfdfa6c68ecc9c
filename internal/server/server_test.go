package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/sigmaguard/internal/database"
	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/sigmaguard/internal/modules/ledger/handlers"
	testingpkg "github.com/aristath/sigmaguard/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *prometheus.Registry, *fakeRunner) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameLedger)
	t.Cleanup(cleanup)

	reg := prometheus.NewRegistry()
	runner := newFakeRunner()
	repo := ledger.NewRepository(db.Conn(), zerolog.Nop())

	s := New(Config{
		Log:          zerolog.Nop(),
		Port:         0,
		DevMode:      true,
		DataDir:      t.TempDir(),
		Databases:    []*database.DB{db},
		Ledger:       ledgerhandlers.NewHandler(repo, ledger.NewAnalyzer(db.Conn()), zerolog.Nop()),
		Audit:        runner,
		Watchlist:    testWatchlist,
		BreakerState: func() string { return "closed" },
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
	})
	t.Cleanup(s.Audit().Close)
	return s, reg, runner
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := serve(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "sigmaguard", body["service"])
}

func TestServer_HealthUnavailableWhenDatabaseClosed(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.systemHandlers.databases[0].Close())

	rec := serve(s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestServer_RoutesRegistered(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/api/system/status", http.StatusOK},
		{http.MethodGet, "/api/ledger", http.StatusOK},
		{http.MethodGet, "/api/ledger/AAPL", http.StatusNotFound},
		{http.MethodGet, "/api/ledger/AAPL/latest", http.StatusNotFound},
		{http.MethodGet, "/api/performance", http.StatusOK},
		{http.MethodGet, "/api/audit/last", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
		{http.MethodGet, "/api/audit/run", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestServer_AuditRunThroughRouter(t *testing.T) {
	s, _, runner := newTestServer(t)

	rec := serve(s, http.MethodPost, "/api/audit/run?wait=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, runner.lastBatch(), len(testWatchlist))

	rec = serve(s, http.MethodGet, "/api/audit/last")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecordsHTTPMetrics(t *testing.T) {
	s, reg, _ := newTestServer(t)

	serve(s, http.MethodGet, "/api/health")
	serve(s, http.MethodGet, "/api/ledger/AAPL")
	serve(s, http.MethodGet, "/api/ledger/MSFT")

	count, err := testutil.GatherAndCount(reg, "sigmaguard_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "requests are grouped by route pattern")

	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `route="/api/ledger/{ticker}"`))
}
