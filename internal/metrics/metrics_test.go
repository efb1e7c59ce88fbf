package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/domain"
)

func TestRecordResult(t *testing.T) {
	before := testutil.ToFloat64(TestResults.WithLabelValues("passed"))
	RecordResult(domain.StatePassed)
	assert.Equal(t, before+1, testutil.ToFloat64(TestResults.WithLabelValues("passed")))
}

func TestHandler(t *testing.T) {
	WorkerSpawns.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "avatx_worker_spawns_total")
}
