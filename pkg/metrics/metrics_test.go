package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingBeforeInitIsNoop(t *testing.T) {
	if GetRegistry() != nil {
		t.Skip("registry already initialized by another test")
	}
	assert.NotPanics(t, func() {
		RecordImport("success", 1, 0)
		RecordFieldFallback("Date")
		SetRecordsStored(3)
		ObserveOperation("overview")()
		RecordRateLimited("/api/table")
		SetWebSocketClients(1)
		RecordAMQPPublish("dataset", "success")
		SetAMQPConnectionStatus(true)
	})
}

func TestInitAndRecord(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	Init(logger)
	require.NotNil(t, GetRegistry())

	RecordImport("failure", 0, 2)
	SetRecordsStored(42)
	RecordFieldFallback("End Date")

	mux := http.NewServeMux()
	RegisterHandler(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "dashboard_records_stored 42")
	assert.Contains(t, body, `dashboard_imports_total{status="failure"} 1`)
	assert.Contains(t, body, `dashboard_field_fallbacks_total{field="End Date"} 1`)
}
