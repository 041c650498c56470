package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("200", 150*time.Millisecond)
	m.ObserveRequest("200", time.Second)
	m.ObserveRequest("400", 10*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requestsTotal.WithLabelValues("200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("400")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestTrackInFlight(t *testing.T) {
	m := New()

	done1 := m.TrackInFlight()
	done2 := m.TrackInFlight()
	assert.InDelta(t, 2, testutil.ToFloat64(m.inFlight), 0)

	done1()
	done2()
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)
}

func TestObserveRecognizer(t *testing.T) {
	m := New()

	m.ObserveRecognizer("fake", "success")
	m.ObserveRecognizer("fake", "error")
	m.ObserveRecognizer("fake", "success")

	assert.InDelta(t, 2, testutil.ToFloat64(m.recognizerTotal.WithLabelValues("fake", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recognizerTotal.WithLabelValues("fake", "error")), 0)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveUpload(4096)
	m.ObserveRequest("200", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "voicescribe_transcribe_requests_total")
	assert.Contains(t, string(body), "voicescribe_upload_bytes")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ObserveRequest("200", time.Millisecond)
	assert.InDelta(t, 0, testutil.ToFloat64(b.requestsTotal.WithLabelValues("200")), 0)
	assert.NotSame(t, a.Registry(), b.Registry())
}
