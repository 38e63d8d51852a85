package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndNilSafety(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Transition("accepted")
	m.Transition("accepted")
	m.Cancelled("cascade", 3)
	m.Cancelled("cascade", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cancellations.WithLabelValues("cascade")))

	var none *Metrics
	assert.NotPanics(t, func() {
		none.Transition("played")
		none.Swap("match")
		none.NotificationFailed("email")
	})
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/matches/{matchID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/matches/{matchID}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}
