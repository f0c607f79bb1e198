package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByStatusAndRoute(t *testing.T) {
	const route = "/v1/admin/domains/{host}"
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Put(route, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Delete(route, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusOK)
	})

	puts := httpRequests.WithLabelValues(http.MethodPut, route, "200")
	conflicts := httpRequests.WithLabelValues(http.MethodDelete, route, "409")
	putBefore := testutil.ToFloat64(puts)
	conflictBefore := testutil.ToFloat64(conflicts)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPut, "/v1/admin/domains/a.example", nil),
		httptest.NewRequest(http.MethodPut, "/v1/admin/domains/b.example", nil),
		httptest.NewRequest(http.MethodDelete, "/v1/admin/domains/a.example", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.InDelta(t, putBefore+2, testutil.ToFloat64(puts), 0)
	require.InDelta(t, conflictBefore+1, testutil.ToFloat64(conflicts), 0)
	require.Positive(t, testutil.CollectAndCount(httpLatency))
}

func TestRoutePatternUnmatched(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/random/path", nil)
	require.Equal(t, unmatchedRoute, routePattern(req))
}
