package http

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestHandlers(t *testing.T) {
	t.Run("health check returns ok", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready check follows the readiness", func(t *testing.T) {
		ready := false
		h := HandleReadyCheck(func() bool { return ready })

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		ready = true
		w = httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("version is written", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "v1.2.3", w.Body.String())
	})

	t.Run("json is written", func(t *testing.T) {
		h := HandleJSON(func() map[string]int { return map[string]int{"chunks": 8} })

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var v map[string]int
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
		require.Equal(t, 8, v["chunks"])
	})

	t.Run("json rejects other methods", func(t *testing.T) {
		h := HandleJSON(func() int { return 1 })

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/stats", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("responses are compressed", func(t *testing.T) {
		body := strings.Repeat("destruction ", 200)
		h := Compress(HandleJSON(func() string { return body }))

		r := httptest.NewRequest(http.MethodGet, "/stats", nil)
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

		gz, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		b, err := io.ReadAll(gz)
		require.NoError(t, err)

		var v string
		require.NoError(t, json.Unmarshal(b, &v))
		require.Equal(t, body, v)
	})
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/stats", MetricsPathFormatter(http.StatusOK, "/stats"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/missing"))
	require.Empty(t, MetricsPathFormatter(http.StatusMethodNotAllowed, "/stats"))
	require.Equal(t, "/debug/pprof", MetricsPathFormatter(http.StatusOK, "/debug/pprof/heap"))
}

func TestNewAdminHandler(t *testing.T) {
	ready := false
	h := NewAdminHandler(Admin{
		Version: "v1.2.3",
		Ready:   func() bool { return ready },
		Stats:   HandleJSON(func() []string { return []string{"wall"} }),
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("version is served", func(t *testing.T) {
		w := get("/version")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "v1.2.3", w.Body.String())
	})

	t.Run("readiness follows the ready func", func(t *testing.T) {
		require.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)
		ready = true
		require.Equal(t, http.StatusOK, get("/ready").Code)
	})

	t.Run("stats are served as json", func(t *testing.T) {
		w := get("/stats")
		require.Equal(t, http.StatusOK, w.Code)

		var v []string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
		require.Equal(t, []string{"wall"}, v)
	})

	t.Run("missing handlers are not routed", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, get("/debris").Code)
		require.Equal(t, http.StatusNotFound, get("/smoke-test").Code)
	})

	t.Run("metrics are served", func(t *testing.T) {
		require.Equal(t, http.StatusOK, get("/metrics").Code)
	})
}

func TestListenAndServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ListenAndServe(ctx, &http.Server{
			Addr:    addr,
			Handler: http.HandlerFunc(HandleHealthCheck),
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		res, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "servers did not stop")
	}
}
