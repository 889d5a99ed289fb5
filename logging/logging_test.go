package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Format: "console", OutputPath: "stderr"}))
	require.Equal(t, zapcore.WarnLevel, Level())

	SetLevel("debug")
	require.Equal(t, zapcore.DebugLevel, Level())

	SetLevel("bogus")
	require.Equal(t, zapcore.DebugLevel, Level())
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L()
	Replace(zap.New(core))
	t.Cleanup(func() { Replace(prev) })

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WithContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	require.Equal(t, id, inside[0].ContextMap()["request_id"])

	done := logs.FilterMessage("request completed").All()
	require.Len(t, done, 1)
	require.EqualValues(t, http.StatusTeapot, done[0].ContextMap()["status"])
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
