package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xrcap/xrcap/internal/app"
)

func TestLogHandler(t *testing.T) {
	_, _ = app.MemoryLog.Write([]byte(`{"level":"info","message":"[capture] closed"}` + "\n"))

	w := httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("GET", "/api/log", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/jsonlines", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "[capture] closed")

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("DELETE", "/api/log", nil))
	require.Equal(t, "OK", w.Body.String())
	require.Empty(t, app.MemoryLog.Bytes())

	w = httptest.NewRecorder()
	logHandler(w, httptest.NewRequest("PUT", "/api/log", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIHandler(t *testing.T) {
	w := httptest.NewRecorder()
	apiHandler(w, httptest.NewRequest("GET", "http://localhost:1985/api", nil))
	require.Equal(t, MimeJSON, w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), `"version":"`+app.Version+`"`)
	require.Contains(t, w.Body.String(), `"host":"localhost:1985"`)
}

func TestMiddlewareAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h := middlewareAuth("admin", "secret", ok)

	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "10.0.0.2:5000"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, "ok", w.Body.String())

	// loopback needs no auth
	r = httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestResponse(t *testing.T) {
	w := httptest.NewRecorder()
	Response(w, 42, MimeText)
	require.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	ResponsePrettyJSON(w, map[string]int{"a": 1})
	require.Equal(t, "{\n  \"a\": 1\n}\n", w.Body.String())
}
