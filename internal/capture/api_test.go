package capture

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xrcap/xrcap/pkg/viture"
)

func TestAPICapture(t *testing.T) {
	c, _ := newTestCapture(t, testConfig(), &fakeDevice{})

	w := httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("GET", "/api/capture", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "null\n", w.Body.String())

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("POST", "/api/capture?duration=soon", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("POST", "/api/capture?duration=5s", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var report viture.Report
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, 5*time.Second, report.Duration)
	require.NotEmpty(t, report.ID)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("POST", "/api/capture", nil))
	require.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("GET", "/api/capture", nil))
	require.Contains(t, w.Body.String(), report.ID)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("DELETE", "/api/capture", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"cause": "cancelled"`)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("DELETE", "/api/capture", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	c.apiCapture(w, httptest.NewRequest("PUT", "/api/capture", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPICommand(t *testing.T) {
	c, _ := newTestCapture(t, testConfig(), &fakeDevice{})

	form := url.Values{"code": {"0xEA"}, "param": {"0x0800"}, "flag": {"1"}}
	r := httptest.NewRequest("POST", "/api/command", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	c.apiCommand(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var res commandResult
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "fa55ea00080100000000000000", res.Command)
	require.True(t, res.Response.OK())
	require.True(t, strings.HasPrefix(res.Dump, "0000: fa 55 ea 00 00 00"))

	w = httptest.NewRecorder()
	c.apiCommand(w, httptest.NewRequest("POST", "/api/command?code=0x100", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	c.apiCommand(w, httptest.NewRequest("GET", "/api/command", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIScan(t *testing.T) {
	c, _ := newTestCapture(t, testConfig(), &fakeDevice{})

	w := httptest.NewRecorder()
	c.apiScan(w, httptest.NewRequest("POST", "/api/command/scan", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var results []viture.ProbeResult
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, len(viture.Probes))
	require.Equal(t, "trigger", results[0].Probe.Name)
}

func TestAPIDevice(t *testing.T) {
	c, _ := newTestCapture(t, testConfig(), &fakeDevice{})

	w := httptest.NewRecorder()
	c.apiDevice(w, httptest.NewRequest("GET", "/api/capture/device", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"url": "test:"`)

	c.open = func(Config) (*Source, error) {
		return nil, errors.New("no device")
	}
	c.mu.Lock()
	c.src, c.client = nil, nil
	c.mu.Unlock()

	w = httptest.NewRecorder()
	c.apiDevice(w, httptest.NewRequest("GET", "/api/capture/device", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIHistory(t *testing.T) {
	c, _ := newTestCapture(t, testConfig(), &fakeDevice{})

	w := httptest.NewRecorder()
	c.apiHistory(w, httptest.NewRequest("GET", "/api/capture/history", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	cfg := testConfig()
	cfg.History = t.TempDir() + "/history.db"
	c, _ = newTestCapture(t, cfg, &fakeDevice{})

	require.Nil(t, c.history.Record("test:", &viture.Report{ID: "a", State: "closed", Start: time.Now()}))

	w = httptest.NewRecorder()
	c.apiHistory(w, httptest.NewRequest("GET", "/api/capture/history?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var entries []*HistoryEntry
	require.Nil(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	w = httptest.NewRecorder()
	c.apiHistory(w, httptest.NewRequest("GET", "/api/capture/history?id=a", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c.apiHistory(w, httptest.NewRequest("GET", "/api/capture/history?id=b", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseCommand(t *testing.T) {
	b, err := parseCommand(url.Values{"hex": {"fa 55 ea:00"}})
	require.Nil(t, err)
	require.Equal(t, []byte{0xFA, 0x55, 0xEA, 0x00}, b)

	b, err = parseCommand(url.Values{"code": {"0x12"}, "param": {"0x3456"}, "form": {"short"}})
	require.Nil(t, err)
	require.Equal(t, []byte{0xFA, 0x55, 0x12, 0x56, 0x34}, b)

	for _, form := range []url.Values{
		{},
		{"hex": {"zz"}},
		{"code": {"1"}, "form": {"medium"}},
		{"code": {"1"}, "param": {"70000"}},
	} {
		_, err = parseCommand(form)
		require.Error(t, err)
	}
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, http.StatusConflict, errorCode(viture.ErrBusy))
	require.Equal(t, http.StatusNotFound, errorCode(ErrNotRunning))
	require.Equal(t, http.StatusGatewayTimeout, errorCode(viture.ErrTimeout))
	require.Equal(t, http.StatusBadGateway, errorCode(&viture.TransportError{Op: "read", Err: syscall.ENODEV}))
	require.Equal(t, http.StatusServiceUnavailable, errorCode(errors.New("no device")))
}
