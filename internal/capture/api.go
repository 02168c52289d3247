package capture

import (
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xrcap/xrcap/internal/api"
	"github.com/xrcap/xrcap/pkg/viture"
)

func (c *Capture) apiCapture(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		api.ResponsePrettyJSON(w, c.Status())

	case "POST":
		var duration time.Duration
		if s := r.URL.Query().Get("duration"); s != "" {
			var err error
			if duration, err = time.ParseDuration(s); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		s, err := c.Start(duration)
		if err != nil {
			api.Error(w, err, errorCode(err))
			return
		}

		api.ResponseJSON(w, s.Snapshot())

	case "DELETE":
		report, err := c.Stop()
		if err != nil {
			http.Error(w, err.Error(), errorCode(err))
			return
		}

		api.ResponsePrettyJSON(w, report)

	default:
		http.Error(w, "", http.StatusMethodNotAllowed)
	}
}

func (c *Capture) apiDevice(w http.ResponseWriter, r *http.Request) {
	src, err := c.Device()
	if err != nil {
		api.Error(w, err, errorCode(err))
		return
	}

	api.ResponsePrettyJSON(w, src)
}

func (c *Capture) apiHistory(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()

	if id := query.Get("id"); id != "" {
		entry, err := c.history.Get(id)
		if err != nil {
			api.Error(w, err, http.StatusInternalServerError)
			return
		}
		if entry == nil {
			http.Error(w, "", http.StatusNotFound)
			return
		}
		api.ResponsePrettyJSON(w, entry)
		return
	}

	limit, _ := strconv.Atoi(query.Get("limit"))

	entries, err := c.history.List(limit)
	if err != nil {
		api.Error(w, err, http.StatusInternalServerError)
		return
	}

	api.ResponsePrettyJSON(w, entries)
}

type commandResult struct {
	Command  string           `json:"command"`
	Response *viture.Response `json:"response,omitempty"`
	Dump     string           `json:"dump,omitempty"`
}

func (c *Capture) apiCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd, err := parseCommand(r.Form)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := c.Command(cmd)
	if err != nil {
		api.Error(w, err, errorCode(err))
		return
	}

	api.ResponsePrettyJSON(w, &commandResult{
		Command:  hex.EncodeToString(cmd),
		Response: res,
		Dump:     viture.Dump(res.Raw),
	})
}

func (c *Capture) apiScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	results, err := c.Scan()
	if err != nil && results == nil {
		api.Error(w, err, errorCode(err))
		return
	}

	api.ResponsePrettyJSON(w, results)
}

// parseCommand accepts raw bytes as hex=fa55ea... or the fields
// code, param, flag, target and form=long|short. Numbers take any Go
// literal base, so code=0xEA works.
func parseCommand(form url.Values) ([]byte, error) {
	if s := form.Get("hex"); s != "" {
		s = strings.NewReplacer(" ", "", ":", "").Replace(s)
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, errors.New("empty command")
		}
		return b, nil
	}

	if !form.Has("code") {
		return nil, errors.New("hex or code required")
	}

	code, err := parseUint(form, "code", 8)
	if err != nil {
		return nil, err
	}
	param, err := parseUint(form, "param", 16)
	if err != nil {
		return nil, err
	}
	flag, err := parseUint(form, "flag", 8)
	if err != nil {
		return nil, err
	}
	target, err := parseUint(form, "target", 8)
	if err != nil {
		return nil, err
	}

	f := viture.FormLong
	switch form.Get("form") {
	case "", "long":
	case "short":
		f = viture.FormShort
	default:
		return nil, errors.New("form must be long or short")
	}

	return viture.Encode(f, byte(code), uint16(param), byte(flag), byte(target)), nil
}

func parseUint(form url.Values, key string, bits int) (uint64, error) {
	s := form.Get(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.New(key + ": " + err.Error())
	}
	return v, nil
}

func errorCode(err error) int {
	var te *viture.TransportError
	switch {
	case errors.Is(err, viture.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrNotRunning):
		return http.StatusNotFound
	case viture.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.As(err, &te):
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}
