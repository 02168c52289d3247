package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xrcap/xrcap/internal/app"
)

func Init() {
	var cfg struct {
		Mod struct {
			Listen   string `yaml:"listen"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			BasePath string `yaml:"base_path"`
		} `yaml:"api"`
	}

	// default config
	cfg.Mod.Listen = ":1985"

	// load config from YAML
	app.LoadConfig(&cfg)

	log = app.GetLogger("api")

	if cfg.Mod.Listen == "" {
		return
	}

	basePath = cfg.Mod.BasePath

	HandleFunc("api", apiHandler)
	HandleFunc("api/config", configHandler)
	HandleFunc("api/log", logHandler)

	Handler = http.DefaultServeMux // 3rd

	if cfg.Mod.Username != "" {
		Handler = middlewareAuth(cfg.Mod.Username, cfg.Mod.Password, Handler) // 2nd
	}

	if log.Trace().Enabled() {
		Handler = middlewareLog(Handler) // 1st
	}

	go listen(cfg.Mod.Listen)
}

func listen(address string) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		log.Error().Err(err).Msg("[api] listen")
		return
	}

	log.Info().Str("addr", address).Msg("[api] listen")

	Port = ln.Addr().(*net.TCPAddr).Port

	server := http.Server{
		Handler:           Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err = server.Serve(ln); err != nil {
		log.Fatal().Err(err).Msg("[api] serve")
	}
}

var Port int

const (
	MimeJSON = "application/json"
	MimeText = "text/plain"
	MimeYAML = "application/yaml"
)

var Handler http.Handler

// HandleFunc handle pattern with relative path:
// - "api/capture" => "{basepath}/api/capture"
// - "/metrics"    => "/metrics"
func HandleFunc(pattern string, handler http.HandlerFunc) {
	if len(pattern) == 0 || pattern[0] != '/' {
		pattern = basePath + "/" + pattern
	}
	log.Trace().Str("path", pattern).Msg("[api] register path")
	http.HandleFunc(pattern, handler)
}

func Handle(pattern string, handler http.Handler) {
	HandleFunc(pattern, handler.ServeHTTP)
}

// ResponseJSON important always add Content-Type
// so go won't need to call http.DetectContentType
func ResponseJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", MimeJSON)
	_ = json.NewEncoder(w).Encode(v)
}

func ResponsePrettyJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", MimeJSON)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func Response(w http.ResponseWriter, body any, contentType string) {
	w.Header().Set("Content-Type", contentType)

	switch v := body.(type) {
	case []byte:
		_, _ = w.Write(v)
	case string:
		_, _ = w.Write([]byte(v))
	default:
		_, _ = fmt.Fprint(w, body)
	}
}

// Error logs err and answers with code.
func Error(w http.ResponseWriter, err error, code int) {
	log.Error().Err(err).Caller(1).Send()

	http.Error(w, err.Error(), code)
}

var basePath string
var log = zerolog.Nop()

func middlewareLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Trace().Msgf("[api] %s %s %s", r.Method, r.URL, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func middlewareAuth(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.RemoteAddr, "127.") && !strings.HasPrefix(r.RemoteAddr, "[::1]") {
			user, pass, ok := r.BasicAuth()
			if !ok || user != username || pass != password {
				w.Header().Set("Www-Authenticate", `Basic realm="xrcap"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

var mu sync.Mutex

func apiHandler(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	app.Info["host"] = r.Host
	defer mu.Unlock()

	ResponseJSON(w, app.Info)
}

func configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "", http.StatusMethodNotAllowed)
		return
	}

	b, err := app.Effective()
	if err != nil {
		Error(w, err, http.StatusInternalServerError)
		return
	}

	Response(w, b, MimeYAML)
}

func logHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		w.Header().Set("Content-Type", "application/jsonlines")
		_, _ = app.MemoryLog.WriteTo(w)
	case "DELETE":
		app.MemoryLog.Reset()
		Response(w, "OK", MimeText)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
