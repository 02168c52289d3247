package app

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var MemoryLog = newRing(1000)

// GetLogger returns the app logger with the level from `log: {module: level}`.
func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: empty (only to memory), stderr, stdout
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = modules // defaults

	LoadConfig(&cfg)

	var writer io.Writer

	switch modules["output"] {
	case "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	}

	timeFormat := modules["time"]

	if writer != nil {
		if format := modules["format"]; format != "json" {
			console := &zerolog.ConsoleWriter{Out: writer}

			switch format {
			case "text":
				console.NoColor = true
			case "color":
				console.NoColor = false
			default:
				console.NoColor = !isatty.IsTerminal(writer.(*os.File).Fd())
			}

			if timeFormat != "" {
				console.TimeFormat = "15:04:05.000"
			} else {
				console.PartsOrder = []string{
					zerolog.LevelFieldName,
					zerolog.CallerFieldName,
					zerolog.MessageFieldName,
				}
			}

			writer = console
		}

		writer = zerolog.MultiLevelWriter(writer, MemoryLog)
	} else {
		writer = MemoryLog
	}

	lvl, _ := zerolog.ParseLevel(modules["level"])
	Logger = zerolog.New(writer).Level(lvl)

	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		Logger = Logger.With().Timestamp().Logger()
	}
}

var Logger = zerolog.Nop()

// modules log levels
var modules = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stderr",
	"time":   zerolog.TimeFormatUnixMs,
}

// logRing keeps the last JSON log lines for /api/log. zerolog calls
// Write once per event.
type logRing struct {
	mu    sync.Mutex
	lines [][]byte
	next  int
	full  bool
}

func newRing(size int) *logRing {
	return &logRing{lines: make([][]byte, size)}
}

func (b *logRing) Write(p []byte) (int, error) {
	line := append([]byte(nil), p...)

	b.mu.Lock()
	b.lines[b.next] = line
	if b.next++; b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()

	return len(p), nil
}

// ordered returns lines from the oldest one, must be called under mu
func (b *logRing) ordered() [][]byte {
	if !b.full {
		return b.lines[:b.next]
	}
	return append(b.lines[b.next:len(b.lines):len(b.lines)], b.lines[:b.next]...)
}

func (b *logRing) WriteTo(w io.Writer) (n int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, line := range b.ordered() {
		var nn int
		if nn, err = w.Write(line); err != nil {
			return
		}
		n += int64(nn)
	}
	return
}

func (b *logRing) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var buf []byte
	for _, line := range b.ordered() {
		buf = append(buf, line...)
	}
	return buf
}

func (b *logRing) Reset() {
	b.mu.Lock()
	clear(b.lines)
	b.next = 0
	b.full = false
	b.mu.Unlock()
}
