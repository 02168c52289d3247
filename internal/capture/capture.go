package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xrcap/xrcap/internal/api"
	"github.com/xrcap/xrcap/internal/api/ws"
	"github.com/xrcap/xrcap/internal/app"
	"github.com/xrcap/xrcap/pkg/viture"
)

type Config struct {
	Source    string `yaml:"source"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Interface uint8  `yaml:"interface"`

	viture.Endpoints `yaml:",inline"`

	Duration       time.Duration `yaml:"duration"`
	ControlTimeout time.Duration `yaml:"control_timeout"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	StreamSize     int           `yaml:"stream_size"`

	Output    string `yaml:"output"`
	History   string `yaml:"history"`
	Autostart bool   `yaml:"autostart"`

	// pcap sources only
	Realtime bool `yaml:"realtime"`
}

func DefaultConfig() Config {
	return Config{
		Source:         "usb",
		VendorID:       viture.VendorID,
		ProductID:      viture.ProductID,
		Interface:      viture.Interface,
		Endpoints:      viture.DefaultEndpoints(),
		Duration:       10 * time.Second,
		ControlTimeout: viture.ControlTimeout,
		KeepAlive:      viture.KeepAlive,
		StreamTimeout:  viture.StreamTimeout,
		StreamSize:     viture.StreamReadSize,
	}
}

func Init() {
	var cfg struct {
		Mod Config `yaml:"capture"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)

	log = app.GetLogger("capture")

	c, err := New(cfg.Mod, log)
	if err != nil {
		log.Error().Err(err).Caller().Send()
		return
	}

	capture = c

	api.HandleFunc("api/capture", c.apiCapture)
	api.HandleFunc("api/capture/device", c.apiDevice)
	api.HandleFunc("api/capture/history", c.apiHistory)
	api.HandleFunc("api/command", c.apiCommand)
	api.HandleFunc("api/command/scan", c.apiScan)
	api.Handle("api/metrics", c.metrics.Handler())

	ws.HandleFunc("capture", c.wsCapture)

	if cfg.Mod.Autostart {
		go func() {
			if _, err := c.Start(0); err != nil {
				log.Error().Err(err).Msg("[capture] autostart")
			}
		}()
	}
}

var log = zerolog.Nop()

var capture *Capture

// Close stops the running session and releases the device on shutdown.
func Close() {
	if capture == nil {
		return
	}
	if err := capture.Close(); err != nil {
		log.Warn().Err(err).Msg("[capture] close")
	}
}

var ErrNotRunning = errors.New("capture: no active session")

// Capture owns the device handle and runs at most one session on it.
type Capture struct {
	cfg     Config
	log     zerolog.Logger
	open    func(cfg Config) (*Source, error)
	history *History
	metrics *Metrics

	mu      sync.Mutex
	src     *Source
	client  *viture.Client
	session *viture.Session
	cancel  context.CancelFunc
	done    chan struct{}
	last    *viture.Report
}

func New(cfg Config, log zerolog.Logger) (*Capture, error) {
	c := &Capture{
		cfg:  cfg,
		log:  log,
		open: OpenSource,
	}

	if cfg.History != "" {
		h, err := OpenHistory(cfg.History)
		if err != nil {
			return nil, err
		}
		c.history = h
	}

	c.metrics = NewMetrics(func() float64 {
		if c.Active() {
			return 1
		}
		return 0
	})

	return c, nil
}

// clientLocked opens the source on first use.
func (c *Capture) clientLocked() (*viture.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	src, err := c.open(c.cfg)
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("source", src.URL).Msg("[capture] open")

	c.src = src
	c.client = viture.NewClient(src.tr, c.cfg.Endpoints, c.log)
	if c.cfg.ControlTimeout > 0 {
		c.client.Timeout = c.cfg.ControlTimeout
	}
	return c.client, nil
}

// dropLocked closes the source after a transport error so that the next
// use reopens it.
func (c *Capture) dropLocked(err error) {
	var te *viture.TransportError
	if !errors.As(err, &te) || c.src == nil {
		return
	}

	c.log.Warn().Err(err).Str("source", c.src.URL).Msg("[capture] close broken source")

	_ = c.src.Close()
	c.src = nil
	c.client = nil
}

// Start runs a session in the background. A zero duration uses the
// configured one.
func (c *Capture) Start(duration time.Duration) (*viture.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, viture.ErrBusy
	}

	if duration <= 0 {
		duration = c.cfg.Duration
	}

	client, err := c.clientLocked()
	if err != nil {
		return nil, err
	}

	cfg := viture.SessionConfig{
		Duration:      duration,
		KeepAlive:     c.cfg.KeepAlive,
		StreamTimeout: c.cfg.StreamTimeout,
		StreamSize:    c.cfg.StreamSize,
		Log:           c.log,
	}

	var sink *FileSink
	if c.cfg.Output != "" {
		if sink, err = OpenSink(c.cfg.Output, c.cfg.Stream); err != nil {
			return nil, err
		}
		cfg.Sink = sink
	}

	s := client.NewSession(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.session, c.cancel, c.done = s, cancel, done

	c.log.Info().Str("session", s.ID).Dur("duration", duration).Msg("[capture] start")

	go c.run(ctx, s, sink, done)

	return s, nil
}

func (c *Capture) run(ctx context.Context, s *viture.Session, sink *FileSink, done chan struct{}) {
	defer close(done)

	report, err := s.Run(ctx)

	if sink != nil {
		if err := sink.Close(); err != nil {
			c.log.Warn().Err(err).Msg("[capture] close output")
		}
	}

	c.mu.Lock()
	c.cancel()
	c.session, c.cancel = nil, nil
	if report != nil {
		c.last = report
	}
	url := ""
	if c.src != nil {
		url = c.src.URL
	}
	if err != nil {
		c.dropLocked(err)
	}
	c.mu.Unlock()

	if report == nil {
		c.log.Error().Err(err).Msg("[capture] run")
		return
	}

	c.metrics.Observe(report)

	if c.history != nil {
		if err := c.history.Record(url, report); err != nil {
			c.log.Warn().Err(err).Msg("[capture] history")
		}
	}
}

// Stop cancels the running session and waits for its report.
func (c *Capture) Stop() (*viture.Report, error) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil, ErrNotRunning
	}

	cancel()
	<-done

	return c.Last(), nil
}

// Run starts a session and waits for it, stopping it early when ctx ends.
func (c *Capture) Run(ctx context.Context, duration time.Duration) (*viture.Report, error) {
	if _, err := c.Start(duration); err != nil {
		return nil, err
	}

	_, done := c.Current()

	select {
	case <-done:
		return c.Last(), nil
	case <-ctx.Done():
		return c.Stop()
	}
}

// Current returns the running session and a channel closed when it ends.
func (c *Capture) Current() (*viture.Session, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.done
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Capture) Last() *viture.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Status returns a live snapshot of the running session or the last report.
func (c *Capture) Status() *viture.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session.Snapshot()
	}
	return c.last
}

// Command runs one exchange. It is refused while a session runs.
func (c *Capture) Command(cmd []byte) (*viture.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, viture.ErrBusy
	}

	client, err := c.clientLocked()
	if err != nil {
		return nil, err
	}

	res, err := client.Send(cmd)
	if err != nil {
		c.dropLocked(err)
	}
	return res, err
}

func (c *Capture) Scan() ([]viture.ProbeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil, viture.ErrBusy
	}

	client, err := c.clientLocked()
	if err != nil {
		return nil, err
	}

	results, err := client.Scan(viture.Probes)
	if err != nil {
		c.dropLocked(err)
	}
	return results, err
}

// Device opens the source if needed and describes it.
func (c *Capture) Device() (*Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.clientLocked(); err != nil {
		return nil, err
	}
	return c.src, nil
}

// Close stops any session and releases the source.
func (c *Capture) Close() error {
	_, _ = c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.src != nil {
		err = c.src.Close()
		c.src, c.client = nil, nil
	}
	if c.history != nil {
		if herr := c.history.Close(); err == nil {
			err = herr
		}
		c.history = nil
	}
	return err
}
