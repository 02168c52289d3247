package capture

import (
	"errors"
	"time"

	"github.com/xrcap/xrcap/internal/api/ws"
	"github.com/xrcap/xrcap/pkg/viture"
)

var snapshotInterval = 500 * time.Millisecond

// wsCapture streams session progress to a websocket client.
//
//	{"type":"capture","value":{"start":true,"duration":"5s"}}
//
// Without start it follows the session that is already running.
func (c *Capture) wsCapture(tr *ws.Transport, msg *ws.Message) error {
	var req struct {
		Start    bool   `json:"start"`
		Duration string `json:"duration"`
	}
	if err := msg.Unmarshal(&req); err != nil {
		return err
	}

	if req.Start {
		var duration time.Duration
		if req.Duration != "" {
			var err error
			if duration, err = time.ParseDuration(req.Duration); err != nil {
				return err
			}
		}
		if _, err := c.Start(duration); err != nil {
			return err
		}
	}

	s, done := c.Current()
	if s == nil {
		return errors.New("no active session")
	}

	closed := make(chan struct{})
	tr.OnClose(func() {
		close(closed)
	})

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return tr.Write(&ws.Message{Type: "capture/report", Value: c.report(s)})
		case <-closed:
			return nil
		case <-ticker.C:
			if err := tr.Write(&ws.Message{Type: "capture/snapshot", Value: s.Snapshot()}); err != nil {
				return err
			}
		}
	}
}

// report returns the final report of s, falling back to its snapshot when
// another session has finished since.
func (c *Capture) report(s *viture.Session) *viture.Report {
	if r := c.Last(); r != nil && r.ID == s.ID {
		return r
	}
	return s.Snapshot()
}
