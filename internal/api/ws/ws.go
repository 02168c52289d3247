package ws

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/xrcap/xrcap/internal/api"
	"github.com/xrcap/xrcap/internal/app"
)

func Init() {
	var cfg struct {
		Mod struct {
			Origin string `yaml:"origin"`
		} `yaml:"api"`
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("api")

	initWS(cfg.Mod.Origin)

	api.HandleFunc("api/ws", apiWS)
}

var log = zerolog.Nop()

// Message - struct for data exchange in Web API
type Message struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Raw   []byte `json:"-"`
}

func (m *Message) Unmarshal(v any) error {
	if len(m.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(m.Raw, v)
}

type WSHandler func(tr *Transport, msg *Message) error

func HandleFunc(msgType string, handler WSHandler) {
	handlersMu.Lock()
	wsHandlers[msgType] = handler
	handlersMu.Unlock()
}

func handler(msgType string) WSHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	return wsHandlers[msgType]
}

var wsHandlers = make(map[string]WSHandler)
var handlersMu sync.RWMutex

func initWS(origin string) {
	wsUp = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
	}

	switch origin {
	case "":
		// same origin + ignore port
		wsUp.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header["Origin"]
			if len(origin) == 0 {
				return true
			}
			o, err := url.Parse(origin[0])
			if err != nil {
				return false
			}
			if o.Host == r.Host {
				return true
			}
			log.Trace().Msgf("[api] ws origin=%s, host=%s", o.Host, r.Host)
			if i := strings.IndexByte(o.Host, ':'); i > 0 {
				return o.Host[:i] == r.Host
			}
			return false
		}
	case "*":
		wsUp.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

func apiWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUp.Upgrade(w, r, nil)
	if err != nil {
		origin := r.Header.Get("Origin")
		log.Error().Err(err).Caller().Msgf("host=%s origin=%s", r.Host, origin)
		return
	}

	tr := &Transport{Request: r}
	tr.onWrite = func(msg any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(time.Second * 5))
		return ws.WriteJSON(msg)
	}

	for {
		var raw struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		if err = ws.ReadJSON(&raw); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
				log.Trace().Err(err).Caller().Send()
			}
			_ = ws.Close()
			break
		}

		msg := &Message{Type: raw.Type, Raw: raw.Value}

		log.Trace().Str("type", msg.Type).Msg("[api] ws msg")

		if h := handler(msg.Type); h != nil {
			go func() {
				if err := h(tr, msg); err != nil {
					tr.Write(&Message{Type: "error", Value: msg.Type + ": " + err.Error()})
				}
			}()
		}
	}

	tr.Close()
}

var wsUp *websocket.Upgrader

// Transport is one websocket client. Writes are serialized.
type Transport struct {
	Request *http.Request

	closed bool
	mx     sync.Mutex
	wrmx   sync.Mutex

	onWrite func(msg any) error
	onClose []func()
}

func (t *Transport) Write(msg any) error {
	t.wrmx.Lock()
	defer t.wrmx.Unlock()
	return t.onWrite(msg)
}

func (t *Transport) Close() {
	t.mx.Lock()
	for _, f := range t.onClose {
		f()
	}
	t.onClose = nil
	t.closed = true
	t.mx.Unlock()
}

// OnClose runs f when the client goes away, at once if it already has.
func (t *Transport) OnClose(f func()) {
	t.mx.Lock()
	if t.closed {
		f()
	} else {
		t.onClose = append(t.onClose, f)
	}
	t.mx.Unlock()
}
