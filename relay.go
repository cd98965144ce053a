/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// duelbox relay
//
// Two browsers meet in a room identified by a five-character code and then
// stream their per-frame movement to each other through this server. Each
// client simulates its own world; the server never looks inside a movement.
//
// Routes:
// - {prefix}/ws            → one websocket per browser tab
// - {prefix}/room/:code/qr → PNG QR code linking to the join page for :code
//
// Wire format is one JSON object per frame, e.g.
//
//	→ {"event":"joinRoom","code":"ab12c"}
//	← {"event":"roomJoined","code":"ab12c"}
//	← {"event":"updateRoom","count":2}
//	← {"event":"startGame"}
//	→ {"event":"playerMovement","data":{"x":10,"y":20,"angle":0.5,"attack":true}}

package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Seednode/duelbox/rooms"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
	qrSize         = 320
)

// wsClient is a websocket connection seated through the registry.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan rooms.Event
	closed bool
}

func (c *wsClient) ID() string {
	return c.id
}

// Send drops ev if the write queue is full or the connection is gone.
func (c *wsClient) Send(ev rooms.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) readPump(s *rooms.Session, log zerolog.Logger) {
	defer func() {
		s.Close()
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("connection lost")
			}
			return
		}

		var msg rooms.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Debug().Err(err).Msg("dropping malformed message")
			continue
		}

		s.Handle(msg)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type relayServer struct {
	cfg      *Config
	log      zerolog.Logger
	reg      *rooms.Registry
	upgrader websocket.Upgrader

	connections atomic.Int64
}

func (rs *relayServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.log.Debug().Err(err).Str("remote", realIP(r)).Msg("upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan rooms.Event, sendBuffer),
	}

	log := rs.log.With().Str("participant", client.id).Logger()

	rs.connections.Add(1)
	defer rs.connections.Add(-1)

	log.Debug().Str("remote", realIP(r)).Msg("connected")

	go client.writePump()
	client.readPump(rooms.NewSession(rs.reg, client), log)

	log.Debug().Msg("disconnected")
}

// serveQR renders a QR code pointing a second player at the join page.
func (rs *relayServer) serveQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if !rs.reg.Exists(code) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	url := scheme + "://" + r.Host + rs.cfg.prefix + "/?room=" + code

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		rs.log.Error().Err(err).Str("code", code).Msg("qr generation failed")
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(rs.cfg, w)

	_, _ = w.Write(png)
}

// ipLookups keys the limiter on the peer address unless the operator has
// said a proxy in front of us sets the client headers.
func ipLookups(cfg *Config) []string {
	if cfg.trustProxy {
		return []string{"CF-Connecting-IP", "X-Real-IP", "RemoteAddr"}
	}

	return []string{"RemoteAddr"}
}

func newConnectionLimiter(cfg *Config) *limiter.Limiter {
	lmt := tollbooth.NewLimiter(cfg.connectionRate, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetIPLookups(ipLookups(cfg))
	lmt.SetMessage("Too many connection attempts. Please wait a moment.")
	lmt.SetMessageContentType("text/plain; charset=utf-8")

	return lmt
}

func registerRelay(cfg *Config, log zerolog.Logger, reg *rooms.Registry, mux *httprouter.Router) *relayServer {
	rs := &relayServer{
		cfg: cfg,
		log: log,
		reg: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	var ws http.Handler = http.HandlerFunc(rs.serveWS)
	if cfg.connectionRate > 0 {
		ws = tollbooth.LimitHandler(newConnectionLimiter(cfg), ws)
	}

	mux.Handler(http.MethodGet, cfg.prefix+"/ws", ws)

	mux.GET(cfg.prefix+"/room/:code/qr", rs.serveQR)

	log.Debug().
		Str("websocket", cfg.prefix+"/ws").
		Bool("rate_limited", cfg.connectionRate > 0).
		Strs("ip_lookups", ipLookups(cfg)).
		Msg("registered relay routes")

	return rs
}
