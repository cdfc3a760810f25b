package ws

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"bombfield/server"
	"bombfield/server/internal/net/intake"
	"bombfield/server/internal/net/proto"
	"bombfield/server/internal/sim"
	"bombfield/server/internal/telemetry"
	"bombfield/server/logging"
	"bombfield/server/logging/network"
)

// Hub is the authority a websocket session feeds.
type Hub interface {
	Join(conn server.Conn) sim.Owner
	Leave(owner sim.Owner, reason string)
	Connected(owner sim.Owner) bool
	Enqueue(cmd sim.Command) (bool, string)
	Tick() uint64
}

type HandlerConfig struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	// Codec is used when the client does not ask for one with ?codec=.
	Codec string
	// CommandRate and CommandBurst bound the commands a single connection
	// may stage per second. A non-positive rate disables the limit.
	CommandRate  float64
	CommandBurst int
	SendBuffer   int
}

// Disconnect reasons reported to the hub.
const (
	ReasonClosed    = "closed"
	ReasonReadError = "read_error"
)

type Handler struct {
	hub      Hub
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub Hub, cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.LoggerFunc(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewCounters()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.CommandRate > 0 && cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 1
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{hub: hub, cfg: cfg, upgrader: upgrader}
}

func (h *Handler) limiter() *rate.Limiter {
	if h.cfg.CommandRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(h.cfg.CommandRate), h.cfg.CommandBurst)
}

// Handle upgrades the request, joins the connection to the hub and stages
// its commands until the socket closes.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := r.URL.Query().Get("codec")
	if name == "" {
		name = h.cfg.Codec
	}
	codec, err := proto.CodecByName(name)
	if err != nil {
		nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Printf("upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	session := newSession(conn, codec, h.cfg.SendBuffer)
	session.owner = h.hub.Join(session)
	h.cfg.Metrics.Add("ws_sessions_total", 1)
	go session.writePump()

	reason := h.readLoop(session)
	h.hub.Leave(session.owner, reason)
	session.Close()
}

func (h *Handler) readLoop(session *Session) string {
	limiter := h.limiter()
	ctx := intake.CommandContext{
		Engine:    h.hub,
		Connected: h.hub.Connected,
		Tick:      h.hub.Tick,
	}
	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, nethttp.ErrServerClosed) {
				return ReasonClosed
			}
			return ReasonReadError
		}

		msg, err := session.codec.Decode(payload)
		if err != nil {
			h.cfg.Logger.Printf("discarding malformed message from %s: %v", session.owner, err)
			h.cfg.Metrics.Add("ws_malformed_total", 1)
			continue
		}
		if msg.Type != proto.TypeCommand {
			h.cfg.Logger.Printf("ignoring %q from %s", msg.Type, session.owner)
			continue
		}
		frame := *msg.Command
		if !limiter.Allow() {
			h.reject(session.owner, frame, server.CommandRejectRateLimited)
			continue
		}
		if _, ok, reason := intake.StageClientCommand(ctx, session.owner, frame); !ok {
			h.reject(session.owner, frame, reason)
			continue
		}
		h.cfg.Metrics.Add("ws_commands_staged_total", 1)
	}
}

// reject records a command that never reached the tick. The sender is not
// told.
func (h *Handler) reject(owner sim.Owner, frame proto.CommandFrame, reason string) {
	h.cfg.Metrics.Add("ws_command_"+reason+"_total", 1)
	network.CommandRejected(
		context.Background(),
		h.cfg.Publisher,
		h.hub.Tick(),
		logging.EntityRef{ID: string(owner), Kind: logging.EntityKindConnection},
		network.CommandRejectedPayload{Command: frame.Kind, Target: frame.Target, Reason: reason},
		nil,
	)
}
