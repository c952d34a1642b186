package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dmaslov/classhub/internal/app"
	"github.com/dmaslov/classhub/internal/config"
	"github.com/dmaslov/classhub/internal/core"
	"github.com/dmaslov/classhub/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Identity is what the join endpoint stored in the cookie session before
// the upgrade. Empty fields fall back to guest defaults.
type Identity struct {
	Name    string
	Contact string
	Role    string
}

type WSController struct {
	Router *app.Router
	Cfg    *config.Config

	limiter *msgRateLimiter
}

func NewWSController(router *app.Router, cfg *config.Config) *WSController {
	return &WSController{
		Router:  router,
		Cfg:     cfg,
		limiter: newMsgRateLimiter(10, 10*time.Second),
	}
}

type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSession upgrades the connection and registers the participant with
// the broadcast router. Each socket gets a fresh connection id; the browser
// identity comes from the cookie session.
func (ctl *WSController) HandleSession(ctx context.Context, c *gin.Context, cid domain.ConnectionID, ident Identity) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	readWait := ctl.Cfg.PingPeriod + 10*time.Second
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}

	name := ident.Name
	if name == "" {
		name = "guest"
	}
	role, err := domain.ParseRole(ident.Role)
	if err != nil {
		role = domain.RoleAttendee
	}

	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("name", name).Msg("new WS connection")

	if err := ctl.Router.Connect(cid, name, ident.Contact, role, conn); err != nil {
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cid, conn, cancel)
	go ctl.readPump(ctx, cid, conn, cancel)
}
