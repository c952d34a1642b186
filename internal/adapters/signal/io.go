package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dmaslov/classhub/internal/domain"
)

func (ctl *WSController) writePump(ctx context.Context, cid domain.ConnectionID, c *WsConn, cancel context.CancelFunc) {
	defer cancel()
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Info().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("writePump ping failed")
				ctl.Router.Disconnect(cid)
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				ctl.Router.Disconnect(cid)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				ctl.Router.Disconnect(cid)
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cid domain.ConnectionID, c *WsConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		cancel()
		ctl.Router.Disconnect(cid)
		ctl.limiter.Forget(cid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(cid, c, data)
		}
	}
}

// dispatch routes one inbound frame by its type discriminator. Unknown or
// malformed frames are dropped with a warning; the connection stays open.
func (ctl *WSController) dispatch(cid domain.ConnectionID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad json")
		return
	}

	switch env.Type {
	case "draw":
		ctl.Router.HandleDraw(cid, data)
	case "clear":
		ctl.Router.HandleClearBoard(cid)
	case "chat":
		// Chat is the only spammable surface with fan-out to everyone;
		// draw and audio are already gated on the presenter privilege.
		if !ctl.limiter.Allow(cid) {
			log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("chat rate limited")
			return
		}
		ctl.Router.HandleChat(cid, data)
	case "raise_hand":
		ctl.Router.HandleRaiseHand(cid)
	case "lower_hand":
		ctl.Router.HandleLowerHand(cid)
	case "grant_permission":
		ctl.Router.HandleGrantSpeaking(cid, data)
	case "start_lecture":
		ctl.Router.HandleStartLecture(cid)
	case "end_lecture":
		ctl.Router.HandleEndLecture(cid)
	case "audio":
		ctl.Router.HandleAudio(cid, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event type")
	}
}

func (ctl *WSController) handlePing(c *WsConn) {
	resp, err := json.Marshal(struct {
		Type string `json:"type"`
	}{"pong"})
	if err != nil {
		return
	}
	_ = c.TrySend(resp)
}
