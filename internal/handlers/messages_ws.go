// internal/handlers/messages_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/middleware"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

// messagePollInterval is how often a watch re-runs its message query.
const messagePollInterval = time.Second

// watchRequest is the first frame a watch client sends after the upgrade.
// It mirrors the /messages form parameters.
type watchRequest struct {
	GameID     string `json:"gid"`
	InstanceID string `json:"iid"`
	PlayerID   string `json:"pid"`
	MsgType    string `json:"type"`
	Since      string `json:"mtime"`
}

// MessagesWSHandler upgrades the connection and pushes new messages of an
// instance to the client as they arrive. The client sends one watchRequest
// frame and then only reads: each push is a /messages envelope holding the
// messages that appeared since the last one. The watch ends when the client
// closes the socket or a query fails.
func MessagesWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept failed")
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal error")
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx := r.Context()
		_, data, err := c.Read(ctx)
		if err != nil {
			middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
			return
		}
		var req watchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.Close(websocket.StatusInvalidFramePayloadData, "malformed watch request")
			return
		}
		var cursor time.Time
		if req.Since != "" {
			if t, err := time.Parse(time.RFC3339Nano, req.Since); err == nil {
				cursor = t
			}
		}

		// The client never sends another frame; the read loop exists to
		// notice the socket closing.
		readCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := c.Read(readCtx); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(messagePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
				c.Close(websocket.StatusNormalClosure, "")
				return
			case <-ticker.C:
			}

			res, err := gs.Server.GetMessages(readCtx, req.GameID, req.InstanceID,
				req.MsgType, req.PlayerID, store.DefaultFetchLimit, cursor)
			if err != nil {
				writeFrame(readCtx, c, server.ErrorResponse(r.URL.Path, err))
				middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
				c.Close(websocket.StatusNormalClosure, "watch query failed")
				return
			}
			payload := res.Payload.(map[string]interface{})
			if payload["count"].(int) == 0 {
				continue
			}
			if err := writeFrame(readCtx, c, server.NewResponse(r.URL.Path, res)); err != nil {
				middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
				return
			}
			cursor = advanceCursor(cursor, payload["messages"].([]map[string]interface{}))
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, resp server.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

// advanceCursor moves the watch cursor past the newest delivered message.
func advanceCursor(cursor time.Time, msgs []map[string]interface{}) time.Time {
	for _, m := range msgs {
		raw, ok := m["mtime"].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		if t.After(cursor) {
			cursor = t
		}
	}
	return cursor
}
