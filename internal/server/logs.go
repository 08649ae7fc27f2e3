package server

import (
	"net/http"
	"strconv"
	"time"

	"numrelay-go/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The management key already guards this route.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogsFetch serves the replay buffer for clients polling over HTTP.
func (s *Server) handleLogsFetch(c *gin.Context) {
	cursor, _ := strconv.ParseUint(c.DefaultQuery("cursor", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, next := logging.Hub().FetchSince(cursor, limit)
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"cursor":   next,
	})
}

// handleLogsWS streams live log lines over a websocket.
func (s *Server) handleLogsWS(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("Log stream upgrade failed")
		return
	}

	hub := logging.Hub()
	if err := hub.AddClient(conn); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// Reader loop only detects disconnects; the hub owns all writes.
	go func() {
		defer hub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
