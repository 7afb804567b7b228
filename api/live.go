package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// writeWait is the time allowed to write a single event to a live connection.
const writeWait = 10 * time.Second

// wsConn adapts a websocket connection to the registry's connection interface. The registry's writer goroutine
// is the only writer, and the handler's read loop is the only reader.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(v interface{}) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// live upgrades the request to a websocket and registers it as one of the caller's live connections. Clients
// don't send anything meaningful; the read loop only notices when the client goes away.
func (a *API) live(c *gin.Context) {
	userID := caller(c)
	log := a.log.WithField("user", userID)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("unable to upgrade the live connection")
		return
	}

	sub, err := a.dispatcher.Connect(c.Request.Context(), userID, &wsConn{conn: conn})
	if err != nil {
		log.WithError(err).Error("unable to register the live connection")
		conn.Close()
		return
	}
	defer sub.Leave()
	log.Debug("live connection opened")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.WithFields(logrus.Fields{"reason": err.Error()}).Debug("live connection closed")
			return
		}
	}
}
