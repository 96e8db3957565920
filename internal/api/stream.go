package api

import (
	"net/http"
	"time"

	"github.com/ZJUSCT/CSArena/internal/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Viewer is the audience of an event stream.
type Viewer struct {
	Privileged bool
	TeamID     string
}

// ServeEvents upgrades the request and streams the events of one contest
// room as JSON text frames until either side goes away. When the broker
// evicts a slow subscriber the socket is closed so the client reconnects
// and re-reads the current state.
func ServeEvents(c *gin.Context, broker *pubsub.Broker, contestID string, viewer Viewer) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Errorf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := broker.Subscribe(contestID)
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if !ev.VisibleTo(viewer.Privileged, viewer.TeamID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				zap.S().Warnf("error writing to websocket: %v", err)
				return
			}
		}
		// The channel was closed: either we unsubscribed or we were evicted.
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync required"),
			time.Now().Add(writeWait))
		conn.Close()
	}()

	// Read loop to detect client close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseTryAgainLater) {
				zap.S().Infof("websocket unexpected close error: %v", err)
			}
			break
		}
	}
	unsubscribe()
	<-writerDone
	zap.S().Debugf("event stream of contest %s closed", contestID)
}
