package notifier

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/internal/json"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendQueueDepth = 64
)

// envelope is the wire shape of one event frame.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// WSObserver adapts one websocket connection into an Observer. Frames are
// queued on a bounded channel and written by a single pump goroutine; the
// queue overflowing or the observer closing drops the frame instead of
// blocking the broadcaster.
type WSObserver struct {
	id        string
	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ Observer = (*WSObserver)(nil)

// NewWSObserver wraps conn and starts its write pump. Close releases the
// pump and the connection.
func NewWSObserver(id string, conn *websocket.Conn) *WSObserver {
	o := &WSObserver{
		id:   id,
		conn: conn,
		out:  make(chan []byte, sendQueueDepth),
		done: make(chan struct{}),
	}
	go o.writePump()
	return o
}

func (o *WSObserver) ID() string {
	return o.id
}

// Send marshals the event into an envelope frame and queues it.
func (o *WSObserver) Send(event string, payload any) error {
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-o.done:
		return serr.WrapErrObserverClosed(o.id)
	default:
	}

	select {
	case o.out <- frame:
		return nil
	default:
		return serr.WrapErrObserverClosed(o.id, "send queue full")
	}
}

// Close stops the write pump and closes the connection. Safe to call more
// than once.
func (o *WSObserver) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

func (o *WSObserver) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = o.conn.Close()
	}()

	for {
		select {
		case frame := <-o.out:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("observer write failed",
					zap.String("observer", o.id),
					zap.Error(err),
				)
				o.Close()
				return
			}
		case <-ticker.C:
			_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.Close()
				return
			}
		case <-o.done:
			return
		}
	}
}
