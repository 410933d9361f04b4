package gateway

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/internal/json"
	"github.com/lk2023060901/sessiongate-go/internal/notifier"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The event channel is consumed by the bundled console and local
	// tooling; origin enforcement is left to the deployment front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// command is one inbound frame on the event channel.
type command struct {
	Event string      `json:"event"`
	Data  commandData `json:"data"`
}

type commandData struct {
	Session     string `json:"session"`
	MultiDevice bool   `json:"multidevice"`
	Company     string `json:"company"`
}

const (
	cmdCreateSession = "create-session"
	cmdLogoutSession = "logout-session"
)

// handleWS upgrades the connection, attaches it to the hub, replays the
// session snapshot, and then serves lifecycle commands until the peer
// disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := fmt.Sprintf("%s#%d", r.RemoteAddr, s.obsSeq.Inc())
	obs := notifier.NewWSObserver(id, conn)
	s.hub.Register(obs)
	defer func() {
		s.hub.Unregister(id)
		obs.Close()
	}()

	lg := log.Ctx(r.Context()).With(zap.String("observer", id))

	if err := s.manager.SnapshotFor(r.Context(), obs); err != nil {
		lg.Warn("failed to send session snapshot", zap.Error(err))
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Debug("observer read failed", zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(frame, &cmd); err != nil {
			lg.Warn("dropping malformed command frame", zap.Error(err))
			continue
		}
		s.runCommand(r, lg, cmd)
	}
}

func (s *Server) runCommand(r *http.Request, lg *log.MLogger, cmd command) {
	switch cmd.Event {
	case cmdCreateSession:
		err := s.manager.Create(r.Context(), client.CreateOptions{
			Session:     cmd.Data.Session,
			MultiDevice: cmd.Data.MultiDevice,
			Company:     cmd.Data.Company,
		})
		if err != nil {
			lg.Warn("create session command failed",
				zap.String(log.FieldNameSession, cmd.Data.Session),
				zap.Error(err),
			)
		}
	case cmdLogoutSession:
		err := s.manager.Logout(r.Context(), cmd.Data.Session)
		if err != nil {
			lg.Warn("logout session command failed",
				zap.String(log.FieldNameSession, cmd.Data.Session),
				zap.Error(err),
			)
		}
	default:
		lg.Warn("unknown command", zap.String(log.FieldNameEvent, cmd.Event))
	}
}
