package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lk2023060901/sessiongate-go/internal/json"
	"github.com/lk2023060901/sessiongate-go/internal/store"
)

type wsFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (s *GatewaySuite) dialWS() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	if resp != nil {
		resp.Body.Close()
	}
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *GatewaySuite) readFrame(conn *websocket.Conn) wsFrame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, data, err := conn.ReadMessage()
	s.Require().NoError(err)

	var frame wsFrame
	s.Require().NoError(json.Unmarshal(data, &frame))
	return frame
}

func (s *GatewaySuite) writeFrame(conn *websocket.Conn, payload string) {
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (s *GatewaySuite) TestWSInitializeOnConnect() {
	_, err := s.store.Put(context.Background(), store.SessionRecord{Session: "alpha", Ready: true})
	s.Require().NoError(err)

	conn := s.dialWS()

	frame := s.readFrame(conn)
	s.Equal("initialize", frame.Event)

	sessions, ok := frame.Data["sessions"].([]any)
	s.Require().True(ok)
	s.Require().Len(sessions, 1)
	entry, ok := sessions[0].(map[string]any)
	s.Require().True(ok)
	s.Equal("alpha", entry["session"])
	// Ready is never trusted in a snapshot; the session announces CONNECTED
	// itself.
	s.Equal(false, entry["ready"])
}

func (s *GatewaySuite) TestWSCreateAndLogoutSession() {
	conn := s.dialWS()
	s.Equal("initialize", s.readFrame(conn).Event)

	s.writeFrame(conn, `{"event":"create-session","data":{"session":"beta","multidevice":true,"company":"acme"}}`)

	s.Eventually(func() bool {
		h, ok := s.registry.Get("beta")
		return ok && h.Company == "acme"
	}, 5*time.Second, 10*time.Millisecond)

	s.writeFrame(conn, `{"event":"logout-session","data":{"session":"beta"}}`)

	frame := s.readFrame(conn)
	s.Equal("message", frame.Event)
	s.Equal("beta", frame.Data["session"])
	s.Equal("DISCONNECTED", frame.Data["status"])

	_, ok := s.registry.Get("beta")
	s.False(ok)
}

func (s *GatewaySuite) TestWSMalformedFrameTolerated() {
	conn := s.dialWS()
	s.Equal("initialize", s.readFrame(conn).Event)

	s.writeFrame(conn, "not json")
	s.writeFrame(conn, `{"event":"create-session","data":{"session":"gamma"}}`)

	s.Eventually(func() bool {
		_, ok := s.registry.Get("gamma")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *GatewaySuite) TestWSUnknownCommandIgnored() {
	conn := s.dialWS()
	s.Equal("initialize", s.readFrame(conn).Event)

	s.writeFrame(conn, `{"event":"time-travel","data":{"session":"beta"}}`)
	s.writeFrame(conn, `{"event":"create-session","data":{"session":"delta"}}`)

	s.Eventually(func() bool {
		_, ok := s.registry.Get("delta")
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}
