package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"chat-mesh/auth"
	"chat-mesh/domain/event"
	"chat-mesh/relay"
	"chat-mesh/transport"
)

// BaseRelaySuite spins an in-process relay unless E2E_RELAY_ADDR points
// at a running one, and hands out connected transports for test users.
type BaseRelaySuite struct {
	suite.Suite
	Config Config

	server *httptest.Server
	wsURL  string
}

func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.RelayAddr != "" {
		s.wsURL = "ws://" + s.Config.RelayAddr + "/ws"
		return
	}

	logger := slog.Default()
	hub := relay.NewHub(logger, nil)
	go hub.Run()
	server := relay.NewServer(logger, hub, []byte(s.Config.JWTSecret))
	s.server = httptest.NewServer(server.Router())
	s.wsURL = "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

func (s *BaseRelaySuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
}

// Connect dials the relay as the given user and returns a live transport.
func (s *BaseRelaySuite) Connect(t *testing.T, userID, userName string) *transport.WebsocketTransport {
	header := fmt.Sprintf("  ====== connect %s ======", userName)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	token, err := auth.GenerateToken([]byte(s.Config.JWTSecret), userID, userName, "")
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, s.wsURL, token, slog.Default())
	s.Require().NoError(err, "Failed to connect to relay at "+s.wsURL)
	return conn
}

// WaitFor drains the transport until an event of the wanted type shows
// up or the timeout expires.
func (s *BaseRelaySuite) WaitFor(t *testing.T, conn *transport.WebsocketTransport, eventType string) event.Inbound {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case inbound, ok := <-conn.Events():
			s.Require().True(ok, "transport closed while waiting for "+eventType)
			if s.Config.DebugJSON {
				raw, _ := json.MarshalIndent(inbound.Event, "", "  ")
				t.Logf("RECEIVED %s from %s:\n%s", inbound.Type, inbound.From, raw)
			}
			if inbound.Type == eventType {
				return inbound
			}
		case <-deadline:
			s.Require().FailNow("timed out waiting for " + eventType)
			return event.Inbound{}
		}
	}
}
