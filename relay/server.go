package relay

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chat-mesh/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are native apps, not browsers. No origin policy to enforce.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server exposes the websocket endpoint and a health probe.
type Server struct {
	log    *slog.Logger
	hub    *Hub
	secret []byte
}

func NewServer(log *slog.Logger, hub *Hub, secret []byte) *Server {
	return &Server{log: log, hub: hub, secret: secret}
}

// Router builds the gin handler. The hub's Run loop must be started
// separately.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", s.handleWS)
	return r
}

func (s *Server) handleWS(c *gin.Context) {
	claims, err := s.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn, claims.UserID, claims.Name, s.log)
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// authenticate accepts the token as a bearer header or, for clients that
// cannot set headers on the upgrade request, a query parameter.
func (s *Server) authenticate(c *gin.Context) (*auth.Claims, error) {
	raw := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		raw = strings.TrimPrefix(header, "Bearer ")
	}
	return auth.ValidateToken(s.secret, raw)
}
