package signald

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcastano/reunion/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Daemon is the dev signaling server.
type Daemon struct {
	reg *Registry
}

func NewDaemon() *Daemon {
	return &Daemon{reg: NewRegistry()}
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d *Daemon) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ReunionSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "signald").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/chat", func(c *gin.Context) {
		log.Info().Str("module", "signald").Str("ct", c.GetString("client_token")).Msg("chat ws hit")
		d.handleChat(ctx, c)
	})
	api.GET("/ws/voice", func(c *gin.Context) {
		d.handleVoice(ctx, c)
	})
	api.GET("/ws/rendezvous", func(c *gin.Context) {
		d.handleRendezvous(ctx, c)
	})

	api.POST("/sessions", d.createSession)
	api.GET("/sessions/:id", d.getSession)
	api.PUT("/sessions/:id/end", d.endSession)

	return r
}
