package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast-server/internal/config"
	"github.com/roomcast/roomcast-server/internal/core"
	"github.com/roomcast/roomcast-server/internal/store"
)

// NewServer builds the HTTP server: WebSocket endpoint for the realtime
// protocol plus the REST surface for room management and history.
//
// The WebSocket route is mounted on the outer mux, not the gin router: the
// upgrade hijacks the connection, and gin's ResponseWriter refuses to hijack
// once the 101 has been written through it.
func NewServer(session *core.Session, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", healthHandler)

	rooms := NewRoomHandlers(st, logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.POST("/rooms", rooms.CreateRoom)
		api.GET("/rooms/:room/messages", rooms.ListMessages)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(session, cfg.AllowedOrigins, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
