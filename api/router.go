package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(), CORS(cfg.AllowedOrigins))

	engine.GET("/health", h.Health)
	engine.POST("/chat", h.Chat)
	engine.GET("/stats", h.Stats)
	engine.GET("/tables", h.Tables)

	return engine
}

func NewServer(engine *gin.Engine, cfg Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
