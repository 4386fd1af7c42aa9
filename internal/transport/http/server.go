package http

import (
	"github.com/gin-gonic/gin"

	"crawlmind/internal/bootstrap"
	"crawlmind/internal/transport/http/handler"
	"crawlmind/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.CORS(app.Config.App.CORSOrigins))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	requireAuth := middleware.Authenticate(app.Verifier)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	if app.Auth != nil {
		authHandler := handler.NewAuthHandler(app.Auth)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}
	authGroup.GET("/me", requireAuth, handler.Me)

	ragHandler := handler.NewRAGHandler(app.Ingestion, app.Query, app.Knowledge, app.Sessions, app.Config.Extract.MaxUploadMB)
	ragGroup := v1.Group("/rag")
	ragGroup.Use(requireAuth)
	ragGroup.POST("/ingest", ragHandler.Ingest)
	ragGroup.POST("/query", ragHandler.Query)
	ragGroup.GET("/transcript", ragHandler.Transcript)
	ragGroup.DELETE("/transcript", ragHandler.ResetTranscript)
	ragGroup.GET("/collections", ragHandler.ListCollections)
	ragGroup.DELETE("/collections/:name", ragHandler.DropCollection)
	ragGroup.DELETE("/store", ragHandler.ClearStore)
	ragGroup.GET("/ingestions", ragHandler.ListIngestions)

	return router
}
