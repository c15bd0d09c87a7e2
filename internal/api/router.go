// Package api monta as rotas HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/handlers"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/api/middleware"
	"github.com/LuisEduardoPedra/sentinelaFiscal/internal/core/auth"
)

// Deps são as dependências das rotas.
type Deps struct {
	Auth         *handlers.AuthHandler
	Audit        *handlers.AuditHandler
	JWTSecret    []byte
	MaxFormBytes int64
}

// NewRouter registra CORS, login, rotas protegidas e health check.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if d.MaxFormBytes > 0 {
		router.MaxMultipartMemory = d.MaxFormBytes
	}
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/login", d.Auth.Login)
		protected := apiV1.Group("/")
		protected.Use(middleware.AuthMiddleware(d.JWTSecret), middleware.PermissionMiddleware(auth.RoleAudit))
		{
			protected.POST("/audit", d.Audit.HandleAudit)
			protected.POST("/audit/export", d.Audit.HandleExport)
			protected.GET("/audits", d.Audit.HandleHistory)
		}
	}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	return router
}
