package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mfs "github.com/CageChen/filehub/internal/fs"
	"github.com/CageChen/filehub/internal/metrics"
)

// RequireWritable rejects mutations outside development mode before any
// body is read.
func RequireWritable(writable bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if writable {
			c.Next()
			return
		}
		metrics.RecordOperation(c.FullPath(), string(mfs.KindModeForbidden))
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Error: "File operations are only allowed in development mode",
			Kind:  mfs.KindModeForbidden,
		})
	}
}

// CORS allows browser clients on other origins.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
