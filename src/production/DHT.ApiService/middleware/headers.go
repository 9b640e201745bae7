package middleware

import "github.com/gin-gonic/gin"

// JSONHeaders sets the content type every endpoint answers with. The
// wildcard origin is only sent when CORS allows every origin.
func JSONHeaders(allowAnyOrigin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		if allowAnyOrigin {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Next()
	}
}

// NoSniff forbids MIME sniffing of the response
func NoSniff() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

// DenyFraming forbids rendering the response in a frame
func DenyFraming() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}
