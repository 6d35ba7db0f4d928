package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/biolink/pkg/response"
)

// PrivateNetworkOnly rejects requests whose client IP is not loopback or
// in a private range. Behind a reverse proxy the engine must list it with
// SetTrustedProxies, otherwise the proxy address is what gets checked.
func PrivateNetworkOnly() gin.HandlerFunc {
	allow := AllowPrivateIP()
	return func(c *gin.Context) {
		if !allow(c) {
			response.Error[any](c, http.StatusForbidden, "studio is only reachable from a private network", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
