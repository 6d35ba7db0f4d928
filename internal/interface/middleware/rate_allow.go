package middleware

import (
	"net"

	"github.com/gin-gonic/gin"
)

// AllowPrivateIP matches loopback and RFC 1918 / RFC 4193 client addresses.
// It trusts only c.ClientIP(), which reads forwarding headers from the
// engine's trusted proxies and falls back to the socket address.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		ip := net.ParseIP(c.ClientIP())
		return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
	}
}
