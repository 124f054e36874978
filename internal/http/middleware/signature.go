package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carrierdesk/backend/internal/utils"
)

const SignatureHeader = "X-Webhook-Signature"

// WebhookSignature validates the HMAC-SHA256 signature the voice platform
// attaches to webhook deliveries. The body is re-buffered so handlers can
// still bind it. An empty secret disables the check (local runs).
func WebhookSignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_REQUEST",
					"message": "Unreadable body",
				},
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sig := c.GetHeader(SignatureHeader)
		if sig == "" || !utils.VerifySignature(body, sig, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_SIGNATURE",
					"message": "Webhook signature verification failed",
				},
			})
			return
		}
		c.Next()
	}
}
