package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/subcycle/subcycle/internal/types"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenantID  = "X-Tenant-ID"
	HeaderUserID    = "X-User-ID"
)

// RequestIDMiddleware tags every request with an id for log correlation.
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
	}

	ctx := types.SetRequestID(c.Request.Context(), requestID)
	c.Request = c.Request.WithContext(ctx)

	c.Header(HeaderRequestID, requestID)
	c.Next()
}

// TenantMiddleware resolves the tenant and user for the request. Falls back
// to the defaults so single-tenant deployments work without headers.
func TenantMiddleware(c *gin.Context) {
	tenantID := c.GetHeader(HeaderTenantID)
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		userID = types.DefaultUserID
	}

	ctx := types.SetTenantID(c.Request.Context(), tenantID)
	ctx = types.SetUserID(ctx, userID)
	c.Request = c.Request.WithContext(ctx)

	c.Next()
}
