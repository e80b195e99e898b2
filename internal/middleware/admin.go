package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/auth"
)

// AdminSubjectKey holds the subject of a validated admin token.
const AdminSubjectKey = "admin_subject"

// AdminAuth requires a platform admin JWT in the Authorization header.
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractAPIKeyFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			respond.Error(c, assessment.Unauthenticated("missing or malformed Authorization header"))
			return
		}
		claims, err := auth.ValidateAdminToken(token)
		if err != nil {
			slog.InfoContext(c.Request.Context(), "admin token rejected", "error", err)
			respond.Error(c, assessment.Unauthenticated("invalid admin token"))
			return
		}
		c.Set(AdminSubjectKey, claims.Subject)
		c.Next()
	}
}
