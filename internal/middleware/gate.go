// Package middleware provides the Gin middleware of the Assessment API: the credential
// and rate-limit gate, the usage logger, the pre-auth IP guard, admin token checks,
// request ids, metrics, CORS and security headers.
//
// Ordering is enforced in router.go:
//
//	Recovery → RequestID → Usage → Metrics → Logger → Security → CORS → IPGuard → Gate → Handler
//
// The usage logger is registered before the gate so that it also sees requests the
// gate rejects; it reads the gate's context keys after c.Next returns.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assessment-platform/assessment-api/internal/api/respond"
	"github.com/assessment-platform/assessment-api/internal/assessment"
	"github.com/assessment-platform/assessment-api/internal/auth"
	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/db/repositories"
	"github.com/assessment-platform/assessment-api/internal/ratelimit"
	"github.com/assessment-platform/assessment-api/internal/safego"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
)

// Context keys set by the gate.
const (
	APIKeyIDKey       = "api_key_id"
	OrganizationIDKey = "organization_id"
	OrganizationKey   = "organization"
	RateLimitKey      = "rate_limit"
)

// SessionCreateRoutes are the route templates counted against the monthly session quota.
var SessionCreateRoutes = []string{"/sessions", "/api/v1/sessions"}

// Gate authenticates tenant API keys and enforces the per-key rolling rate limit.
type Gate struct {
	apiKeys      *repositories.APIKeyRepository
	orgs         *repositories.OrganizationRepository
	usage        *repositories.UsageRepository
	limiter      ratelimit.Limiter
	defaultLimit int
	now          func() time.Time
}

// NewGate creates a gate. defaultLimit applies to keys and organizations without
// their own per-minute limit.
func NewGate(apiKeys *repositories.APIKeyRepository, orgs *repositories.OrganizationRepository,
	usage *repositories.UsageRepository, limiter ratelimit.Limiter, defaultLimit int) *Gate {
	return &Gate{
		apiKeys:      apiKeys,
		orgs:         orgs,
		usage:        usage,
		limiter:      limiter,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Authenticate resolves the bearer API key to its organization and admits the request
// against the key's budget. Rejected attempts count toward the budget too.
func (g *Gate) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		token, err := auth.ExtractAPIKeyFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			respond.Error(c, assessment.Unauthenticated("missing or malformed Authorization header"))
			return
		}

		key, err := g.lookup(ctx, token)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if key == nil || !key.IsUsable(g.now()) {
			respond.Error(c, assessment.Unauthenticated("invalid API key"))
			return
		}

		org, err := g.orgs.GetByID(ctx, key.OrganizationID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if org == nil || !org.IsActive {
			respond.Error(c, assessment.Unauthenticated("invalid API key"))
			return
		}

		limit := g.limitFor(key, org)
		c.Set(APIKeyIDKey, key.ID)
		c.Set(OrganizationIDKey, org.ID)
		c.Set(OrganizationKey, org)
		c.Set(RateLimitKey, limit)

		decision, err := g.limiter.Admit(ctx, key.ID, limit)
		if err != nil {
			respond.Error(c, err)
			return
		}
		setRateLimitHeaders(c, decision)
		if !decision.Allowed {
			telemetry.RateLimitRejectionsTotal.WithLabelValues("api_key").Inc()
			slog.InfoContext(ctx, "rate limit exceeded", "api_key_id", key.ID, "limit", limit)
			respond.Error(c, assessment.RateLimited(assessment.CodeRateLimited, "rate limit exceeded", decision.ResetAt))
			return
		}

		c.Next()

		if c.Writer.Status() < http.StatusBadRequest {
			keyID := key.ID
			safego.Go("api_key_record_use", func() {
				recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := g.apiKeys.RecordUse(recCtx, keyID); err != nil {
					slog.Warn("failed to record API key use", "api_key_id", keyID, "error", err)
				}
			})
		}
	}
}

// lookup narrows candidates by display prefix, then bcrypt-compares each one.
func (g *Gate) lookup(ctx context.Context, token string) (*models.APIKey, error) {
	candidates, err := g.apiKeys.GetActiveByPrefix(ctx, auth.DisplayPrefix(token))
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if auth.ValidateAPIKey(token, k.KeyHash) {
			return k, nil
		}
	}
	return nil, nil
}

func (g *Gate) limitFor(key *models.APIKey, org *models.Organization) int {
	switch {
	case key.RateLimitPerMinute > 0:
		return key.RateLimitPerMinute
	case org.DefaultRateLimit > 0:
		return org.DefaultRateLimit
	default:
		return g.defaultLimit
	}
}

func setRateLimitHeaders(c *gin.Context, d *ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		retry := int(time.Until(d.ResetAt).Seconds()) + 1
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
	}
}

// SessionQuota rejects session creation once the organization has used its monthly
// quota. It must run after Authenticate.
func (g *Gate) SessionQuota() gin.HandlerFunc {
	return func(c *gin.Context) {
		org := Organization(c)
		if org == nil || org.MonthlySessionQuota <= 0 {
			c.Next()
			return
		}

		used, err := g.usage.CountThisMonth(c.Request.Context(), org.ID, http.MethodPost, SessionCreateRoutes, http.StatusCreated)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if used >= int64(org.MonthlySessionQuota) {
			telemetry.RateLimitRejectionsTotal.WithLabelValues("quota").Inc()
			now := g.now().UTC()
			nextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			respond.Error(c, assessment.RateLimited(assessment.CodeQuotaExceeded,
				"monthly session quota exhausted", nextMonth))
			return
		}
		c.Next()
	}
}

// Organization returns the organization authenticated by the gate, or nil.
func Organization(c *gin.Context) *models.Organization {
	if v, ok := c.Get(OrganizationKey); ok {
		if org, ok := v.(*models.Organization); ok {
			return org
		}
	}
	return nil
}

// OrganizationID returns the authenticated organization id, or "".
func OrganizationID(c *gin.Context) string {
	return c.GetString(OrganizationIDKey)
}

// APIKeyID returns the authenticated API key id, or "".
func APIKeyID(c *gin.Context) string {
	return c.GetString(APIKeyIDKey)
}
