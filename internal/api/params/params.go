// Package params parses the path and query parameters shared by the API handlers.
package params

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/assessment-platform/assessment-api/internal/assessment"
)

// Page limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// UUID returns the named path parameter when it is a well-formed UUID. Anything else is
// reported as NotFound with code, since such an id cannot name a stored row.
func UUID(c *gin.Context, name, code string) (string, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", assessment.NotFound(code, "not found")
	}
	return id.String(), nil
}

// Page parses limit and offset. limit defaults to DefaultLimit and is capped at MaxLimit.
func Page(c *gin.Context) (limit, offset int, err error) {
	limit, err = intQuery(c, "limit", DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err = intQuery(c, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if limit < 1 {
		return 0, 0, assessment.Validation(assessment.CodeValidation, "limit must be at least 1")
	}
	if offset < 0 {
		return 0, 0, assessment.Validation(assessment.CodeValidation, "offset must not be negative")
	}
	return min(limit, MaxLimit), offset, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, assessment.Validation(assessment.CodeValidation, name+" must be an integer")
	}
	return v, nil
}

// Time parses an RFC 3339 query parameter, returning def when it is absent.
func Time(c *gin.Context, name string, def time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, assessment.Validation(assessment.CodeValidation, name+" must be an RFC 3339 timestamp")
	}
	return t, nil
}
