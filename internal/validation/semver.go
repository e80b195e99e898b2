// semver.go provides version and version-constraint helpers used to pin templates to the
// scoring engine release they were written for.
package validation

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ValidateConstraint validates a constraint expression such as ">= 1.0, < 2.0".
func ValidateConstraint(constraint string) error {
	_, err := version.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint: %w", err)
	}
	return nil
}

// ConstraintSatisfied reports whether versionStr satisfies constraint.
func ConstraintSatisfied(constraint, versionStr string) (bool, error) {
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint: %w", err)
	}
	v, err := version.NewVersion(versionStr)
	if err != nil {
		return false, fmt.Errorf("invalid semantic version: %w", err)
	}
	return c.Check(v), nil
}
