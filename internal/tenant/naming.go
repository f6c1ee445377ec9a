// Package tenant derives every tenant-scoped name and credential from a tenant id.
//
// All identifiers embedded in SQL or manifest text go through Sanitize, so the
// database name, the database user and the workload names follow one policy.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxIDLength keeps "user_<id>" within MySQL's 32 character user name limit.
const MaxIDLength = 27

var (
	// ErrInvalidTenantID is returned for ids that are not safe as both a SQL
	// identifier fragment and a DNS label fragment.
	ErrInvalidTenantID = errors.New("invalid tenant id")

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	validID     = regexp.MustCompile(`^[a-z0-9]+$`)
)

// Sanitize strips every character outside [A-Za-z0-9_].
func Sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "")
}

func DatabaseName(tenantID string) string {
	return "db_" + Sanitize(tenantID)
}

func UserName(tenantID string) string {
	return "user_" + Sanitize(tenantID)
}

func ResourceName(tenantID string) string {
	return "tenant-" + tenantID
}

// Validate reports whether tenantID may be provisioned.
func Validate(tenantID string) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("%w: empty", ErrInvalidTenantID)
	case len(tenantID) > MaxIDLength:
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidTenantID, tenantID, MaxIDLength)
	case !validID.MatchString(tenantID):
		return fmt.Errorf("%w: %q must contain only lowercase letters and digits", ErrInvalidTenantID, tenantID)
	}
	return nil
}
