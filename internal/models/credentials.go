package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/desertthunder/tmx/internal/shared"
)

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,64}$`)

const minAPIKeyLength = 8

// AccountCredentials authenticate against one tenant. They are held in memory
// only; jobs store an [AccountRef] instead.
type AccountCredentials struct {
	APIKey   string `json:"apiKey"`
	TenantID string `json:"tenantId"`
}

// Validate checks the credential shape without contacting the platform.
func (c AccountCredentials) Validate() error {
	if c.APIKey == "" || c.TenantID == "" {
		return shared.ErrMissingCredentials
	}
	if !tenantPattern.MatchString(c.TenantID) {
		return fmt.Errorf("%w: tenant id must be 3-64 letters, digits, '-' or '_'", shared.ErrInvalidCredentials)
	}
	if len(c.APIKey) < minAPIKeyLength {
		return fmt.Errorf("%w: api key is too short", shared.ErrInvalidCredentials)
	}
	if strings.IndexFunc(c.APIKey, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: api key contains whitespace", shared.ErrInvalidCredentials)
	}
	return nil
}

// Ref returns the non-secret reference stored with a job.
func (c AccountCredentials) Ref() AccountRef {
	return AccountRef{TenantID: c.TenantID, KeyFingerprint: shared.Fingerprint(c.APIKey)}
}

// String never includes the API key.
func (c AccountCredentials) String() string {
	return c.Ref().String()
}

// GoString keeps the key out of %#v output as well.
func (c AccountCredentials) GoString() string {
	return "AccountCredentials{" + c.Ref().String() + "}"
}

// AccountRef identifies an account without carrying its secret.
type AccountRef struct {
	TenantID       string `json:"tenantId"`
	KeyFingerprint string `json:"keyFingerprint"`
}

func (r AccountRef) String() string {
	if r.KeyFingerprint == "" {
		return r.TenantID
	}
	return r.TenantID + " (key " + r.KeyFingerprint + ")"
}
