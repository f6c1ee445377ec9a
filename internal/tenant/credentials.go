package tenant

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"tenant-provisioner/internal/model"
)

const passwordBytes = 32

// NewCredentials returns the deterministic user for tenantID and a fresh random password.
func NewCredentials(tenantID string) (model.Credentials, error) {
	buf := make([]byte, passwordBytes)
	if _, err := rand.Read(buf); err != nil {
		return model.Credentials{}, fmt.Errorf("failed to generate password: %w", err)
	}

	return model.Credentials{
		DBUser:     UserName(tenantID),
		DBPassword: base64.RawURLEncoding.EncodeToString(buf),
	}, nil
}
