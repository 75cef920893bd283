package auth

import (
	"fmt"

	"golang.org/x/crypto/argon2"

	"transfer-lab/domain"
)

// Argon2id parameters. Lighter than a password profile: keys are derived
// once per connection bind, not once per login, and the input is a random
// cluster secret rather than a guessable password.
const (
	memory      = 16 * 1024 // 16 MB
	iterations  = 2
	parallelism = 2
	keyLength   = 32
)

// DeriveKey computes the authorization key for one session on one
// data-center. The derivation is deterministic: every node holding the
// cluster secret agrees on the key without the key itself ever crossing the
// wire more than once.
func DeriveKey(secret []byte, sessionID string, dc int) domain.AuthKey {
	salt := fmt.Appendf(nil, "%s/dc-%d", sessionID, dc)
	return argon2.IDKey(secret, salt, iterations, memory, parallelism, keyLength)
}
