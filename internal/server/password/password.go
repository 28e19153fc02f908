// Package password wraps the bcrypt primitive behind the two operations
// the rest of the service needs.
package password

import "golang.org/x/crypto/bcrypt"

// Hash derives a bcrypt digest from the plaintext. The digest embeds its
// own salt and cost, so no extra state is stored.
func Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the digest. bcrypt's comparison
// is constant-time.
func Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
