package accountstore

import (
	"log/slog"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// SaveToken encrypts and persists an account's refresh token. When
// encryption is unavailable on this platform the token is silently not
// saved — the session still works, it just cannot be restored later.
func (s *Store) SaveToken(id, token string) {
	if !s.crypt.Available() {
		s.logger.Debug("encryption unavailable, not saving refresh token",
			slog.String("account", id),
		)

		return
	}

	sealed, err := s.crypt.Encrypt([]byte(token))
	if err != nil {
		s.logger.Warn("encrypting refresh token failed",
			slog.String("account", id),
			slog.String("error", err.Error()),
		)

		return
	}

	if err := s.writeFileAtomic(s.tokenPath(id), sealed); err != nil {
		s.logger.Warn("saving refresh token failed",
			slog.String("account", id),
			slog.String("error", err.Error()),
		)
	}
}

// LoadToken returns an account's decrypted refresh token. Any failure —
// missing blob, unavailable encryption, undecryptable data — reads as
// "no saved token".
func (s *Store) LoadToken(id string) (string, bool) {
	if !s.crypt.Available() {
		return "", false
	}

	sealed, err := os.ReadFile(s.tokenPath(id))
	if err != nil {
		return "", false
	}

	token, err := s.crypt.Decrypt(sealed)
	if err != nil {
		s.logger.Warn("decrypting refresh token failed",
			slog.String("account", id),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	return string(token), true
}

// ClearToken deletes an account's token blob. Already-absent blobs are
// fine.
func (s *Store) ClearToken(id string) {
	if err := os.Remove(s.tokenPath(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing refresh token failed",
			slog.String("account", id),
			slog.String("error", err.Error()),
		)
	}
}

// AccountIDFromToken extracts the account id from a refresh token's
// embedded claims. The token is not validated — we only need the subject
// the issuer stamped into it.
func AccountIDFromToken(token string) (string, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", false
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}

	return sub, true
}
