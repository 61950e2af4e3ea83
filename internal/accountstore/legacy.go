package accountstore

import (
	"log/slog"
	"os"
	"time"
)

// MigrateLegacy converts the pre-multi-account session.enc file into the
// per-account layout: decrypt, pull the account id out of the token's
// claims, re-save under tokens/, record the account as last active, and
// delete the legacy file. Any failure leaves the legacy file untouched
// for a later attempt; a second run with no legacy file is a no-op.
func (s *Store) MigrateLegacy() {
	sealed, err := os.ReadFile(s.legacyPath())
	if err != nil {
		return
	}

	if !s.crypt.Available() {
		return
	}

	token, err := s.crypt.Decrypt(sealed)
	if err != nil {
		s.logger.Warn("legacy session migration: decrypt failed, leaving file",
			slog.String("error", err.Error()),
		)

		return
	}

	id, ok := AccountIDFromToken(string(token))
	if !ok {
		s.logger.Warn("legacy session migration: token has no account id, leaving file")
		return
	}

	s.SaveToken(id, string(token))
	s.Upsert(Account{
		ID:          id,
		PersonaName: id, // refreshed by self-identification on next login
		AddedAt:     time.Now(),
	})
	s.SetLast(id)

	if err := os.Remove(s.legacyPath()); err != nil {
		s.logger.Warn("legacy session migration: removing legacy file failed",
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Info("migrated legacy session file", slog.String("account", id))
}
