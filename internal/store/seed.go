package store

import (
	"context"
	"fmt"

	"github.com/docoho/emoji/internal/keywords"
)

type seedEmoji struct {
	symbol      string
	title       string
	description string
	category    string
	keywords    []string
}

// seedCatalog is the static emoji catalog. It lives in the emojis table with
// everything else (single id space); rows are inserted without a submitter,
// so no user can edit or delete them.
var seedCatalog = []seedEmoji{
	{"😀", "Grinning Face", "A classic smile conveying general happiness.", "Smileys", []string{"happy", "smile", "joy"}},
	{"🚀", "Rocket", "Symbolizes fast progress or launching new ideas.", "Travel", []string{"launch", "startup", "space"}},
	{"🎉", "Party Popper", "Used to celebrate special occasions and wins.", "Activities", []string{"celebration", "party", "congrats"}},
	{"🤖", "Robot", "Represents technology, automation, or playful robotics.", "Objects", []string{"bot", "automation", "ai"}},
	{"🌈", "Rainbow", "Often used for joy, hope, and inclusivity.", "Nature", []string{"hope", "color", "pride"}},
}

// EnsureSeedCatalog inserts the static catalog, skipping rows that already
// exist. Safe to run on every boot.
func (s *PostgresStore) EnsureSeedCatalog(ctx context.Context) error {
	for _, seed := range seedCatalog {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO emojis (symbol, title, description, category, keywords)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol, title) DO NOTHING
		`, seed.symbol, seed.title, seed.description, seed.category, keywords.Normalize(seed.keywords))
		if err != nil {
			return fmt.Errorf("seed emoji %q: %w", seed.title, err)
		}
	}
	return nil
}
