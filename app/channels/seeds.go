package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type seedEntry struct {
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
}

type seedsFile struct {
	Channels []seedEntry `yaml:"channels"`
}

// LoadSeeds subscribes the given user to every feed listed in a YAML seeds
// file. Feeds that are already subscribed are skipped, so the loader is safe
// to run on every startup.
func (s *Service) LoadSeeds(ctx context.Context, path, userID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seeds file: %w", err)
	}

	var seeds seedsFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("failed to parse seeds file: %w", err)
	}

	created := 0
	for _, entry := range seeds.Channels {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := s.Subscribe(ctx, userID, entry.URL, entry.Category)
		if err != nil {
			var existsErr *AlreadyExistsError
			if errors.As(err, &existsErr) {
				continue
			}
			slog.Warn("Failed to subscribe seed", "url", entry.URL, "error", err)
			continue
		}
		created++
	}

	slog.Info("Seeds loaded", "file", path, "total", len(seeds.Channels), "created", created)
	return nil
}
