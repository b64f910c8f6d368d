package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

// Store holds the latest installed card. Readers take a snapshot reference;
// writers install a new card with an atomic pointer swap, so a reader never
// observes a half-built card.
type Store struct {
	card   atomic.Pointer[Card]
	logger *zap.Logger
}

// NewStore creates an empty card store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logger.Named("card-store")}
}

// Get returns the current card, or nil when none is installed.
func (s *Store) Get() *Card {
	return s.card.Load()
}

// Put installs a new card. The previous card stays valid for readers that
// already hold it.
func (s *Store) Put(card *Card) {
	s.card.Store(card)
	s.logger.Info("Schema card installed",
		zap.String("reflection_hash", card.ReflectionHash),
		zap.Int("tables", card.TableCount()),
		zap.Int("subject_areas", len(card.SubjectAreas)))
}

// Encode serializes a card to its portable JSON form.
func Encode(card *Card) ([]byte, error) {
	data, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encode schema card: %w", err)
	}
	return data, nil
}

// Decode parses a serialized card and checks its format version.
func Decode(data []byte) (*Card, error) {
	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode schema card: %w", err)
	}
	if card.FormatVersion != CardFormatVersion {
		return nil, fmt.Errorf("schema card format version %d, want %d",
			card.FormatVersion, CardFormatVersion)
	}
	return &card, nil
}

// SaveToDir writes the card to <dir>/<connection fingerprint>.json.
func (s *Store) SaveToDir(dir string, card *Card) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := Encode(card)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, card.Fingerprint+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write schema card cache: %w", err)
	}
	s.logger.Debug("Schema card cached", zap.String("path", path))
	return nil
}

// LoadFromDir reads a cached card for the given connection fingerprint and
// returns it only when its reflection hash matches the expected one. A stale
// or unreadable cache is not an error; it just means a fresh build.
func (s *Store) LoadFromDir(dir, fingerprint, wantReflectionHash string) *Card {
	path := filepath.Join(dir, fingerprint+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	card, err := Decode(data)
	if err != nil {
		s.logger.Warn("Discarding unreadable schema card cache",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	if card.ReflectionHash != wantReflectionHash {
		s.logger.Info("Schema card cache is stale",
			zap.String("cached_hash", card.ReflectionHash),
			zap.String("current_hash", wantReflectionHash))
		return nil
	}
	return card
}
