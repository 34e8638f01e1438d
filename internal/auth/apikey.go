// ABOUTME: Dashboard API keys: creation of cd_ keys with bcrypt hashes, and verification
// ABOUTME: Keys are found by their public prefix, then compared against the stored hash

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/chatdesk/internal/store"
)

const (
	// APIKeyPrefix starts every plaintext key.
	APIKeyPrefix = "cd_"
	// prefixLen is the number of plaintext characters stored for lookup.
	prefixLen    = len(APIKeyPrefix) + 8
	secretBytes  = 24
)

// ErrInvalidAPIKey is returned for malformed, unknown or mismatched keys.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeys creates and verifies dashboard API keys.
type APIKeys struct {
	store  store.APIKeyStore
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewAPIKeys creates an APIKeys service. Pass nil logger for default.
func NewAPIKeys(st store.APIKeyStore, logger *slog.Logger) *APIKeys {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeys{
		store:  st,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger.With("component", "apikeys"),
	}
}

// SetCost changes the bcrypt cost used for keys created afterwards.
func (k *APIKeys) SetCost(cost int) {
	k.cost = cost
}

// Create stores a new key for ownerID and returns its plaintext. The
// plaintext is not recoverable afterwards.
func (k *APIKeys) Create(ctx context.Context, ownerID, name string) (string, *store.APIKey, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}
	plaintext := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), k.cost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing key: %w", err)
	}

	key := &store.APIKey{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Prefix:    plaintext[:prefixLen],
		Hash:      hash,
		CreatedAt: k.now().UTC(),
	}
	if err := k.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	k.logger.Info("api key created", "owner_id", ownerID, "key_id", key.ID, "prefix", key.Prefix)
	return plaintext, key, nil
}

// Verify resolves plaintext to its stored key and records the use.
func (k *APIKeys) Verify(ctx context.Context, plaintext string) (*store.APIKey, error) {
	if !strings.HasPrefix(plaintext, APIKeyPrefix) || len(plaintext) <= prefixLen {
		return nil, ErrInvalidAPIKey
	}

	key, err := k.store.GetAPIKeyByPrefix(ctx, plaintext[:prefixLen])
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("looking up key: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(key.Hash, []byte(plaintext)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	if err := k.store.TouchAPIKey(ctx, key.ID, k.now().UTC()); err != nil {
		k.logger.Warn("failed to record api key use", "key_id", key.ID, "error", err)
	}
	return key, nil
}
