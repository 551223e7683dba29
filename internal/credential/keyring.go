package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/labconsole/internal/model"
)

const serviceName = "labconsole"

// Keys under which the two session artifacts are stored.
const (
	TokenKey   = "auth-token"
	ProfileKey = "user-profile"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/labconsole/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("labconsole-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Keyring reads and writes the session artifacts. It satisfies the
// session provider the notification store is built on.
type Keyring struct {
	ring keyring.Keyring
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Open opens the system keyring.
func Open() (*Keyring, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return NewKeyring(ring), nil
}

// Session returns the stored session, or model.ErrNoSession when either
// artifact is missing or the profile cannot be decoded.
func (k *Keyring) Session(_ context.Context) (model.Session, error) {
	tokenItem, err := k.ring.Get(TokenKey)
	if err != nil {
		return model.Session{}, noSession(err)
	}
	profileItem, err := k.ring.Get(ProfileKey)
	if err != nil {
		return model.Session{}, noSession(err)
	}

	var profile model.UserProfile
	if err := json.Unmarshal(profileItem.Data, &profile); err != nil {
		return model.Session{}, fmt.Errorf("decoding %s: %v: %w", ProfileKey, err, model.ErrNoSession)
	}

	sess := model.Session{Token: string(tokenItem.Data), Profile: profile}
	if !sess.Valid() {
		return model.Session{}, model.ErrNoSession
	}
	return sess, nil
}

// Save stores both artifacts.
func (k *Keyring) Save(sess model.Session) error {
	if !sess.Valid() {
		return fmt.Errorf("saving session: token and username are required")
	}

	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if err := k.ring.Set(keyring.Item{Key: TokenKey, Data: []byte(sess.Token)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", TokenKey, err)
	}
	if err := k.ring.Set(keyring.Item{Key: ProfileKey, Data: profile}); err != nil {
		return fmt.Errorf("setting credential %q: %w", ProfileKey, err)
	}
	return nil
}

// Clear removes both artifacts. Missing items are not an error.
func (k *Keyring) Clear() error {
	for _, key := range []string{TokenKey, ProfileKey} {
		if err := k.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}
	return nil
}

func noSession(err error) error {
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return model.ErrNoSession
	}
	return fmt.Errorf("reading session: %v: %w", err, model.ErrNoSession)
}
