package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/labconsole/internal/model"
)

func newTestKeyring() *Keyring {
	return NewKeyring(keyring.NewArrayKeyring(nil))
}

func TestKeyring_SaveAndSession(t *testing.T) {
	k := newTestKeyring()
	want := model.Session{
		Token:   "abc123",
		Profile: model.UserProfile{ID: "7", Username: "ana", Email: "ana@lab.test"},
	}
	require.NoError(t, k.Save(want))

	got, err := k.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestKeyring_MissingArtifacts(t *testing.T) {
	k := newTestKeyring()

	_, err := k.Session(context.Background())
	assert.True(t, errors.Is(err, model.ErrNoSession))

	// Token alone is not enough.
	require.NoError(t, k.ring.Set(keyring.Item{Key: TokenKey, Data: []byte("abc")}))
	_, err = k.Session(context.Background())
	assert.True(t, errors.Is(err, model.ErrNoSession))

	// A corrupt profile counts as missing.
	require.NoError(t, k.ring.Set(keyring.Item{Key: ProfileKey, Data: []byte("{not json")}))
	_, err = k.Session(context.Background())
	assert.True(t, errors.Is(err, model.ErrNoSession))
}

func TestKeyring_Clear(t *testing.T) {
	k := newTestKeyring()
	require.NoError(t, k.Save(model.Session{Token: "t", Profile: model.UserProfile{Username: "bo"}}))

	require.NoError(t, k.Clear())
	_, err := k.Session(context.Background())
	assert.True(t, errors.Is(err, model.ErrNoSession))

	// Clearing twice is harmless.
	assert.NoError(t, k.Clear())
}

func TestKeyring_SaveRejectsIncompleteSession(t *testing.T) {
	assert.Error(t, newTestKeyring().Save(model.Session{Token: "t"}))
}
