package durable_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/stretchr/testify/require"
)

func storages(t *testing.T) map[string]durable.Storage {
	t.Helper()

	f, err := durable.NewFile(filepath.Join(t.TempDir(), "nested", "tokens.json"))
	require.NoError(t, err)

	return map[string]durable.Storage{
		"memory": durable.NewMemory(),
		"file":   f,
	}
}

func TestStorage_TokenLifecycle(t *testing.T) {
	ctx := context.Background()

	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			access, err := durable.AccessToken(ctx, s)
			require.NoError(t, err)
			require.Empty(t, access)

			require.NoError(t, durable.SaveTokens(ctx, s, token.Pair{AccessToken: "AT1", RefreshToken: "RT1"}))

			access, err = durable.AccessToken(ctx, s)
			require.NoError(t, err)
			require.Equal(t, "AT1", access)
			refresh, err := durable.RefreshToken(ctx, s)
			require.NoError(t, err)
			require.Equal(t, "RT1", refresh)

			require.NoError(t, s.Set(ctx, durable.KeyAccessToken, "AT2"))
			access, err = durable.AccessToken(ctx, s)
			require.NoError(t, err)
			require.Equal(t, "AT2", access)

			require.NoError(t, durable.ClearTokens(ctx, s))
			_, ok, err := s.Get(ctx, durable.KeyAccessToken)
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = s.Get(ctx, durable.KeyRefreshToken)
			require.NoError(t, err)
			require.False(t, ok)

			// clearing twice is fine
			require.NoError(t, durable.ClearTokens(ctx, s))
		})
	}
}

func TestFile_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.json")

	first, err := durable.NewFile(path)
	require.NoError(t, err)
	require.NoError(t, durable.SaveTokens(ctx, first, token.Pair{AccessToken: "AT1", RefreshToken: "RT1"}))

	second, err := durable.NewFile(path)
	require.NoError(t, err)
	access, err := durable.AccessToken(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "AT1", access)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	f, err := durable.NewFile(path)
	require.NoError(t, err)
	_, _, err = f.Get(context.Background(), durable.KeyAccessToken)
	require.Error(t, err)
}

func TestMemory_Keys(t *testing.T) {
	m := durable.NewMemory()
	require.NoError(t, durable.SaveTokens(context.Background(), m, token.Pair{AccessToken: "AT1"}))
	require.ElementsMatch(t, []string{durable.KeyAccessToken, durable.KeyRefreshToken}, m.Keys())
}

// keyByKey hides SetMany and fails every write of failKey.
type keyByKey struct {
	durable.Storage
	failKey string
}

func (s *keyByKey) Set(ctx context.Context, key, value string) error {
	if key == s.failKey {
		return errors.New("write refused")
	}
	return s.Storage.Set(ctx, key, value)
}

func TestSaveTokens_FailedWriteKeepsPreviousPair(t *testing.T) {
	ctx := context.Background()

	t.Run("previous pair restored", func(t *testing.T) {
		m := durable.NewMemory()
		require.NoError(t, durable.SaveTokens(ctx, m, token.Pair{AccessToken: "AT1", RefreshToken: "RT1"}))

		err := durable.SaveTokens(ctx, &keyByKey{Storage: m, failKey: durable.KeyRefreshToken}, token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})
		require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

		access, err := durable.AccessToken(ctx, m)
		require.NoError(t, err)
		require.Equal(t, "AT1", access)
		refresh, err := durable.RefreshToken(ctx, m)
		require.NoError(t, err)
		require.Equal(t, "RT1", refresh)
	})

	t.Run("nothing stored before", func(t *testing.T) {
		m := durable.NewMemory()

		err := durable.SaveTokens(ctx, &keyByKey{Storage: m, failKey: durable.KeyRefreshToken}, token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})
		require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		require.Empty(t, m.Keys())
	})
}

func TestBatchSetters(t *testing.T) {
	ctx := context.Background()

	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			b, ok := s.(durable.BatchSetter)
			require.True(t, ok)
			require.NoError(t, b.SetMany(ctx, map[string]string{
				durable.KeyAccessToken:  "AT1",
				durable.KeyRefreshToken: "RT1",
			}))

			access, err := durable.AccessToken(ctx, s)
			require.NoError(t, err)
			require.Equal(t, "AT1", access)
			refresh, err := durable.RefreshToken(ctx, s)
			require.NoError(t, err)
			require.Equal(t, "RT1", refresh)
		})
	}
}

func TestAccessToken_ReadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	f, err := durable.NewFile(path)
	require.NoError(t, err)

	_, err = durable.AccessToken(context.Background(), f)
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}
