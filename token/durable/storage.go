// Package durable holds the client-side copy of the session tokens, the
// equivalent of browser local storage: two string keys that survive restarts.
package durable

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/rs/zerolog/log"
)

// Fixed storage keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Storage is a string key/value store. Get reports ok=false for absent keys;
// Remove of an absent key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// BatchSetter is implemented by storages that can write several keys in one
// operation, so either all of them change or none do.
type BatchSetter interface {
	SetMany(ctx context.Context, values map[string]string) error
}

// AccessToken returns the stored access token, "" when absent.
func AccessToken(ctx context.Context, s Storage) (string, error) {
	v, _, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("[durable AccessToken] %w: %w", apperrors.ErrStorageUnavailable, err)
	}
	return v, nil
}

// RefreshToken returns the stored refresh token, "" when absent.
func RefreshToken(ctx context.Context, s Storage) (string, error) {
	v, _, err := s.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("[durable RefreshToken] %w: %w", apperrors.ErrStorageUnavailable, err)
	}
	return v, nil
}

// SaveTokens writes both keys of the pair. A failed save leaves the previously
// stored pair in place.
func SaveTokens(ctx context.Context, s Storage, pair token.Pair) error {
	if b, ok := s.(BatchSetter); ok {
		err := b.SetMany(ctx, map[string]string{
			KeyAccessToken:  pair.AccessToken,
			KeyRefreshToken: pair.RefreshToken,
		})
		if err != nil {
			return fmt.Errorf("[durable SaveTokens] %w: %w", apperrors.ErrStorageUnavailable, err)
		}
		return nil
	}

	prev, hadPrev, err := s.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("[durable SaveTokens] %w: %w", apperrors.ErrStorageUnavailable, err)
	}
	if err := s.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("[durable SaveTokens] access token: %w: %w", apperrors.ErrStorageUnavailable, err)
	}
	if err := s.Set(ctx, KeyRefreshToken, pair.RefreshToken); err != nil {
		var rollback error
		if hadPrev {
			rollback = s.Set(ctx, KeyAccessToken, prev)
		} else {
			rollback = s.Remove(ctx, KeyAccessToken)
		}
		if rollback != nil {
			log.Error().Err(rollback).Msg("SaveTokens: restoring previous access token")
		}
		return fmt.Errorf("[durable SaveTokens] refresh token: %w: %w", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

// ClearTokens erases both keys. Both removals are attempted even if the first
// fails.
func ClearTokens(ctx context.Context, s Storage) error {
	errAccess := s.Remove(ctx, KeyAccessToken)
	errRefresh := s.Remove(ctx, KeyRefreshToken)
	if errAccess != nil {
		return fmt.Errorf("[durable ClearTokens] access token: %w: %w", apperrors.ErrStorageUnavailable, errAccess)
	}
	if errRefresh != nil {
		return fmt.Errorf("[durable ClearTokens] refresh token: %w: %w", apperrors.ErrStorageUnavailable, errRefresh)
	}
	return nil
}
