package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	attempts := 0
	got, err := database.Retry(t.Context(), func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("constraint violated")
	attempts := 0
	_, err := database.Retry(t.Context(), func(context.Context) (int, error) {
		attempts++
		return 0, permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	_, err := database.Retry(t.Context(), func(context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}
