package engineerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAlreadyExists(t *testing.T) {
	require.False(t, IsAlreadyExists(nil))
	require.True(t, IsAlreadyExists(ErrAlreadyExists))
	require.True(t, IsAlreadyExists(fmt.Errorf("wrapped: %w", ErrAlreadyExists)))
	require.True(t, IsAlreadyExists(errors.New(`table "clips" already exists`)))
	require.False(t, IsAlreadyExists(errors.New("no such table: clips")))
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(errors.New("database is locked")))
	require.True(t, IsTransient(errors.New("SQLITE_BUSY: database table is locked")))
	require.False(t, IsTransient(ErrNotFound))
}
