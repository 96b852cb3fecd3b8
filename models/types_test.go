package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeObjectType(t *testing.T) {
	require.Equal(t, ObjectTypeObject, NormalizeObjectType("unknown"))
	require.Equal(t, ObjectTypeObject, NormalizeObjectType("nonperson"))
	require.Equal(t, ObjectTypeObject, NormalizeObjectType(""))
	require.Equal(t, ObjectTypePerson, NormalizeObjectType("person"))
	require.Equal(t, ObjectType("vehicle"), NormalizeObjectType("vehicle"))
}

func TestSavedStateAccessors(t *testing.T) {
	require.True(t, SavedNo().IsNo())
	require.True(t, SavedYes().IsYes())
	p := SavedPending(1234)
	require.True(t, p.IsPending())
	require.Equal(t, int64(1234), p.RetryAtMs())
}

func TestSavedStateOrRanksYesOverPendingOverNo(t *testing.T) {
	require.True(t, SavedNo().Or(SavedYes()).IsYes())
	require.True(t, SavedYes().Or(SavedNo()).IsYes())
	require.True(t, SavedNo().Or(SavedPending(5)).IsPending())
	require.True(t, SavedPending(5).Or(SavedYes()).IsYes())
	require.True(t, SavedYes().Or(SavedPending(5)).IsYes())
}

func TestSavedStateOrPrefersExistingWhenEqualRank(t *testing.T) {
	result := SavedPending(10).Or(SavedPending(20))
	require.True(t, result.IsPending())
	require.Equal(t, int64(10), result.RetryAtMs())
}
