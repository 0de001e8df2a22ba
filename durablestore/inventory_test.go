package durablestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions_Numeric(t *testing.T) {
	cmp, ok := compareVersions(1, 2)
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = compareVersions(int64(5), 5)
	assert.True(t, ok)
	assert.Equal(t, 0, cmp)

	cmp, ok = compareVersions(7, 3)
	assert.True(t, ok)
	assert.Equal(t, 1, cmp)
}

func TestCompareVersions_Lexicographic(t *testing.T) {
	cmp, ok := compareVersions("2026-01-01", "2026-02-01")
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = compareVersions("b", "a")
	assert.True(t, ok)
	assert.Equal(t, 1, cmp)
}

func TestCompareVersions_NilStoredIsLessThanAnyCandidate(t *testing.T) {
	cmp, ok := compareVersions(nil, 0)
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = compareVersions(nil, nil)
	assert.True(t, ok)
	assert.Equal(t, 0, cmp)
}

func TestCompareVersions_MixedTypesNotComparable(t *testing.T) {
	_, ok := compareVersions(1, "a")
	assert.False(t, ok)
}

func TestSameVersionType(t *testing.T) {
	assert.True(t, sameVersionType(1, 2))
	assert.True(t, sameVersionType("a", "b"))
	assert.True(t, sameVersionType(nil, 1))
	assert.True(t, sameVersionType(1, nil))
	assert.False(t, sameVersionType(1, "a"))
	assert.False(t, sameVersionType("a", 1))
}

func TestInventory_SetGetDelete(t *testing.T) {
	inv := NewInventory()

	_, ok := inv.Get("books", "b1")
	assert.False(t, ok)

	inv.Set("books", "b1", InventoryEntry{V: 1, P: false})
	entry, ok := inv.Get("books", "b1")
	assert.True(t, ok)
	assert.Equal(t, InventoryEntry{V: 1, P: false}, entry)

	inv.Delete("books", "b1")
	_, ok = inv.Get("books", "b1")
	assert.False(t, ok)
}
