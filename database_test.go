package conjecture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivedKeys(t *testing.T) {
	primary, secondary, covering := DerivedKeys("mytest")
	require.Equal(t, "mytest", primary)
	require.Equal(t, "mytest.secondary", secondary)
	require.Equal(t, "mytest.coverage", covering)
}

func TestMemoryDatabaseSaveFetch(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Save("k", []byte{1, 2, 3}))
	require.NoError(t, db.Save("k", []byte{4, 5}))

	got, err := db.Fetch("k")
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{{1, 2, 3}, {4, 5}}, got)
}

func TestMemoryDatabaseSaveIsIdempotent(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Save("k", []byte{1, 2, 3}))
	require.NoError(t, db.Save("k", []byte{1, 2, 3}))

	got, _ := db.Fetch("k")
	require.Len(t, got, 1)
}

func TestMemoryDatabaseFetchMissingKey(t *testing.T) {
	db := NewMemoryDatabase()
	got, err := db.Fetch("absent")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemoryDatabaseDelete(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Save("k", []byte{9}))
	require.NoError(t, db.Delete("k", []byte{9}))

	got, _ := db.Fetch("k")
	require.Empty(t, got)
}

func TestMemoryDatabaseDeleteMissingIsNoop(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Delete("k", []byte{1}))
}

func TestMemoryDatabaseMoveIsAtomicDemotion(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Save("src", []byte{7}))

	require.NoError(t, db.Move("src", "dst", []byte{7}))

	srcBufs, _ := db.Fetch("src")
	dstBufs, _ := db.Fetch("dst")
	require.Empty(t, srcBufs)
	require.Equal(t, [][]byte{{7}}, dstBufs)
}

func TestMemoryDatabaseMoveIntoExistingDestIsIdempotent(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Save("src", []byte{7}))
	require.NoError(t, db.Save("dst", []byte{7}))

	require.NoError(t, db.Move("src", "dst", []byte{7}))

	dstBufs, _ := db.Fetch("dst")
	require.Len(t, dstBufs, 1)
}
