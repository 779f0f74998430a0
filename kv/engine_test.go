package kv

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutGetRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Put(Manifests, "k1", []byte("hello world")))

	got, err := e.Get(Manifests, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Get(Manifests, "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBatchPutIsAtomicallyVisible(t *testing.T) {
	e := openTestEngine(t)
	items := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
	}
	require.NoError(t, e.BatchPut(Sequences, items))

	for k, v := range items {
		got, err := e.Get(Sequences, k)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestExistsUsesBloomFastPath(t *testing.T) {
	e := openTestEngine(t)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("chunk-%d", i)
		require.NoError(t, e.Put(Manifests, key, []byte("payload")))
	}
	for i := 0; i < 200; i++ {
		ok, err := e.Exists(Manifests, fmt.Sprintf("chunk-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := e.Exists(Manifests, "never-inserted")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesKey(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Put(Indices, "k", []byte("v")))
	require.NoError(t, e.Delete(Indices, "k"))
	_, err := e.Get(Indices, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListKeysPrefix(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Put(Indices, "acc:P1", []byte("x")))
	require.NoError(t, e.Put(Indices, "acc:P2", []byte("x")))
	require.NoError(t, e.Put(Indices, "tax:9606", []byte("x")))

	keys, err := e.ListKeys(Indices, "acc:")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"acc:P1", "acc:P2"}, keys)
}

func TestCompressedFamilyRoundTrips(t *testing.T) {
	e := openTestEngine(t)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	require.NoError(t, e.Put(Sequences, "big", payload))
	got, err := e.Get(Sequences, "big")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestBackupListRestoreVerify(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Put(Manifests, "k", []byte("v")))

	backupDir := filepath.Join(t.TempDir(), "backups")
	id, err := e.CreateBackup(backupDir)
	require.NoError(t, err)
	require.NoError(t, VerifyBackup(backupDir, id))

	backups, err := ListBackups(backupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Equal(t, id, backups[0].ID)

	target := filepath.Join(t.TempDir(), "restored.db")
	restoredID, err := RestoreFromLatest(backupDir, target)
	require.NoError(t, err)
	require.Equal(t, id, restoredID)
}

func TestCompactPreservesData(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Put(Manifests, "keep", []byte("still here")))
	require.NoError(t, e.Delete(Manifests, "keep"))
	require.NoError(t, e.Put(Manifests, "survivor", []byte("yes")))

	require.NoError(t, e.Flush())
	require.NoError(t, e.Compact())

	got, err := e.Get(Manifests, "survivor")
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), got)

	_, err = e.Get(Manifests, "keep")
	require.ErrorIs(t, err, ErrNotFound)
}
