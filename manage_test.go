package vento

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mowgliph/vento/persist"
)

func TestBackupManagement(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"ListNewestFirst", testListNewestFirst},
		{"ListWithoutSidecar", testListWithoutSidecar},
		{"InfoFindsBackup", testInfoFindsBackup},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"CleanupRetention", testCleanupRetention},
		{"CleanupRejectsZeroKeep", testCleanupRejectsZeroKeep},
		{"CleanupNothingToDo", testCleanupNothingToDo},
		{"CleanupUsesConfiguredRetention", testCleanupUsesConfiguredRetention},
		{"ReplicateWithoutReplica", testReplicateWithoutReplica},
		{"TraversalNamesRejected", testTraversalNamesRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

// createBackups creates n backups with distinct sidecar timestamps so the
// ordering under test is deterministic.
func createBackups(t *testing.T, p *Pipeline, n int) []string {
	t.Helper()

	names := make([]string, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("ordered-backup-%02d", i)
		result, err := p.Create(name)
		require.NoError(t, err, "Failed to create backup %s", name)

		// Sidecar timestamps drive ordering; spread them out explicitly
		// instead of sleeping between creates
		meta, err := p.store.LoadSidecar(result.ArtifactPath)
		require.NoError(t, err)
		meta.CreatedAt = meta.CreatedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, p.store.SaveSidecar(result.ArtifactPath, meta))

		names[i] = name
	}
	return names
}

func testListNewestFirst(t *testing.T) {
	p, _ := newTestPipeline(t)
	names := createBackups(t, p, 3)

	infos, err := p.List()
	require.NoError(t, err)
	require.Len(t, infos, 3)

	// Highest index got the latest timestamp
	require.Equal(t, names[2], infos[0].Name)
	require.Equal(t, names[1], infos[1].Name)
	require.Equal(t, names[0], infos[2].Name)
}

func testListWithoutSidecar(t *testing.T) {
	p, _ := newTestPipeline(t)

	result, err := p.Create("orphaned-backup")
	require.NoError(t, err)

	// Remove the sidecar; the backup must still be listed from stat data
	require.NoError(t, os.Remove(persist.SidecarPath(result.ArtifactPath)))

	infos, err := p.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "orphaned-backup", infos[0].Name)
	require.Nil(t, infos[0].Metadata)
	require.Greater(t, infos[0].Size, int64(0))
	require.False(t, infos[0].CreatedAt().IsZero())
	require.Empty(t, infos[0].Checksum(), "Checksum should be unknown without a sidecar")
}

func testInfoFindsBackup(t *testing.T) {
	p, _ := newTestPipeline(t)

	result, err := p.Create("known-backup")
	require.NoError(t, err)

	info, err := p.Info("known-backup")
	require.NoError(t, err)
	require.Equal(t, result.Checksum, info.Checksum())

	_, err = p.Info("unknown-backup")
	require.True(t, IsKind(err, KindNotFound), "Expected not-found kind, got %v", err)
}

func testDeleteIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Create("deletable-backup")
	require.NoError(t, err)

	removed, err := p.Delete("deletable-backup")
	require.NoError(t, err)
	require.True(t, removed, "First delete should report removal")

	removed, err = p.Delete("deletable-backup")
	require.NoError(t, err, "Second delete of the same backup must not fail")
	require.False(t, removed, "Second delete should report the backup was absent")

	infos, err := p.List()
	require.NoError(t, err)
	require.Empty(t, infos)
}

func testCleanupRetention(t *testing.T) {
	p, _ := newTestPipeline(t)
	names := createBackups(t, p, 5)

	deleted, err := p.CleanupOldBackups(2)
	require.NoError(t, err)
	require.Len(t, deleted, 3, "Expected 5-2 backups deleted")

	infos, err := p.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// The two newest survive
	require.Equal(t, names[4], infos[0].Name)
	require.Equal(t, names[3], infos[1].Name)
}

func testCleanupRejectsZeroKeep(t *testing.T) {
	p, _ := newTestPipeline(t)
	createBackups(t, p, 2)

	for _, keep := range []int{0, -1} {
		_, err := p.CleanupOldBackups(keep)
		require.True(t, IsKind(err, KindValidation),
			"Expected validation kind for keep=%d, got %v", keep, err)
	}

	// Nothing was deleted by the rejected calls
	infos, err := p.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func testCleanupNothingToDo(t *testing.T) {
	p, _ := newTestPipeline(t)
	createBackups(t, p, 2)

	deleted, err := p.CleanupOldBackups(5)
	require.NoError(t, err)
	require.Empty(t, deleted)
}

func testCleanupUsesConfiguredRetention(t *testing.T) {
	p, _ := newTestPipeline(t)
	p.opts.KeepCount = 2

	names := createBackups(t, p, 4)

	deleted, err := p.Cleanup()
	require.NoError(t, err)
	require.Len(t, deleted, 2, "Expected 4-2 backups deleted under the configured retention")

	infos, err := p.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, names[3], infos[0].Name)
	require.Equal(t, names[2], infos[1].Name)
}

// testTraversalNamesRejected ensures name-taking operations refuse names that
// would resolve outside the backup directory, before any path is built from
// them.
func testTraversalNamesRejected(t *testing.T) {
	p, options := newTestPipeline(t)

	// A file one level above the backup directory, where "../victim" would
	// land if the name were joined unchecked.
	outside := filepath.Join(filepath.Dir(options.BackupDir), "victim"+persist.ArtifactExt)
	require.NoError(t, os.WriteFile(outside, []byte("must survive"), 0600))

	for _, name := range []string{"../victim", "nested/../victim", "spaces here", ""} {
		removed, err := p.Delete(name)
		require.True(t, IsKind(err, KindValidation),
			"Delete accepted name %q: %v", name, err)
		require.False(t, removed)

		_, err = p.Restore(name)
		require.True(t, IsKind(err, KindValidation),
			"Restore accepted name %q: %v", name, err)

		_, err = p.Info(name)
		require.True(t, IsKind(err, KindValidation),
			"Info accepted name %q: %v", name, err)

		err = p.Replicate(name)
		require.True(t, IsKind(err, KindValidation),
			"Replicate accepted name %q: %v", name, err)
	}

	data, err := os.ReadFile(outside)
	require.NoError(t, err, "File outside the backup directory was removed")
	require.Equal(t, []byte("must survive"), data)
}

func testReplicateWithoutReplica(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Create("replica-candidate")
	require.NoError(t, err)

	err = p.Replicate("replica-candidate")
	require.True(t, IsKind(err, KindValidation),
		"Expected validation kind without a configured replica, got %v", err)
}
