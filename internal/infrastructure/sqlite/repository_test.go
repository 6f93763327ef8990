package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/macropulse/macropulse/internal/runs/domain"
)

// setupTestStore creates a new DB for testing.
// The DB is closed when the test completes.
func setupTestStore(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunRepository_Save_Insert(t *testing.T) {
	repo := setupTestStore(t).Runs()
	ctx := context.Background()

	run := domain.NewRun("guid-1", "full")
	require.Equal(t, int64(0), run.ID(), "New run should have ID 0")

	require.NoError(t, repo.Save(ctx, run))
	require.Greater(t, run.ID(), int64(0), "Run should have ID assigned after insert")

	found, err := repo.FindByGUID(ctx, "guid-1")
	require.NoError(t, err)
	require.Equal(t, run.ID(), found.ID())
	require.Equal(t, "full", found.Mode())
	require.Equal(t, domain.RunStateRunning, found.State())
	require.Nil(t, found.FinishedAt())
	require.WithinDuration(t, run.StartedAt(), found.StartedAt(), time.Second)
}

func TestRunRepository_Save_Update(t *testing.T) {
	repo := setupTestStore(t).Runs()
	ctx := context.Background()

	run := domain.NewRun("guid-1", "full")
	require.NoError(t, repo.Save(ctx, run))
	originalID := run.ID()

	run.RecordPhase("fetch", 1200*time.Millisecond)
	run.MarkPublished("digest-b", "digest-a")
	run.MarkFailed("distribute", errors.New("push rejected"))
	require.NoError(t, repo.Save(ctx, run))
	require.Equal(t, originalID, run.ID(), "Update keeps the ID")

	found, err := repo.FindByGUID(ctx, "guid-1")
	require.NoError(t, err)
	require.Equal(t, domain.RunStateFailed, found.State())
	require.Equal(t, "digest-b", found.PublishedDigest())
	require.Equal(t, "digest-a", found.PreviousDigest())
	require.Empty(t, found.DistributedDigest())
	require.Equal(t, "distribute", found.FailedPhase())
	require.Equal(t, "push rejected", found.ErrorMessage())
	require.Equal(t, 1200*time.Millisecond, found.Phases()["fetch"])
	require.NotNil(t, found.FinishedAt())
}

func TestRunRepository_FindByGUID_NotFound(t *testing.T) {
	repo := setupTestStore(t).Runs()

	_, err := repo.FindByGUID(context.Background(), "missing")

	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.GUID)
}

func TestRunRepository_DuplicateGUID(t *testing.T) {
	repo := setupTestStore(t).Runs()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.NewRun("dup", "full")))
	require.Error(t, repo.Save(ctx, domain.NewRun("dup", "full")))
}

func TestRunRepository_List(t *testing.T) {
	repo := setupTestStore(t).Runs()
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, repo.Save(ctx, domain.NewRun(fmt.Sprintf("guid-%d", i), "full")))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "guid-4", all[0].GUID(), "newest first")

	limited, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "guid-3", limited[1].GUID())
}

func TestRunRepository_LastDigests(t *testing.T) {
	repo := setupTestStore(t).Runs()
	ctx := context.Background()

	published, err := repo.LastPublishedDigest(ctx)
	require.NoError(t, err)
	require.Empty(t, published)
	distributed, err := repo.LastDistributedDigest(ctx)
	require.NoError(t, err)
	require.Empty(t, distributed)

	// Run1 publishes and distributes A.
	r1 := domain.NewRun("r1", "full")
	r1.MarkPublished("A", "")
	r1.MarkDistributed("A")
	require.NoError(t, repo.Save(ctx, r1))

	// Run2 publishes B but the push fails.
	r2 := domain.NewRun("r2", "full")
	r2.MarkPublished("B", "A")
	r2.MarkFailed("distribute", errors.New("push rejected"))
	require.NoError(t, repo.Save(ctx, r2))

	// Run3 is unchanged and distributes nothing.
	r3 := domain.NewRun("r3", "full")
	r3.MarkUnchanged("B")
	require.NoError(t, repo.Save(ctx, r3))

	published, err = repo.LastPublishedDigest(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", published)
	distributed, err = repo.LastDistributedDigest(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", distributed, "B is pending distribution")
}

func TestSnapshotRepository_SaveListPrune(t *testing.T) {
	repo := setupTestStore(t).Snapshots()
	ctx := context.Background()

	for i := range 5 {
		s := &domain.Snapshot{RunGUID: "r", Type: domain.SnapshotLLMOutput, Payload: []byte(fmt.Sprintf(`{"n":%d}`, i))}
		require.NoError(t, repo.SaveSnapshot(ctx, s))
		require.Greater(t, s.ID, int64(0))
		require.False(t, s.CreatedAt.IsZero())
	}
	require.NoError(t, repo.SaveSnapshot(ctx, &domain.Snapshot{Type: domain.SnapshotNews, Payload: []byte(`[]`)}))

	removed, err := repo.PruneSnapshots(ctx, domain.SnapshotLLMOutput, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)

	kept, err := repo.ListSnapshots(ctx, domain.SnapshotLLMOutput, 0)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	require.JSONEq(t, `{"n":4}`, string(kept[0].Payload), "newest first")
	require.JSONEq(t, `{"n":3}`, string(kept[1].Payload))
	require.Equal(t, "r", kept[0].RunGUID)

	news, err := repo.ListSnapshots(ctx, domain.SnapshotNews, 10)
	require.NoError(t, err)
	require.Len(t, news, 1, "pruning is per type")
	require.Empty(t, news[0].RunGUID)
}

func TestSnapshotRepository_Validation(t *testing.T) {
	repo := setupTestStore(t).Snapshots()
	ctx := context.Background()

	require.Error(t, repo.SaveSnapshot(ctx, &domain.Snapshot{Payload: []byte(`{}`)}))

	s := &domain.Snapshot{Type: domain.SnapshotMarket}
	require.NoError(t, repo.SaveSnapshot(ctx, s))
	got, err := repo.ListSnapshots(ctx, domain.SnapshotMarket, 1)
	require.NoError(t, err)
	require.Equal(t, "null", string(got[0].Payload))
}

// TestSnapshotRepository_PruneProperty checks that pruning keeps exactly the
// newest min(n, keep) snapshots.
func TestSnapshotRepository_PruneProperty(t *testing.T) {
	db := setupTestStore(t)
	repo := db.Snapshots()
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		typ := rapid.StringMatching(`[a-z]{10}`).Draw(t, "type")
		n := rapid.IntRange(0, 15).Draw(t, "n")
		keep := rapid.IntRange(0, 20).Draw(t, "keep")

		var ids []int64
		for i := 0; i < n; i++ {
			s := &domain.Snapshot{Type: typ, Payload: []byte(`{}`)}
			if err := repo.SaveSnapshot(ctx, s); err != nil {
				t.Fatal(err)
			}
			ids = append(ids, s.ID)
		}
		if _, err := repo.PruneSnapshots(ctx, typ, keep); err != nil {
			t.Fatal(err)
		}
		left, err := repo.ListSnapshots(ctx, typ, 0)
		if err != nil {
			t.Fatal(err)
		}
		want := min(n, keep)
		if len(left) != want {
			t.Fatalf("kept %d, want %d", len(left), want)
		}
		for i, s := range left {
			if s.ID != ids[n-1-i] {
				t.Fatalf("kept id %d at %d, want %d", s.ID, i, ids[n-1-i])
			}
		}
		if _, err := db.conn.ExecContext(ctx, "DELETE FROM snapshots WHERE type = ?", typ); err != nil {
			t.Fatal(err)
		}
	})
}
