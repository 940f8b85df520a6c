//go:build integration_test || all_tests

package bodycomp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/2beens/bodytrend/internal/bodycomp/calc"
	"github.com/2beens/bodytrend/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deleteAll(ctx context.Context, repo *Repo) (int64, error) {
	tag, err := repo.db.Exec(ctx, `DELETE FROM entry`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func testRepoSetup(t *testing.T) (*Repo, func()) {
	t.Helper()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	t.Logf("using postres host: %s", host)

	dbPool, err := db.NewDBPool(timeoutCtx, db.NewDBPoolParams{
		DBHost:         host,
		DBPort:         "5432",
		DBName:         "bodytrend",
		TracingEnabled: false,
	})
	require.NoError(t, err)

	return NewRepo(dbPool), func() {
		dbPool.Close()
	}
}

func testRepoEntry(userID, date string) Entry {
	hip := 38.0
	bmi := 22.95
	return Entry{
		UserID:     userID,
		Date:       date,
		Units:      calc.Imperial,
		Weight:     150,
		Height:     68,
		Age:        30,
		Neck:       15,
		Waist:      30,
		Hip:        &hip,
		Femininity: 50,
		BMI:        &bmi,
		Notes:      "integration test entry",
		CreatedAt:  time.Now(),
	}
}

func TestRepo_AddAndList(t *testing.T) {
	repo, shutdown := testRepoSetup(t)
	defer shutdown()

	ctx := context.Background()
	deleted, err := deleteAll(ctx, repo)
	require.NoError(t, err)
	t.Logf("test setup, deleted entries: %d", deleted)

	entries, err := repo.ListAll(ctx, "user-a")
	require.NoError(t, err)
	require.Empty(t, entries)

	added1, err := repo.Add(ctx, testRepoEntry("user-a", "2026-08-28"))
	require.NoError(t, err)
	require.NotNil(t, added1)
	assert.Greater(t, added1.ID, 0)

	added2, err := repo.Add(ctx, testRepoEntry("user-a", "2026-08-30"))
	require.NoError(t, err)
	added3, err := repo.Add(ctx, testRepoEntry("user-a", "2026-08-29"))
	require.NoError(t, err)
	_, err = repo.Add(ctx, testRepoEntry("user-b", "2026-08-30"))
	require.NoError(t, err)

	// newest entry date first, other users not included
	entries, err = repo.ListAll(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, added2.ID, entries[0].ID)
	assert.Equal(t, added3.ID, entries[1].ID)
	assert.Equal(t, added1.ID, entries[2].ID)

	count, err := repo.EntriesCount(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	gotten, err := repo.Get(ctx, "user-a", added1.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", gotten.Date)
	require.NotNil(t, gotten.BMI)
	assert.InDelta(t, 22.95, *gotten.BMI, 0.001)
	require.NotNil(t, gotten.Hip)
	assert.InDelta(t, 38, *gotten.Hip, 0.001)

	// entries are scoped per user
	_, err = repo.Get(ctx, "user-b", added1.ID)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRepo_ListPaged(t *testing.T) {
	repo, shutdown := testRepoSetup(t)
	defer shutdown()

	ctx := context.Background()
	_, err := deleteAll(ctx, repo)
	require.NoError(t, err)

	for _, date := range []string{
		"2026-08-24", "2026-08-25", "2026-08-26", "2026-08-27", "2026-08-28",
	} {
		_, err := repo.Add(ctx, testRepoEntry("user-a", date))
		require.NoError(t, err)
	}

	entries, total, err := repo.List(ctx, ListParams{UserID: "user-a", Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "2026-08-28", entries[0].Date)
	assert.Equal(t, "2026-08-27", entries[1].Date)

	entries, total, err = repo.List(ctx, ListParams{UserID: "user-a", Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "2026-08-26", entries[0].Date)

	_, _, err = repo.List(ctx, ListParams{UserID: "user-a", Page: 0, Size: 2})
	require.Error(t, err)
	_, _, err = repo.List(ctx, ListParams{UserID: "user-a", Page: 1, Size: 0})
	require.Error(t, err)
}
