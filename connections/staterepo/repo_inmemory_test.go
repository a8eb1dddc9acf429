package staterepo_test

import (
	"testing"
	"time"

	"github.com/secureview-io/secureview-auth/connections/staterepo"
	"github.com/stretchr/testify/require"
)

func pendingAt(created time.Time) *staterepo.PendingAuth {
	return &staterepo.PendingAuth{
		Provider:     "github",
		CodeVerifier: "verifier-1",
		Params:       map[string]string{"k": "v"},
		CreatedAt:    created,
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	repo := staterepo.NewInMemoryRepo()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert("state-1", pendingAt(now)))

	pending, err := repo.Consume("state-1")
	require.NoError(t, err)
	require.Equal(t, "github", pending.Provider)
	require.Equal(t, "verifier-1", pending.CodeVerifier)

	_, err = repo.Consume("state-1")
	require.ErrorIs(t, err, staterepo.ErrStateNotFound)
}

func TestConsumeUnknownState(t *testing.T) {
	repo := staterepo.NewInMemoryRepo()
	_, err := repo.Consume("never-issued")
	require.ErrorIs(t, err, staterepo.ErrStateNotFound)
	_, err = repo.Consume("")
	require.ErrorIs(t, err, staterepo.ErrStateNotFound)
}

func TestUpsertValidation(t *testing.T) {
	repo := staterepo.NewInMemoryRepo()
	require.Error(t, repo.Upsert("", pendingAt(time.Now())))
	require.Error(t, repo.Upsert("state-1", nil))
}

func TestUpsertCopiesParams(t *testing.T) {
	repo := staterepo.NewInMemoryRepo()
	pending := pendingAt(time.Now())
	require.NoError(t, repo.Upsert("state-1", pending))

	pending.Params["k"] = "mutated"

	got, err := repo.Consume("state-1")
	require.NoError(t, err)
	require.Equal(t, "v", got.Params["k"])
}

func TestDeleteExpired(t *testing.T) {
	repo := staterepo.NewInMemoryRepo()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert("old", pendingAt(now.Add(-20*time.Minute))))
	require.NoError(t, repo.Upsert("fresh", pendingAt(now.Add(-time.Minute))))

	require.NoError(t, repo.DeleteExpired(now.Add(-15*time.Minute)))

	_, err := repo.Consume("old")
	require.ErrorIs(t, err, staterepo.ErrStateNotFound)
	_, err = repo.Consume("fresh")
	require.NoError(t, err)
}
