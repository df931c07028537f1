package progress

import (
	"context"
	"errors"
	"os"
	"testing"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newMemoryStore(t *testing.T) (*Store, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV()
	return NewStore(kv, "onboarding", zaptest.NewLogger(t), nil), kv
}

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	store, _ := newMemoryStore(t)
	snap := store.Load(context.Background(), "u1")
	assert.Equal(t, domain.DefaultSnapshot(), snap)
}

func TestSaveLoadRoundTripWithNestedData(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	data := domain.Data{
		domain.KeySelectedPlan: "team",
		domain.KeyTeamInvites: []any{
			map[string]any{"email": "a@b.com", "role": "member"},
			map[string]any{"email": "c@d.com", "role": "admin"},
		},
		"nested": map[string]any{"seats": float64(3), "tags": []any{"x", "y"}},
	}
	status := domain.StatusInProgress
	index := 3
	store.Save(ctx, "u1", domain.Patch{Status: &status, Index: &index, Data: data})

	snap := store.Load(ctx, "u1")
	assert.Equal(t, domain.StatusInProgress, snap.Status)
	assert.Equal(t, 3, snap.Index)
	assert.Equal(t, data, snap.Data)
}

func TestSaveIsIdempotent(t *testing.T) {
	store, kv := newMemoryStore(t)
	ctx := context.Background()
	patch := domain.Patch{Index: intPtr(2), Data: domain.Data{"a": "b"}}

	store.Save(ctx, "u1", patch)
	first := store.Load(ctx, "u1")
	keys := kv.Len()

	store.Save(ctx, "u1", patch)
	assert.Equal(t, first, store.Load(ctx, "u1"))
	assert.Equal(t, keys, kv.Len())
}

func TestSaveWritesOnlyProvidedFields(t *testing.T) {
	store, _ := newMemoryStore(t)
	ctx := context.Background()

	store.Save(ctx, "u1", domain.DataPatch(domain.Data{"a": "b"}))
	store.Save(ctx, "u1", domain.IndexPatch(4))

	snap := store.Load(ctx, "u1")
	assert.Equal(t, domain.StatusNotStarted, snap.Status)
	assert.Equal(t, 4, snap.Index)
	assert.Equal(t, domain.Data{"a": "b"}, snap.Data)
}

func TestLoadToleratesCorruptValues(t *testing.T) {
	store, kv := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, store.Key("u1", "status"), "paused"))
	require.NoError(t, kv.Set(ctx, store.Key("u1", "step"), "two"))
	require.NoError(t, kv.Set(ctx, store.Key("u1", "data"), `{"selectedPlan":"te`))

	snap := store.Load(ctx, "u1")
	assert.Equal(t, domain.DefaultSnapshot(), snap)

	require.NoError(t, kv.Set(ctx, store.Key("u1", "data"), `null`))
	assert.Equal(t, domain.Data{}, store.Load(ctx, "u1").Data)

	require.NoError(t, kv.Set(ctx, store.Key("u1", "step"), "99"))
	assert.Equal(t, len(domain.Steps)-1, store.Load(ctx, "u1").Index)

	require.NoError(t, kv.Set(ctx, store.Key("u1", "step"), "-4"))
	assert.Equal(t, 0, store.Load(ctx, "u1").Index)
}

func TestClearAndClearProgress(t *testing.T) {
	store, kv := newMemoryStore(t)
	ctx := context.Background()

	status := domain.StatusCompleted
	store.Save(ctx, "u1", domain.Patch{Status: &status, Index: intPtr(5), Data: domain.Data{"a": 1}})
	store.ClearProgress(ctx, "u1")

	_, ok, _ := kv.Get(ctx, store.Key("u1", "step"))
	assert.False(t, ok)
	_, ok, _ = kv.Get(ctx, store.Key("u1", "data"))
	assert.False(t, ok)
	assert.Equal(t, domain.StatusCompleted, store.Load(ctx, "u1").Status)

	store.Clear(ctx, "u1")
	assert.Equal(t, 0, kv.Len())
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage disabled")
}
func (brokenKV) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (brokenKV) Delete(context.Context, ...string) error   { return errors.New("storage disabled") }

func TestBackendFailuresAreSwallowed(t *testing.T) {
	store := NewStore(brokenKV{}, "onboarding", zaptest.NewLogger(t), nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		store.Save(ctx, "u1", domain.StatusPatch(domain.StatusInProgress))
		store.Clear(ctx, "u1")
	})
	assert.Equal(t, domain.DefaultSnapshot(), store.Load(ctx, "u1"))
}

func TestSQLKVRoundTrip(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&Entry{}))

	store := NewStore(NewSQLKV(conn), "onboarding", zaptest.NewLogger(t), nil)
	ctx := context.Background()

	status := domain.StatusDeferred
	store.Save(ctx, "u9", domain.Patch{Status: &status, Index: intPtr(1), Data: domain.Data{"selectedPlan": "team"}})
	store.Save(ctx, "u9", domain.IndexPatch(2))

	snap := store.Load(ctx, "u9")
	assert.Equal(t, domain.StatusDeferred, snap.Status)
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, "team", snap.Data.String("selectedPlan"))

	store.Clear(ctx, "u9")
	var count int64
	require.NoError(t, conn.Model(&Entry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRedisKVRoundTrip(t *testing.T) {
	addr := os.Getenv("LAUNCHPAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LAUNCHPAD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(NewRedisKV(client, 0), "onboarding-test", zaptest.NewLogger(t), nil)
	ctx := context.Background()
	t.Cleanup(func() { store.Clear(ctx, "u1") })

	store.Save(ctx, "u1", domain.Patch{Index: intPtr(2), Data: domain.Data{"a": "b"}})
	snap := store.Load(ctx, "u1")
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, domain.Data{"a": "b"}, snap.Data)
}

func intPtr(v int) *int { return &v }
