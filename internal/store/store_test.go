package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"example.com/fittrack/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

var testReq = domain.Request{TenantID: "tenant-1", UserID: "user-1", Token: "t"}

type fakeSource struct {
	calls   atomic.Int32
	release chan struct{}
	records []domain.ActivityRecord
	err     error
}

func (f *fakeSource) ListActivities(ctx context.Context, _ domain.Request) ([]domain.ActivityRecord, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func sampleRecords() []domain.ActivityRecord {
	return []domain.ActivityRecord{
		{ID: "a1", Type: domain.ActivityRunning, Duration: 30, CaloriesBurned: 200, CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "a2", Type: domain.ActivityWalking, Duration: 20, CaloriesBurned: 150, CreatedAt: time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)},
	}
}

func TestActivitiesCachesResult(t *testing.T) {
	source := &fakeSource{records: sampleRecords()}
	s := New(source, NewMemoryBackend(0), time.Minute)
	defer s.Close()

	first, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	second, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)

	require.Equal(t, int32(1), source.calls.Load())
	require.Len(t, second, 2)
	require.Equal(t, first[0].ID, second[0].ID)
	require.True(t, first[0].CreatedAt.Equal(second[0].CreatedAt))
}

func TestActivitiesReturnsCallerOwnedSlice(t *testing.T) {
	source := &fakeSource{records: sampleRecords()}
	s := New(source, NewMemoryBackend(0), time.Minute)

	records, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	records[0].ID = "mutated"
	require.Equal(t, "a1", source.records[0].ID)
}

func TestActivitiesDeduplicatesConcurrentMisses(t *testing.T) {
	source := &fakeSource{records: sampleRecords(), release: make(chan struct{})}
	s := New(source, NewMemoryBackend(0), time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]domain.ActivityRecord, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Activities(context.Background(), testReq)
		}(i)
	}

	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	require.Equal(t, int32(1), source.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 2)
	}
}

func TestActivitiesFetchErrorIsNotCached(t *testing.T) {
	source := &fakeSource{err: errors.New("gateway down")}
	s := New(source, NewMemoryBackend(0), time.Minute)

	_, err := s.Activities(context.Background(), testReq)
	require.ErrorContains(t, err, "gateway down")

	source.err = nil
	source.records = sampleRecords()
	records, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int32(2), source.calls.Load())
}

func TestActivitiesRequiresUser(t *testing.T) {
	s := New(&fakeSource{}, NewMemoryBackend(0), time.Minute)
	_, err := s.Activities(context.Background(), domain.Request{TenantID: "tenant-1"})
	require.ErrorIs(t, err, domain.ErrMissingUser)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	source := &fakeSource{records: sampleRecords()}
	s := New(source, NewMemoryBackend(0), time.Minute)

	_, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.NoError(t, s.Invalidate(context.Background(), testReq.TenantID, testReq.UserID))

	source.records = append(sampleRecords(), domain.ActivityRecord{ID: "a3", Duration: 10})
	records, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, int32(2), source.calls.Load())
}

func TestInvalidateDuringFetchSkipsCacheWrite(t *testing.T) {
	source := &fakeSource{records: sampleRecords(), release: make(chan struct{})}
	backend := NewMemoryBackend(0)
	s := New(source, backend, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Activities(context.Background(), testReq)
	}()
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Invalidate(context.Background(), testReq.TenantID, testReq.UserID))
	close(source.release)
	<-done

	_, err := backend.Get(context.Background(), Key(testReq.TenantID, testReq.UserID))
	require.ErrorIs(t, err, ErrNotFound)
}

// gatedBackend parks the first Set until release is closed.
type gatedBackend struct {
	*MemoryBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.MemoryBackend.Set(ctx, key, value, ttl)
}

func TestInvalidateDuringCacheWriteDropsStaleEntry(t *testing.T) {
	source := &fakeSource{records: sampleRecords()}
	backend := &gatedBackend{
		MemoryBackend: NewMemoryBackend(0),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	s := New(source, backend, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Activities(context.Background(), testReq)
	}()
	<-backend.entered

	source.records = append(sampleRecords(), domain.ActivityRecord{ID: "a3", Duration: 10})
	require.NoError(t, s.Invalidate(context.Background(), testReq.TenantID, testReq.UserID))
	close(backend.release)
	<-done

	records, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, int32(2), source.calls.Load())
}

func TestKeysAreScopedByTenant(t *testing.T) {
	require.Equal(t, "activities::tenant-1::user-1", Key("tenant-1", "user-1"))
	require.NotEqual(t, Key("a", "user-1"), Key("b", "user-1"))
}

func TestMemoryBackendRoundTrip(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()

	_, err := backend.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, backend.Set(ctx, "k", []byte("v"), 500*time.Millisecond))
	value, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)

	require.NoError(t, backend.Delete(ctx, "k"))
	_, err = backend.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExpireSeconds(t *testing.T) {
	require.Equal(t, 1, expireSeconds(0))
	require.Equal(t, 1, expireSeconds(200*time.Millisecond))
	require.Equal(t, 60, expireSeconds(time.Minute))
	require.Equal(t, 2, expireSeconds(1500*time.Millisecond))
}

func TestStoreWithRedisBackend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	key := Key(testReq.TenantID, testReq.UserID)
	payload, err := json.Marshal(sampleRecords())
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(redis.Nil)
	mock.ExpectSet(key, payload, time.Minute).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(payload))
	mock.ExpectDel(key).SetVal(1)

	source := &fakeSource{records: sampleRecords()}
	s := New(source, NewRedisBackend(db), time.Minute)

	records, err := s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = s.Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int32(1), source.calls.Load())

	require.NoError(t, s.Invalidate(context.Background(), testReq.TenantID, testReq.UserID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBackendErrorFallsThroughToSource(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	key := Key(testReq.TenantID, testReq.UserID)
	payload, err := json.Marshal(sampleRecords())
	require.NoError(t, err)

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	mock.ExpectSet(key, payload, time.Minute).SetErr(errors.New("connection refused"))

	source := &fakeSource{records: sampleRecords()}
	records, err := New(source, NewRedisBackend(db), time.Minute).Activities(context.Background(), testReq)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidationOnlyStore(t *testing.T) {
	backend := NewMemoryBackend(0)
	ctx := context.Background()
	key := Key(testReq.TenantID, testReq.UserID)
	require.NoError(t, backend.Set(ctx, key, []byte(`[]`), time.Minute))

	s := New(nil, backend, time.Minute)
	require.NoError(t, s.Invalidate(ctx, testReq.TenantID, testReq.UserID))
	_, err := backend.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Activities(ctx, testReq)
	require.ErrorIs(t, err, ErrNoSource)
}
