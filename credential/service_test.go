package credential

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, c *Credential) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockStore) ListByStudent(ctx context.Context, wallet string) ([]Credential, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).([]Credential), args.Error(1)
}

func (m *mockStore) ListByIssuer(ctx context.Context, wallet string) ([]Credential, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).([]Credential), args.Error(1)
}

func (m *mockStore) GetByHash(ctx context.Context, hash string) (*Credential, error) {
	args := m.Called(ctx, hash)
	c, _ := args.Get(0).(*Credential)
	return c, args.Error(1)
}

func (m *mockStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	args := m.Called(ctx, key, dst)
	if fill, ok := args.Get(2).(*Credential); ok && fill != nil {
		*dst.(*Credential) = *fill
	}
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, key string, v any) error {
	return m.Called(ctx, key, v).Error(0)
}

type countingObserver struct {
	issued   int
	found    int
	notFound int
}

func (o *countingObserver) ObserveIssued() { o.issued++ }

func (o *countingObserver) ObserveVerification(found bool) {
	if found {
		o.found++
	} else {
		o.notFound++
	}
}

func fixedClock() time.Time { return issuedAt }

func TestIssue(t *testing.T) {
	store := new(mockStore)
	obs := &countingObserver{}
	svc := NewService(store, WithClock(fixedClock), WithObserver(obs))

	store.On("Create", mock.Anything, mock.MatchedBy(func(c *Credential) bool {
		return c.StudentWallet == "0xabc0000000000000000000000000000000000001" &&
			c.Status == StatusIssued &&
			c.Metadata != nil
	})).Return(nil)

	c, err := svc.Issue(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, Hash(sampleRequest(), issuedAt), c.Hash)
	assert.Equal(t, issuedAt, c.CreatedAt)
	assert.Equal(t, 1, obs.issued)
	store.AssertExpectations(t)
}

func TestIssueMissingFieldsNeverReachesStore(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store)

	_, err := svc.Issue(context.Background(), IssueRequest{StudentWallet: "0x1"})
	assert.True(t, errors.Is(err, ErrMissingFields))
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIssueStoreError(t *testing.T) {
	store := new(mockStore)
	obs := &countingObserver{}
	svc := NewService(store, WithObserver(obs))
	store.On("Create", mock.Anything, mock.Anything).Return(ErrDuplicate)

	_, err := svc.Issue(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 0, obs.issued)
}

func TestListLowercasesWallet(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store)
	want := []Credential{{ID: "1"}}

	store.On("ListByStudent", mock.Anything, "0xabc").Return(want, nil)
	store.On("ListByIssuer", mock.Anything, "0xdef").Return([]Credential{}, nil)

	got, err := svc.ListByStudent(context.Background(), " 0xABC ")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = svc.ListByIssuer(context.Background(), "0xDeF")
	require.NoError(t, err)
	assert.Empty(t, got)
	store.AssertExpectations(t)
}

func TestVerifyCacheHit(t *testing.T) {
	store := new(mockStore)
	cache := new(mockCache)
	obs := &countingObserver{}
	svc := NewService(store, WithCache(cache), WithObserver(obs))

	hit := &Credential{ID: "cached", Hash: "0xaa"}
	cache.On("Get", mock.Anything, "0xaa", mock.Anything).Return(true, nil, hit)

	c, err := svc.Verify(context.Background(), "0xaa")
	require.NoError(t, err)
	assert.Equal(t, "cached", c.ID)
	assert.Equal(t, 1, obs.found)
	store.AssertNotCalled(t, "GetByHash", mock.Anything, mock.Anything)
}

func TestVerifyCacheMissFillsCache(t *testing.T) {
	store := new(mockStore)
	cache := new(mockCache)
	svc := NewService(store, WithCache(cache))

	found := &Credential{ID: "db", Hash: "0xbb"}
	cache.On("Get", mock.Anything, "0xbb", mock.Anything).Return(false, nil, nil)
	store.On("GetByHash", mock.Anything, "0xbb").Return(found, nil)
	cache.On("Set", mock.Anything, "0xbb", found).Return(nil)

	c, err := svc.Verify(context.Background(), "0xbb")
	require.NoError(t, err)
	assert.Equal(t, "db", c.ID)
	cache.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestVerifyCacheErrorsFallThrough(t *testing.T) {
	store := new(mockStore)
	cache := new(mockCache)
	svc := NewService(store, WithCache(cache))

	found := &Credential{ID: "db", Hash: "0xcc"}
	cache.On("Get", mock.Anything, "0xcc", mock.Anything).Return(false, errors.New("redis down"), nil)
	store.On("GetByHash", mock.Anything, "0xcc").Return(found, nil)
	cache.On("Set", mock.Anything, "0xcc", found).Return(errors.New("redis down"))

	c, err := svc.Verify(context.Background(), "0xcc")
	require.NoError(t, err)
	assert.Equal(t, "db", c.ID)
}

func TestVerifyNotFound(t *testing.T) {
	store := new(mockStore)
	obs := &countingObserver{}
	svc := NewService(store, WithObserver(obs))
	store.On("GetByHash", mock.Anything, "0xdd").Return(nil, ErrNotFound)

	_, err := svc.Verify(context.Background(), "0xdd")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, obs.notFound)

	_, err = svc.Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceOverMemoryStore(t *testing.T) {
	ctx := context.Background()
	clock := issuedAt
	svc := NewService(NewMemoryStore(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first, err := svc.Issue(ctx, sampleRequest())
	require.NoError(t, err)
	second, err := svc.Issue(ctx, sampleRequest())
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)

	list, err := svc.ListByStudent(ctx, sampleRequest().StudentWallet)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	got, err := svc.Verify(ctx, first.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStoreRejectsDuplicateHash(t *testing.T) {
	m := NewMemoryStore()
	c := &Credential{ID: "1", Hash: "0x01"}

	require.NoError(t, m.Create(context.Background(), c))
	assert.ErrorIs(t, m.Create(context.Background(), c), ErrDuplicate)
}

func TestMemoryStoreDetachesMetadata(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), WithClock(func() time.Time { return issuedAt }))

	req := sampleRequest()
	req.Metadata = map[string]any{"gpa": "3.9"}
	issued, err := svc.Issue(ctx, req)
	require.NoError(t, err)

	req.Metadata["gpa"] = "4.0"
	issued.Metadata["honours"] = true

	got, err := svc.Verify(ctx, issued.Hash)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"gpa": "3.9"}, got.Metadata)

	got.Metadata["gpa"] = "1.0"
	list, err := svc.ListByStudent(ctx, req.StudentWallet)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "3.9", list[0].Metadata["gpa"])
}
