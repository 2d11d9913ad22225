package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/punch-attendance-api/internal/dto"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
)

type locationRepoStub struct {
	records     []models.LocationRecord
	latestCalls int
	lastFilter  models.LocationFilter
}

func (r *locationRepoStub) Create(ctx context.Context, record *models.LocationRecord) error {
	record.ID = "loc-" + record.RecordedAt.Format("150405.000")
	r.records = append(r.records, *record)
	return nil
}

func (r *locationRepoStub) Latest(ctx context.Context, studentID string) (*models.LocationRecord, error) {
	r.latestCalls++
	var latest *models.LocationRecord
	for i := range r.records {
		rec := r.records[i]
		if rec.StudentID != studentID {
			continue
		}
		if latest == nil || rec.RecordedAt.After(latest.RecordedAt) {
			latest = &rec
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (r *locationRepoStub) History(ctx context.Context, filter models.LocationFilter) ([]models.LocationRecord, error) {
	r.lastFilter = filter
	var out []models.LocationRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].StudentID == filter.StudentID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func newLocationServiceForTest(t *testing.T) (*LocationService, *locationRepoStub, *memoryCacheRepo) {
	t.Helper()
	repo := &locationRepoStub{}
	cacheRepo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	svc := NewLocationService(repo, studentDirectoryStub(), cache, time.Minute, metrics, nil, nil)
	current := punchTestNow
	svc.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return svc, repo, cacheRepo
}

func TestLocationServiceRecordLocation(t *testing.T) {
	svc, repo, _ := newLocationServiceForTest(t)
	accuracy := 12.5

	record, err := svc.RecordLocation(context.Background(), "student-1", -6.2, 106.8, &accuracy)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "student-1", record.StudentID)
	assert.Equal(t, &accuracy, record.Accuracy)
	assert.Equal(t, punchTestNow.Add(time.Second), record.RecordedAt)
	assert.Len(t, repo.records, 1)
}

func TestLocationServiceRecordLocationValidation(t *testing.T) {
	svc, repo, _ := newLocationServiceForTest(t)
	ctx := context.Background()
	negative := -1.0

	_, err := svc.RecordLocation(ctx, "student-1", -90.0001, 0, nil)
	requireAppError(t, err, appErrors.ErrValidation, "latitude")

	_, err = svc.RecordLocation(ctx, "student-1", 0, 180.5, nil)
	requireAppError(t, err, appErrors.ErrValidation, "longitude")

	_, err = svc.RecordLocation(ctx, "student-1", 0, 0, &negative)
	requireAppError(t, err, appErrors.ErrValidation, "accuracy")

	_, err = svc.RecordLocation(ctx, "ghost", 0, 0, nil)
	requireAppError(t, err, appErrors.ErrNotFound, "")

	_, err = svc.RecordForStudent(ctx, "student-1", dto.RecordLocationRequest{})
	requireAppError(t, err, appErrors.ErrValidation, "latitude")

	assert.Empty(t, repo.records)
}

func TestLocationServiceLatestUsesCacheAndInvalidatesOnWrite(t *testing.T) {
	svc, repo, cacheRepo := newLocationServiceForTest(t)
	ctx := context.Background()
	actor := &models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor}

	_, _, err := svc.Latest(ctx, "student-1", actor)
	requireAppError(t, err, appErrors.ErrNotFound, "")

	_, err = svc.RecordLocation(ctx, "student-1", 1, 1, nil)
	require.NoError(t, err)

	first, hit, err := svc.Latest(ctx, "student-1", actor)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, first.Latitude)
	assert.Contains(t, cacheRepo.entries, "location:latest:student-1")

	cached, hit, err := svc.Latest(ctx, "student-1", actor)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.ID, cached.ID)
	assert.Equal(t, 2, repo.latestCalls)

	_, err = svc.RecordLocation(ctx, "student-1", 2, 2, nil)
	require.NoError(t, err)
	assert.NotContains(t, cacheRepo.entries, "location:latest:student-1")

	latest, _, err := svc.Latest(ctx, "student-1", actor)
	require.NoError(t, err)
	assert.Equal(t, 2.0, latest.Latitude)
	assert.Equal(t, 3, repo.latestCalls)
}

func TestLocationServiceWorksWithoutCache(t *testing.T) {
	repo := &locationRepoStub{}
	svc := NewLocationService(repo, studentDirectoryStub(), nil, 0, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.RecordLocation(ctx, "student-1", 1, 1, nil)
	require.NoError(t, err)
	latest, _, err := svc.Latest(ctx, "student-1", &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, 1.0, latest.Longitude)
}

func TestLocationServiceHistoryScope(t *testing.T) {
	svc, repo, _ := newLocationServiceForTest(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.RecordLocation(ctx, "student-1", float64(i), 0, nil)
		require.NoError(t, err)
	}

	records, err := svc.History(ctx, dto.LocationHistoryQuery{StudentID: "student-1", Limit: 10}, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].RecordedAt.After(records[2].RecordedAt))
	assert.Equal(t, 10, repo.lastFilter.Limit)

	_, err = svc.History(ctx, dto.LocationHistoryQuery{StudentID: "student-1"}, &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent})
	requireAppError(t, err, appErrors.ErrForbidden, "")

	from := punchTestNow.Add(time.Hour)
	to := punchTestNow
	_, err = svc.History(ctx, dto.LocationHistoryQuery{StudentID: "student-1", From: &from, To: &to}, &models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor})
	requireAppError(t, err, appErrors.ErrValidation, "from")
}
