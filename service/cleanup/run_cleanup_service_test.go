package cleanup

import (
	"context"
	"coverage-service/service/config"
	"coverage-service/service/distributed_lock"
	"coverage-service/service/models"
	"coverage-service/testutil"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*RunCleanupService, *gorm.DB, distributed_lock.DistributedLock) {
	db := testutil.NewTestDBT(t)
	lock := distributed_lock.NewLocalLock()
	svc := NewRunCleanupService(db, config.NewConfigService(db), lock, nil)
	svc.now = func() time.Time { return testNow }
	return svc, db, lock
}

// createRuns 为报价创建运行，第i条创建于 base 之后 i 分钟
func createRuns(t *testing.T, db *gorm.DB, quoteID string, base time.Time, n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		run := models.AssignmentRun{
			ID:             fmt.Sprintf("%s-run-%02d", quoteID, i),
			QuoteID:        quoteID,
			Mode:           "threshold",
			Recommendation: "Cigna_PPO",
			Confidence:     1,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&run).Error)
		ids[i] = run.ID
	}
	return ids
}

func remainingRuns(t *testing.T, db *gorm.DB, quoteID string) []string {
	var ids []string
	require.NoError(t, db.Model(&models.AssignmentRun{}).Where("quote_id = ?", quoteID).Order("id").Pluck("id", &ids).Error)
	return ids
}

func TestPruneRuns_KeepsLatestPerQuote(t *testing.T) {
	svc, db, _ := newTestService(t)
	old := testNow.AddDate(0, 0, -400)

	a := createRuns(t, db, "quote-a", old, 7)
	b := createRuns(t, db, "quote-b", old, 2)

	deleted, err := svc.PruneRuns(context.Background(), 180, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, a[2:], remainingRuns(t, db, "quote-a"), "保留最新5条")
	assert.Equal(t, b, remainingRuns(t, db, "quote-b"))
}

func TestPruneRuns_RecentRunsSurvive(t *testing.T) {
	svc, db, _ := newTestService(t)

	ids := createRuns(t, db, "quote-a", testNow.AddDate(0, 0, -10), 8)

	deleted, err := svc.PruneRuns(context.Background(), 180, 1)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, ids, remainingRuns(t, db, "quote-a"))
}

func TestPruneRuns_LatestNeverDeleted(t *testing.T) {
	svc, db, _ := newTestService(t)

	ids := createRuns(t, db, "quote-a", testNow.AddDate(-2, 0, 0), 3)

	_, err := svc.PruneRuns(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], remainingRuns(t, db, "quote-a"))
}

func TestCleanupExpiredRuns_UsesSystemConfig(t *testing.T) {
	svc, db, _ := newTestService(t)
	require.NoError(t, svc.configService.SetSystemConfig(config.ConfigKeyKeepLatestRuns, "2", ""))

	createRuns(t, db, "quote-a", testNow.AddDate(0, 0, -400), 4)

	deleted, err := svc.CleanupExpiredRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestCleanupExpiredRuns_SkipsWhenLocked(t *testing.T) {
	svc, db, lock := newTestService(t)
	createRuns(t, db, "quote-a", testNow.AddDate(0, 0, -400), 8)

	ok, err := lock.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := svc.CleanupExpiredRuns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, remainingRuns(t, db, "quote-a"), 8)
}

func TestStartStopScheduledCleanup(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.StartScheduledCleanup())
	assert.Error(t, svc.StartScheduledCleanup())
	svc.StopScheduledCleanup()
	assert.False(t, svc.started)
}
