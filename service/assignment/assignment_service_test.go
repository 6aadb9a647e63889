package assignment

import (
	"context"
	"coverage-service/service/coverage"
	"coverage-service/service/event"
	"coverage-service/service/models"
	"coverage-service/service/monitoring"
	"coverage-service/service/network"
	"coverage-service/service/quote"
	"coverage-service/testutil"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type AssignmentServiceSuite struct {
	suite.Suite
	db        *gorm.DB
	factory   *testutil.TestDataFactory
	publisher *testutil.MockPublisher
	service   *Service
	clock     time.Time
}

func (s *AssignmentServiceSuite) SetupTest() {
	s.db = testutil.NewTestDBT(s.T())
	s.factory = testutil.NewTestDataFactory(s.db)
	s.publisher = &testutil.MockPublisher{}

	networks := network.NewService(s.db)
	quotes := quote.NewService(s.db, networks)
	metrics := monitoring.NewAssignmentMetrics(prometheus.NewRegistry())
	s.service = NewService(s.db, quotes, networks, s.publisher, metrics)

	s.clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time {
		s.clock = s.clock.Add(time.Second)
		return s.clock
	}
}

func TestAssignmentServiceSuite(t *testing.T) {
	suite.Run(t, new(AssignmentServiceSuite))
}

func (s *AssignmentServiceSuite) TestRun_PersistsAndPublishes() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011", "63011", "63011", "63011", "63011", "63011", "63011", "63011", "63011", "10001")

	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.MatchedBy(func(ev *event.AssignmentRunEvent) bool {
		return ev.QuoteID == q.ID && ev.Recommendation == "Cigna_PPO" && !ev.FallbackUsed &&
			ev.Type == event.EventTypeAssignmentRunCreated
	})).Return(nil).Once()

	run, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)
	s.NotEmpty(run.ID)
	s.Equal("Cigna_PPO", run.Recommendation)
	s.InDelta(0.9, run.Confidence, 1e-9)
	s.Equal("threshold", run.Mode)

	stored, err := s.service.LatestRun(context.Background(), q.ID)
	s.Require().NoError(err)
	s.Equal(run.ID, stored.ID)
	s.Equal("Cigna_PPO", stored.Result.GroupSummary.PrimaryNetwork)
	s.Len(stored.Result.MemberAssignments, 10)
	s.InDelta(1.0, stored.Result.CoverageByNetwork["Cigna_PPO"]+stored.Result.CoverageByNetwork["Aetna_HMO"], 1e-9)
	s.publisher.AssertExpectations(s.T())
}

func (s *AssignmentServiceSuite) TestRun_EmptyCensusPersistsNothing() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()

	_, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().Error(err)
	s.True(errors.Is(err, coverage.ErrInsufficientData))
	s.Contains(err.Error(), "cannot assign network without member data")

	var count int64
	s.db.Model(&models.AssignmentRun{}).Count(&count)
	s.Zero(count)
	s.publisher.AssertNotCalled(s.T(), "PublishAssignmentRun", mock.Anything, mock.Anything)
}

func (s *AssignmentServiceSuite) TestRun_AllRowsUnmapped() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "99999", "")

	_, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.ErrorIs(err, coverage.ErrInsufficientData)
}

func (s *AssignmentServiceSuite) TestRun_SettingsNotConfigured() {
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011")

	_, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.ErrorIs(err, network.ErrSettingsNotConfigured)
}

func (s *AssignmentServiceSuite) TestRun_DanglingDefaultNetworkReturnsError() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011")
	// 模拟默认网络已被删除后的设置行
	s.Require().NoError(s.db.Exec("UPDATE network_settings SET default_network = ?", "Ghost_PPO").Error)

	var err error
	s.NotPanics(func() {
		_, err = s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	})
	s.ErrorIs(err, network.ErrSettingsInvalid)

	var count int64
	s.db.Model(&models.AssignmentRun{}).Count(&count)
	s.Zero(count)
	s.publisher.AssertNotCalled(s.T(), "PublishAssignmentRun", mock.Anything, mock.Anything)
}

func (s *AssignmentServiceSuite) TestRun_UnknownQuote() {
	_, err := s.service.Run(context.Background(), "missing", coverage.ResultKindThreshold)
	s.ErrorIs(err, quote.ErrQuoteNotFound)
}

func (s *AssignmentServiceSuite) TestRun_PublishFailureDoesNotFailRun() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "10001")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	run, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)
	// 唯一匹配为Aetna_HMO，覆盖率100%达到阈值
	s.Equal("Aetna_HMO", run.Recommendation)
}

func (s *AssignmentServiceSuite) TestRun_FallbackAndInvalidRows() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011", "10001", "10001", "00000")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)

	run, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)

	summary := run.Result.GroupSummary
	s.True(summary.FallbackUsed)
	s.True(summary.ReviewRequired)
	s.Equal("Cigna_PPO", summary.PrimaryNetwork)
	s.Equal(1.0, summary.CoveragePercentage)
	s.Equal(3, summary.TotalMembers)
	s.Require().Len(summary.InvalidRows, 1)
	s.Equal(4, summary.InvalidRows[0].Row)
	s.Contains(run.Rationale, "; 1 row had unmapped ZIP codes and need review")
}

func (s *AssignmentServiceSuite) TestRun_RankedModeRoundTrip() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011", "10001", "10001", "10001")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)

	_, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindRanked)
	s.Require().NoError(err)

	stored, err := s.service.LatestRun(context.Background(), q.ID)
	s.Require().NoError(err)
	s.Equal("ranked", stored.Mode)

	ranked, ok := stored.ToCoverage().Result.Ranked()
	s.Require().True(ok)
	s.Require().Len(ranked.RankedContracts, 2)
	s.Equal("Aetna_HMO", ranked.RankedContracts[0].Name)
	s.Equal(75, ranked.RankedContracts[0].Score)
	s.Equal(coverage.FitPartial, ranked.RankedContracts[0].Fit)
}

func (s *AssignmentServiceSuite) TestListRuns_AppendOnlyNewestFirst() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)

	first, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)
	second, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindRanked)
	s.Require().NoError(err)

	runs, err := s.service.ListRuns(context.Background(), q.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal(second.ID, runs[0].ID)
	s.Equal(first.ID, runs[1].ID)

	runs, err = s.service.ListRuns(context.Background(), q.ID, 1)
	s.Require().NoError(err)
	s.Len(runs, 1)
}

func (s *AssignmentServiceSuite) TestRun_ConcurrentRunsForSameQuote() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011", "10001")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)

	var clockMu sync.Mutex
	s.service.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		s.clock = s.clock.Add(time.Second)
		return s.clock
	}

	var wg sync.WaitGroup
	runs := make([]*models.AssignmentRun, 2)
	errs := make([]error, 2)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i], errs[i] = s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
		}(i)
	}
	wg.Wait()

	for i := range runs {
		s.Require().NoError(errs[i])
	}
	s.NotEqual(runs[0].ID, runs[1].ID)

	listed, err := s.service.ListRuns(context.Background(), q.ID, 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)

	newer := runs[0]
	if runs[1].CreatedAt.After(newer.CreatedAt) {
		newer = runs[1]
	}
	latest, err := s.service.LatestRun(context.Background(), q.ID)
	s.Require().NoError(err)
	s.Equal(newer.ID, latest.ID)
	s.Equal(newer.ID, listed[0].ID)
}

func (s *AssignmentServiceSuite) TestLatestRun_SameTimestampBrokenByID() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()
	s.factory.CreateCensus(q.ID, "63011")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return fixed }

	first, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)
	second, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)

	want := first.ID
	if second.ID > want {
		want = second.ID
	}
	latest, err := s.service.LatestRun(context.Background(), q.ID)
	s.Require().NoError(err)
	s.Equal(want, latest.ID)
}

func (s *AssignmentServiceSuite) TestLatestRun_None() {
	q := s.factory.CreateQuote()
	_, err := s.service.LatestRun(context.Background(), q.ID)
	s.ErrorIs(err, ErrNoRuns)
}

func (s *AssignmentServiceSuite) TestEffectiveAssignment() {
	s.factory.CreateExampleCatalog()
	q := s.factory.CreateQuote()

	eff, err := s.service.EffectiveAssignment(context.Background(), q.ID)
	s.Require().NoError(err)
	s.False(eff.Assigned)

	s.factory.CreateCensus(q.ID, "63011", "63011")
	s.publisher.On("PublishAssignmentRun", mock.Anything, mock.Anything).Return(nil)
	run, err := s.service.Run(context.Background(), q.ID, coverage.ResultKindThreshold)
	s.Require().NoError(err)

	eff, err = s.service.EffectiveAssignment(context.Background(), q.ID)
	s.Require().NoError(err)
	s.Equal("Cigna_PPO", eff.Network)
	s.Equal("100%", eff.CoverageDisplay)
	s.Equal(run.ID, eff.RunID)
	s.False(eff.IsManual)
}

func TestEffectiveAssignment_ManualWinsWithoutRuns(t *testing.T) {
	db := testutil.NewTestDBT(t)
	factory := testutil.NewTestDataFactory(db)
	factory.CreateExampleCatalog()
	q := factory.CreateQuote(testutil.WithManualNetwork("Aetna_HMO"))

	networks := network.NewService(db)
	svc := NewService(db, quote.NewService(db, networks), networks, nil, nil)

	eff, err := svc.EffectiveAssignment(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aetna_HMO", eff.Network)
	assert.True(t, eff.IsManual)
	assert.Equal(t, coverage.CoverageDisplayManual, eff.CoverageDisplay)
}
