package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"job-portal-go/internal/config"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/storage/models"
	"job-portal-go/internal/types"
	"job-portal-go/pkg/utils"
)

// fakeStore 内存实现，记录调用痕迹供断言
type fakeStore struct {
	resumes      map[string]*models.Resume
	jobs         map[string]*models.Job
	applications map[string]*models.Application
	outbox       []*models.OutboxMessage

	createErr      error
	writeBackErr   error
	scoringUpdates []scoringUpdate
}

type scoringUpdate struct {
	ApplicationID string
	Score         float64
	Category      string
	Confidence    float64
	CalculatedAt  time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		resumes:      make(map[string]*models.Resume),
		jobs:         make(map[string]*models.Job),
		applications: make(map[string]*models.Application),
	}
}

func (s *fakeStore) FindLatestResumeByCandidate(_ context.Context, candidateID string) (*models.Resume, error) {
	return s.resumes[candidateID], nil
}

func (s *fakeStore) GetJobByID(_ context.Context, jobID string) (*models.Job, error) {
	return s.jobs[jobID], nil
}

func (s *fakeStore) CreateApplication(_ context.Context, app *models.Application, outboxMsg *models.OutboxMessage) error {
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.applications {
		if existing.JobID == app.JobID && existing.CandidateID == app.CandidateID {
			return gorm.ErrDuplicatedKey
		}
	}
	s.applications[app.ApplicationID] = app
	s.outbox = append(s.outbox, outboxMsg)
	return nil
}

func (s *fakeStore) GetApplicationByID(_ context.Context, applicationID string) (*models.Application, error) {
	return s.applications[applicationID], nil
}

func (s *fakeStore) UpdateApplicationScoring(_ context.Context, applicationID string, score float64, category string, confidence float64, calculatedAt time.Time) error {
	if s.writeBackErr != nil {
		return s.writeBackErr
	}
	app, ok := s.applications[applicationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	app.ATSScore = &score
	app.PredictedCategory = &category
	app.ConfidenceScore = &confidence
	app.ATSCalculatedAt = &calculatedAt
	s.scoringUpdates = append(s.scoringUpdates, scoringUpdate{applicationID, score, category, confidence, calculatedAt})
	return nil
}

func (s *fakeStore) CreateOutboxMessage(_ context.Context, msg *models.OutboxMessage) error {
	s.outbox = append(s.outbox, msg)
	return nil
}

// eventsByType 返回发件箱中指定事件类型的记录数
func (s *fakeStore) eventsByType(eventType string) int {
	count := 0
	for _, msg := range s.outbox {
		if msg.EventType == eventType {
			count++
		}
	}
	return count
}

type fakeFiles struct {
	content map[string][]byte
	err     error
}

func (f *fakeFiles) DownloadResumeBytes(_ context.Context, objectKey string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.content[objectKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeScorer struct {
	result *types.ScoreResult
	err    error
	calls  int
}

func (f *fakeScorer) ScoreResume(_ context.Context, _ string, _ string, _ []byte) (*types.ScoreResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCache struct {
	invalidations int
}

func (f *fakeCache) InvalidateReviewerApplications(_ context.Context) error {
	f.invalidations++
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.RabbitMQ.ApplicationEventsExchange = "application.events.exchange"
	cfg.RabbitMQ.NotificationRoutingKey = "application.notifications"
	return cfg
}

func newTestWorkflow(store *fakeStore, files *fakeFiles, sc *fakeScorer, cache *fakeCache) *ApplicationWorkflow {
	return NewApplicationWorkflow(store, files, sc, cache, testConfig())
}

func seedJobAndResume(store *fakeStore, files *fakeFiles) {
	store.jobs["job-1"] = &models.Job{
		JobID:              "job-1",
		JobTitle:           "后端工程师",
		JobDescriptionText: "负责Go服务开发",
		RequirementsJSON:   models.StringToJSON(`{"experience_years": 3}`),
	}
	store.resumes["cand-1"] = &models.Resume{
		ResumeID:         "resume-1",
		CandidateID:      "cand-1",
		FilePathOSS:      "resume/resume-1/original.pdf",
		OriginalFilename: "张三简历.pdf",
	}
	files.content = map[string][]byte{"resume/resume-1/original.pdf": []byte("%PDF-1.4 fake")}
}

func TestSubmitApplicationSuccessWithScore(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 87.5, PredictedCategory: "Software Engineering", Confidence: 0.91}}
	cache := &fakeCache{}

	w := newTestWorkflow(store, files, sc, cache)
	result, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", utils.StringPtr("我对这个职位很感兴趣"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.ApplicationID)
	assert.Equal(t, constants.ApplicationStatusPending, result.Status)
	assert.False(t, result.ScoringPending)
	require.NotNil(t, result.Score)
	assert.Equal(t, 87.5, result.Score.ATSScore)
	assert.Equal(t, "Software Engineering", result.Score.PredictedCategory)
	assert.Equal(t, 0.91, result.Score.Confidence)

	// 评分四个字段一次写回
	require.Len(t, store.scoringUpdates, 1)
	update := store.scoringUpdates[0]
	assert.Equal(t, result.ApplicationID, update.ApplicationID)
	assert.Equal(t, 87.5, update.Score)
	assert.False(t, update.CalculatedAt.IsZero())

	app := store.applications[result.ApplicationID]
	require.NotNil(t, app)
	require.NotNil(t, app.CoverLetter)
	assert.Equal(t, "我对这个职位很感兴趣", *app.CoverLetter)
	require.NotNil(t, app.ATSScore)
	require.NotNil(t, app.PredictedCategory)
	require.NotNil(t, app.ConfidenceScore)
	require.NotNil(t, app.ATSCalculatedAt)

	// 每个终态恰好一个事件：submitted + scoring_completed
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationSubmitted))
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationScoringCompleted))
	assert.Equal(t, 0, store.eventsByType(constants.EventApplicationFailure))

	// 投递和评分各触发一次缓存失效
	assert.Equal(t, 2, cache.invalidations)
}

func TestSubmitApplicationResumeRequired(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	store.jobs["job-1"] = &models.Job{JobID: "job-1", JobDescriptionText: "负责Go服务开发"}
	sc := &fakeScorer{}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	result, err := w.SubmitApplication(context.Background(), "cand-no-resume", "job-1", nil)

	require.ErrorIs(t, err, ErrResumeRequired)
	assert.Nil(t, result)
	assert.Empty(t, store.applications)
	assert.Equal(t, 0, sc.calls)
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationResumeRequired))
}

func TestSubmitApplicationResumeWithoutFile(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	store.jobs["job-1"] = &models.Job{JobID: "job-1", JobDescriptionText: "负责Go服务开发"}
	// 简历记录存在但没有对应的存储文件，同样视为缺少简历
	store.resumes["cand-1"] = &models.Resume{
		ResumeID:    "resume-1",
		CandidateID: "cand-1",
		FilePathOSS: "",
	}
	sc := &fakeScorer{}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	result, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", nil)

	require.ErrorIs(t, err, ErrResumeRequired)
	assert.Nil(t, result)
	assert.Empty(t, store.applications)
	assert.Equal(t, 0, sc.calls)
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationResumeRequired))
}

func TestSubmitApplicationDuplicate(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 50, PredictedCategory: "Sales", Confidence: 0.5}}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	first, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", nil)
	require.ErrorIs(t, err, ErrDuplicateApplication)
	assert.Nil(t, second)

	// 第一次的申请记录不受影响
	assert.Len(t, store.applications, 1)
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationDuplicate))
	// 评分只在第一次投递时执行
	assert.Equal(t, 1, sc.calls)
}

func TestSubmitApplicationJobNotFound(t *testing.T) {
	store := newFakeStore()
	w := newTestWorkflow(store, &fakeFiles{}, &fakeScorer{}, &fakeCache{})

	result, err := w.SubmitApplication(context.Background(), "cand-1", "job-missing", nil)
	require.ErrorIs(t, err, ErrJobNotFound)
	assert.Nil(t, result)
}

func TestSubmitApplicationScoringFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	sc := &fakeScorer{err: errors.New("评分服务返回错误状态码: 500")}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	result, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", nil)

	// 投递成功，评分失败被吞掉
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.ScoringPending)
	assert.Nil(t, result.Score)
	assert.Equal(t, constants.ApplicationStatusPending, result.Status)

	// 评分字段保持全空
	app := store.applications[result.ApplicationID]
	require.NotNil(t, app)
	assert.Nil(t, app.ATSScore)
	assert.Nil(t, app.PredictedCategory)
	assert.Nil(t, app.ConfidenceScore)
	assert.Nil(t, app.ATSCalculatedAt)

	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationSubmitted))
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationFailure))
	assert.Equal(t, 0, store.eventsByType(constants.EventApplicationScoringCompleted))
}

func TestSubmitApplicationWriteBackFailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	store.writeBackErr = errors.New("connection lost")
	sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 70, PredictedCategory: "HR", Confidence: 0.8}}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	result, err := w.SubmitApplication(context.Background(), "cand-1", "job-1", nil)

	require.NoError(t, err)
	assert.True(t, result.ScoringPending)
	assert.Nil(t, result.Score)
}

func TestScoreApplicationSuccess(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	store.applications["app-1"] = &models.Application{
		ApplicationID: "app-1",
		JobID:         "job-1",
		CandidateID:   "cand-1",
		Status:        constants.ApplicationStatusPending,
	}
	sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 92.0, PredictedCategory: "Data Science", Confidence: 0.88}}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	result, err := w.ScoreApplication(context.Background(), "app-1")

	require.NoError(t, err)
	assert.Equal(t, 92.0, result.ATSScore)
	require.Len(t, store.scoringUpdates, 1)
	assert.Equal(t, 1, store.eventsByType(constants.EventApplicationScoringCompleted))
}

// 重复评分覆盖旧值，最后一次写入生效
func TestScoreApplicationOverwritesPreviousScore(t *testing.T) {
	store := newFakeStore()
	files := &fakeFiles{}
	seedJobAndResume(store, files)
	oldScore := 40.0
	oldCategory := "Sales"
	oldConfidence := 0.3
	store.applications["app-1"] = &models.Application{
		ApplicationID:     "app-1",
		JobID:             "job-1",
		CandidateID:       "cand-1",
		Status:            constants.ApplicationStatusPending,
		ATSScore:          &oldScore,
		PredictedCategory: &oldCategory,
		ConfidenceScore:   &oldConfidence,
	}
	sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 85.0, PredictedCategory: "Software Engineering", Confidence: 0.9}}

	w := newTestWorkflow(store, files, sc, &fakeCache{})
	_, err := w.ScoreApplication(context.Background(), "app-1")
	require.NoError(t, err)

	app := store.applications["app-1"]
	assert.Equal(t, 85.0, *app.ATSScore)
	assert.Equal(t, "Software Engineering", *app.PredictedCategory)
	assert.Equal(t, 0.9, *app.ConfidenceScore)
}

func TestScoreApplicationNotFound(t *testing.T) {
	w := newTestWorkflow(newFakeStore(), &fakeFiles{}, &fakeScorer{}, &fakeCache{})
	_, err := w.ScoreApplication(context.Background(), "app-missing")
	require.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestScoreApplicationErrorStages(t *testing.T) {
	setup := func() (*fakeStore, *fakeFiles, *fakeScorer) {
		store := newFakeStore()
		files := &fakeFiles{}
		seedJobAndResume(store, files)
		store.applications["app-1"] = &models.Application{
			ApplicationID: "app-1",
			JobID:         "job-1",
			CandidateID:   "cand-1",
		}
		sc := &fakeScorer{result: &types.ScoreResult{ATSScore: 60, PredictedCategory: "HR", Confidence: 0.7}}
		return store, files, sc
	}

	t.Run("下载简历失败", func(t *testing.T) {
		store, files, sc := setup()
		files.err = errors.New("minio unreachable")
		w := newTestWorkflow(store, files, sc, &fakeCache{})
		_, err := w.ScoreApplication(context.Background(), "app-1")
		require.ErrorIs(t, err, ErrResumeFetchFailed)
	})

	t.Run("评分服务失败", func(t *testing.T) {
		store, files, sc := setup()
		sc.err = errors.New("timeout")
		w := newTestWorkflow(store, files, sc, &fakeCache{})
		_, err := w.ScoreApplication(context.Background(), "app-1")
		require.ErrorIs(t, err, ErrScoringServiceFailed)
	})

	t.Run("回写失败", func(t *testing.T) {
		store, files, sc := setup()
		store.writeBackErr = errors.New("deadlock")
		w := newTestWorkflow(store, files, sc, &fakeCache{})
		_, err := w.ScoreApplication(context.Background(), "app-1")
		require.ErrorIs(t, err, ErrScoreWriteBackFailed)
	})
}

func TestApplicationErrorFormatting(t *testing.T) {
	err := NewScoringError("app-1", "connection refused")
	assert.Contains(t, err.Error(), "app-1")
	assert.Contains(t, err.Error(), "connection refused")
	require.ErrorIs(t, err, ErrScoringServiceFailed)

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "score", appErr.Op)
}
