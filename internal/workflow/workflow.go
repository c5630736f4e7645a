package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"job-portal-go/internal/config"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/scorer"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/models"
	"job-portal-go/internal/types"
)

var tracer = otel.Tracer("job-portal-go/workflow")

// ApplicationStore 工作流依赖的数据库操作子集
type ApplicationStore interface {
	FindLatestResumeByCandidate(ctx context.Context, candidateID string) (*models.Resume, error)
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	CreateApplication(ctx context.Context, app *models.Application, outboxMsg *models.OutboxMessage) error
	GetApplicationByID(ctx context.Context, applicationID string) (*models.Application, error)
	UpdateApplicationScoring(ctx context.Context, applicationID string, score float64, category string, confidence float64, calculatedAt time.Time) error
	CreateOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error
}

// ResumeFileStore 工作流依赖的对象存储操作子集
type ResumeFileStore interface {
	DownloadResumeBytes(ctx context.Context, objectKey string) ([]byte, error)
}

// ReviewCache 审核列表缓存失效接口
type ReviewCache interface {
	InvalidateReviewerApplications(ctx context.Context) error
}

// 确保具体存储实现满足工作流接口
var (
	_ ApplicationStore = (*storage.MySQL)(nil)
	_ ResumeFileStore  = (*storage.MinIO)(nil)
	_ ReviewCache      = (*storage.Redis)(nil)
)

// ApplicationWorkflow 投递申请和ATS评分的核心流程
type ApplicationWorkflow struct {
	store  ApplicationStore
	files  ResumeFileStore
	scorer scorer.Scorer
	cache  ReviewCache
	cfg    *config.Config
	logger zerolog.Logger
}

// NewApplicationWorkflow 组装工作流依赖
func NewApplicationWorkflow(store ApplicationStore, files ResumeFileStore, sc scorer.Scorer, cache ReviewCache, cfg *config.Config) *ApplicationWorkflow {
	return &ApplicationWorkflow{
		store:  store,
		files:  files,
		scorer: sc,
		cache:  cache,
		cfg:    cfg,
		logger: logger.Named("workflow"),
	}
}

// SubmitApplication 处理一次职位投递的完整流程：
// 前置校验(职位存在、候选人有简历、未重复投递)、落库、尽力而为的同步评分。
// 评分子流程失败不影响投递结果，申请保持pending状态等待重新评分。
func (w *ApplicationWorkflow) SubmitApplication(ctx context.Context, candidateID, jobID string, coverLetter *string) (*types.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "ApplicationWorkflow.SubmitApplication",
		trace.WithAttributes(
			attribute.String("candidate_id", candidateID),
			attribute.String("job_id", jobID),
		),
	)
	defer span.End()

	// 1. 职位必须存在
	job, err := w.store.GetJobByID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load job")
		return nil, NewDatabaseError("", fmt.Sprintf("查询职位%s失败: %v", jobID, err))
	}
	if job == nil {
		span.SetStatus(codes.Ok, "job not found")
		return nil, ErrJobNotFound
	}

	// 2. 简历前置条件：候选人必须已有至少一份简历，且简历有对应的存储文件
	resume, err := w.store.FindLatestResumeByCandidate(ctx, candidateID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load resume")
		return nil, NewDatabaseError("", fmt.Sprintf("查询候选人%s简历失败: %v", candidateID, err))
	}
	if resume == nil || resume.FilePathOSS == "" {
		w.emitEvent(ctx, candidateID, storage.ApplicationEventMessage{
			Event:       constants.EventApplicationResumeRequired,
			JobID:       jobID,
			CandidateID: candidateID,
			OccurredAt:  time.Now(),
		})
		span.SetStatus(codes.Ok, "resume required")
		return nil, ErrResumeRequired
	}

	// 3. 生成申请记录
	appID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成申请ID失败: %w", err)
	}

	app := &models.Application{
		ApplicationID: appID.String(),
		JobID:         jobID,
		CandidateID:   candidateID,
		Status:        constants.ApplicationStatusPending,
		CoverLetter:   coverLetter,
		AppliedAt:     time.Now(),
	}
	span.SetAttributes(attribute.String("application_id", app.ApplicationID))

	submittedEvent := storage.ApplicationEventMessage{
		Event:         constants.EventApplicationSubmitted,
		ApplicationID: app.ApplicationID,
		JobID:         jobID,
		CandidateID:   candidateID,
		OccurredAt:    time.Now(),
	}
	outboxMsg, err := w.buildOutboxMessage(app.ApplicationID, submittedEvent)
	if err != nil {
		return nil, err
	}

	// 4. 申请和提交事件同事务落库，库表唯一索引兜底重复投递
	if err := w.store.CreateApplication(ctx, app, outboxMsg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			w.emitEvent(ctx, candidateID, storage.ApplicationEventMessage{
				Event:       constants.EventApplicationDuplicate,
				JobID:       jobID,
				CandidateID: candidateID,
				OccurredAt:  time.Now(),
			})
			span.SetStatus(codes.Ok, "duplicate application")
			return nil, ErrDuplicateApplication
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create application")
		return nil, NewDatabaseError(app.ApplicationID, err.Error())
	}

	w.invalidateReviewCache(ctx)

	// 5. 尽力而为的同步评分，失败只记录日志
	result := &types.SubmitResult{
		ApplicationID: app.ApplicationID,
		Status:        constants.ApplicationStatusPending,
	}

	score, scoreErr := w.scoreAndWriteBack(ctx, app.ApplicationID, job, resume)
	if scoreErr != nil {
		w.logger.Warn().
			Err(scoreErr).
			Str("application_id", app.ApplicationID).
			Str("job_id", jobID).
			Msg("inline scoring failed, application stays pending")
		w.emitEvent(ctx, app.ApplicationID, storage.ApplicationEventMessage{
			Event:         constants.EventApplicationFailure,
			ApplicationID: app.ApplicationID,
			JobID:         jobID,
			CandidateID:   candidateID,
			Detail:        scoreErr.Error(),
			OccurredAt:    time.Now(),
		})
		result.ScoringPending = true
		return result, nil
	}

	result.Score = score
	return result, nil
}

// ScoreApplication 对已存在的申请执行评分流程，由重新评分消费者调用。
// 三个失败阶段分别对应 ErrResumeFetchFailed / ErrScoringServiceFailed / ErrScoreWriteBackFailed。
func (w *ApplicationWorkflow) ScoreApplication(ctx context.Context, applicationID string) (*types.ScoreResult, error) {
	ctx, span := tracer.Start(ctx, "ApplicationWorkflow.ScoreApplication",
		trace.WithAttributes(attribute.String("application_id", applicationID)),
	)
	defer span.End()

	app, err := w.store.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, NewDatabaseError(applicationID, err.Error())
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}

	job, err := w.store.GetJobByID(ctx, app.JobID)
	if err != nil {
		return nil, NewDatabaseError(applicationID, fmt.Sprintf("查询职位%s失败: %v", app.JobID, err))
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	resume, err := w.store.FindLatestResumeByCandidate(ctx, app.CandidateID)
	if err != nil {
		return nil, NewDatabaseError(applicationID, fmt.Sprintf("查询候选人%s简历失败: %v", app.CandidateID, err))
	}
	if resume == nil {
		return nil, NewResumeFetchError(applicationID, "候选人已无简历记录")
	}

	result, err := w.scoreAndWriteBack(ctx, applicationID, job, resume)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}
	return result, nil
}

// scoreAndWriteBack 下载简历、调用评分服务、原子回写四个评分字段并发出完成事件
func (w *ApplicationWorkflow) scoreAndWriteBack(ctx context.Context, applicationID string, job *models.Job, resume *models.Resume) (*types.ScoreResult, error) {
	ctx, span := tracer.Start(ctx, "ApplicationWorkflow.scoreAndWriteBack")
	defer span.End()

	// 阶段1: 下载简历文件
	fileBytes, err := w.files.DownloadResumeBytes(ctx, resume.FilePathOSS)
	if err != nil {
		span.RecordError(err)
		return nil, NewResumeFetchError(applicationID, err.Error())
	}
	span.AddEvent("resume file downloaded")

	// 阶段2: 调用评分服务
	result, err := w.scorer.ScoreResume(ctx, job.JobDescriptionText, resume.OriginalFilename, fileBytes)
	if err != nil {
		span.RecordError(err)
		return nil, NewScoringError(applicationID, err.Error())
	}
	span.AddEvent("resume scored")

	// 阶段3: 回写评分结果，四个字段一次性更新
	calculatedAt := time.Now()
	if err := w.store.UpdateApplicationScoring(ctx, applicationID, result.ATSScore, result.PredictedCategory, result.Confidence, calculatedAt); err != nil {
		span.RecordError(err)
		return nil, NewWriteBackError(applicationID, err.Error())
	}
	span.AddEvent("score written back")

	w.emitEvent(ctx, applicationID, storage.ApplicationEventMessage{
		Event:         constants.EventApplicationScoringCompleted,
		ApplicationID: applicationID,
		JobID:         job.JobID,
		CandidateID:   resume.CandidateID,
		ATSScore:      &result.ATSScore,
		Category:      &result.PredictedCategory,
		OccurredAt:    calculatedAt,
	})
	w.invalidateReviewCache(ctx)

	w.logger.Info().
		Str("application_id", applicationID).
		Float64("ats_score", result.ATSScore).
		Str("category", result.PredictedCategory).
		Msg("application scored")

	return result, nil
}

// buildOutboxMessage 序列化事件为发件箱记录
func (w *ApplicationWorkflow) buildOutboxMessage(aggregateID string, event storage.ApplicationEventMessage) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("序列化outbox payload失败: %w", err)
	}
	return &models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        event.Event,
		Payload:          string(payload),
		TargetExchange:   w.cfg.RabbitMQ.ApplicationEventsExchange,
		TargetRoutingKey: w.cfg.RabbitMQ.NotificationRoutingKey,
	}, nil
}

// emitEvent 将通知事件写入发件箱，失败只记录日志不影响主流程
func (w *ApplicationWorkflow) emitEvent(ctx context.Context, aggregateID string, event storage.ApplicationEventMessage) {
	msg, err := w.buildOutboxMessage(aggregateID, event)
	if err != nil {
		w.logger.Error().Err(err).Str("event", event.Event).Msg("failed to build outbox message")
		return
	}
	if err := w.store.CreateOutboxMessage(ctx, msg); err != nil {
		w.logger.Error().Err(err).Str("event", event.Event).Str("aggregate_id", aggregateID).Msg("failed to persist outbox message")
	}
}

func (w *ApplicationWorkflow) invalidateReviewCache(ctx context.Context) {
	if w.cache == nil {
		return
	}
	if err := w.cache.InvalidateReviewerApplications(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("failed to invalidate reviewer list cache")
	}
}
