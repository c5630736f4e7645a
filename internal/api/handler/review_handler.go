package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"job-portal-go/internal/config"
	"job-portal-go/internal/constants"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
)

// 重新评分锁的有效期，评分任务入队后锁自然过期，期间抑制重复触发
const rescoreLockTTL = 60 * time.Second

// ReviewHandler 审核端接口：申请列表、状态流转、重新评分、简历下载链接
type ReviewHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewReviewHandler 创建审核端处理器
func NewReviewHandler(cfg *config.Config, storage *storage.Storage) *ReviewHandler {
	return &ReviewHandler{
		cfg:     cfg,
		storage: storage,
	}
}

// UpdateStatusRequest 状态更新请求体
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HandleListApplications 返回所有申请的聚合列表，优先走Redis缓存
func (h *ReviewHandler) HandleListApplications(ctx context.Context, c *app.RequestContext) {
	cached, err := h.storage.Redis.GetCachedReviewerApplications(ctx)
	if err == nil && cached != nil {
		c.JSON(consts.StatusOK, utils.H{"applications": cached, "cached": true})
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn().Err(err).Msg("failed to read reviewer list cache, falling back to database")
	}

	details, err := h.storage.MySQL.ListApplicationsForReviewer(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list applications for reviewer")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询申请列表失败"})
		return
	}

	if err := h.storage.Redis.CacheReviewerApplications(ctx, details); err != nil {
		logger.Warn().Err(err).Msg("failed to cache reviewer application list")
	}

	c.JSON(consts.StatusOK, utils.H{"applications": details, "cached": false})
}

// HandleUpdateStatus 更新申请状态，仅允许预定义的状态值
func (h *ReviewHandler) HandleUpdateStatus(ctx context.Context, c *app.RequestContext) {
	applicationID := c.Param("application_id")

	var req UpdateStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if !constants.ValidApplicationStatuses[req.Status] {
		c.JSON(consts.StatusBadRequest, utils.H{"error": fmt.Sprintf("无效的状态值: %s", req.Status)})
		return
	}

	if err := h.storage.MySQL.UpdateApplicationStatus(ctx, applicationID, req.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "申请记录不存在"})
			return
		}
		logger.Error().Err(err).Str("application_id", applicationID).Msg("failed to update application status")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "更新申请状态失败"})
		return
	}

	// 状态变更后审核列表缓存必须失效
	if err := h.storage.Redis.InvalidateReviewerApplications(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate reviewer list cache")
	}

	c.JSON(consts.StatusOK, utils.H{"application_id": applicationID, "status": req.Status})
}

// HandleRescore 将申请重新投递到评分队列，Redis锁抑制并发触发
func (h *ReviewHandler) HandleRescore(ctx context.Context, c *app.RequestContext) {
	applicationID := c.Param("application_id")

	application, err := h.storage.MySQL.GetApplicationByID(ctx, applicationID)
	if err != nil {
		logger.Error().Err(err).Str("application_id", applicationID).Msg("failed to load application")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询申请记录失败"})
		return
	}
	if application == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "申请记录不存在"})
		return
	}

	lockKey := fmt.Sprintf(constants.KeyRescoreLock, applicationID)
	lockToken, err := h.storage.Redis.AcquireLock(ctx, lockKey, rescoreLockTTL)
	if err != nil {
		logger.Error().Err(err).Str("application_id", applicationID).Msg("failed to acquire rescore lock")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "获取评分锁失败"})
		return
	}
	if lockToken == "" {
		c.JSON(consts.StatusConflict, utils.H{"error": "该申请的重新评分已在进行中"})
		return
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, application.JobID)
	if err != nil || job == nil {
		h.releaseRescoreLock(ctx, lockKey, lockToken)
		logger.Error().Err(err).Str("job_id", application.JobID).Msg("failed to load job for rescore")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询职位信息失败"})
		return
	}

	resume, err := h.storage.MySQL.FindLatestResumeByCandidate(ctx, application.CandidateID)
	if err != nil {
		h.releaseRescoreLock(ctx, lockKey, lockToken)
		logger.Error().Err(err).Str("candidate_id", application.CandidateID).Msg("failed to load resume for rescore")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询简历信息失败"})
		return
	}
	if resume == nil {
		h.releaseRescoreLock(ctx, lockKey, lockToken)
		c.JSON(consts.StatusNotFound, utils.H{"error": "候选人没有简历记录"})
		return
	}

	task := storage.ScoringTaskMessage{
		ApplicationID:      applicationID,
		JobDescriptionText: job.JobDescriptionText,
		ResumeFilePathOSS:  resume.FilePathOSS,
		RequestedBy:        "rescore",
		RequestID:          uuid.NewString(),
		RequestedAt:        time.Now(),
	}

	err = h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.ApplicationEventsExchange,
		h.cfg.RabbitMQ.ScoringRoutingKey,
		task,
		true,
	)
	if err != nil {
		h.releaseRescoreLock(ctx, lockKey, lockToken)
		logger.Error().Err(err).Str("application_id", applicationID).Msg("failed to publish scoring task")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "投递评分任务失败"})
		return
	}

	// 发布成功后不释放锁，由TTL过期，避免评分完成前重复入队
	logger.Info().
		Str("application_id", applicationID).
		Str("request_id", task.RequestID).
		Msg("rescore task queued")
	c.JSON(consts.StatusAccepted, utils.H{
		"application_id": applicationID,
		"status":         "rescore_queued",
		"request_id":     task.RequestID,
	})
}

func (h *ReviewHandler) releaseRescoreLock(ctx context.Context, lockKey, lockToken string) {
	if _, err := h.storage.Redis.ReleaseLock(ctx, lockKey, lockToken); err != nil {
		logger.Warn().Err(err).Str("lock_key", lockKey).Msg("failed to release rescore lock")
	}
}

// HandleResumeURL 生成申请关联简历的限时下载链接
func (h *ReviewHandler) HandleResumeURL(ctx context.Context, c *app.RequestContext) {
	applicationID := c.Param("application_id")

	application, err := h.storage.MySQL.GetApplicationByID(ctx, applicationID)
	if err != nil {
		logger.Error().Err(err).Str("application_id", applicationID).Msg("failed to load application")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询申请记录失败"})
		return
	}
	if application == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "申请记录不存在"})
		return
	}

	resume, err := h.storage.MySQL.FindLatestResumeByCandidate(ctx, application.CandidateID)
	if err != nil {
		logger.Error().Err(err).Str("candidate_id", application.CandidateID).Msg("failed to load resume")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询简历信息失败"})
		return
	}
	if resume == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "该申请没有关联的简历"})
		return
	}

	expiry := time.Duration(h.cfg.Upload.SignedURLExpirySeconds) * time.Second
	url, err := h.storage.MinIO.GetPresignedURL(ctx, resume.FilePathOSS, expiry)
	if err != nil {
		logger.Error().Err(err).Str("resume_id", resume.ResumeID).Msg("failed to generate presigned url")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成下载链接失败"})
		return
	}
	if url == "" {
		c.JSON(consts.StatusNotFound, utils.H{"error": "简历文件引用为空"})
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"application_id": applicationID,
		"resume_url":     url,
		"expires_in":     h.cfg.Upload.SignedURLExpirySeconds,
	})
}
