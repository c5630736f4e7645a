package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"

	"job-portal-go/internal/config"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/storage/models"
	"job-portal-go/internal/types"
	"job-portal-go/internal/workflow"
	pkgutils "job-portal-go/pkg/utils"
)

// ApplicationHandler 求职端接口：简历上传、职位浏览、投递申请、我的申请
type ApplicationHandler struct {
	cfg      *config.Config
	storage  *storage.Storage
	workflow *workflow.ApplicationWorkflow
}

// NewApplicationHandler 创建求职端处理器
func NewApplicationHandler(cfg *config.Config, storage *storage.Storage, wf *workflow.ApplicationWorkflow) *ApplicationHandler {
	return &ApplicationHandler{
		cfg:      cfg,
		storage:  storage,
		workflow: wf,
	}
}

// ResumeUploadResponse 简历上传响应
type ResumeUploadResponse struct {
	ResumeID string `json:"resume_id"`
	Status   string `json:"status"`
}

// SubmitApplicationRequest 投递申请请求体
type SubmitApplicationRequest struct {
	JobID       string `json:"job_id"`
	CoverLetter string `json:"cover_letter"`
}

// candidateID 从请求头提取候选人标识
func candidateID(c *app.RequestContext) string {
	return string(c.GetHeader("X-Candidate-ID"))
}

// extToMIME 扩展名到MIME类型的映射，用于校验上传文件
var extToMIME = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ValidateResumeUpload 校验上传文件的类型与大小，返回标准化后的扩展名
func ValidateResumeUpload(filename string, fileSize int64, cfg *config.UploadConfig) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeType, ok := extToMIME[ext]
	if !ok {
		return "", fmt.Errorf("不支持的文件类型: %s", ext)
	}

	allowed := false
	for _, m := range cfg.AllowedMIMETypes {
		if m == mimeType {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("文件类型 %s 不在允许列表中", mimeType)
	}

	maxBytes := int64(cfg.MaxFileSizeMB) * 1024 * 1024
	if fileSize > maxBytes {
		return "", fmt.Errorf("文件大小超过限制: %d bytes (上限 %dMB)", fileSize, cfg.MaxFileSizeMB)
	}
	if fileSize == 0 {
		return "", fmt.Errorf("文件内容为空")
	}

	return ext, nil
}

// HandleResumeUpload 处理简历上传请求
// 同一候选人重复上传相同文件时直接返回已有的简历记录，不再重复上传
func (h *ApplicationHandler) HandleResumeUpload(ctx context.Context, c *app.RequestContext) {
	cand := candidateID(c)
	if cand == "" {
		c.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少X-Candidate-ID请求头"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}

	ext, err := ValidateResumeUpload(fileHeader.Filename, fileHeader.Size, &h.cfg.Upload)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	// MD5去重需要在上传前计算，文件只能读一次，先读入内存
	fileBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件内容失败"})
		return
	}

	// 按候选人维度去重，同一文件的不同候选人各自保留记录
	md5Member := fmt.Sprintf("%s:%s", cand, pkgutils.CalculateMD5(fileBytes))
	exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, md5Member)
	if err != nil {
		logger.Warn().Err(err).Str("candidate_id", cand).Msg("文件MD5去重检查失败，继续上传流程")
	} else if exists {
		existingID, err := h.storage.Redis.GetFileMD5ToResumeID(ctx, md5Member)
		if err == nil && existingID != "" {
			logger.Info().
				Str("candidate_id", cand).
				Str("resume_id", existingID).
				Str("filename", fileHeader.Filename).
				Msg("duplicate resume file, reusing existing record")
			c.JSON(consts.StatusOK, ResumeUploadResponse{ResumeID: existingID, Status: "duplicate_file"})
			return
		}
		// 映射丢失时退化为正常上传
	}

	resumeUUID, err := uuid.NewV7()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成简历ID失败"})
		return
	}
	resumeID := resumeUUID.String()

	objectKey, md5Hex, err := h.storage.MinIO.UploadResumeFile(ctx, resumeID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		logger.Error().Err(err).Str("resume_id", resumeID).Msg("failed to upload resume file")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "上传简历文件失败"})
		return
	}

	resume := &models.Resume{
		ResumeID:         resumeID,
		CandidateID:      cand,
		FilePathOSS:      objectKey,
		OriginalFilename: fileHeader.Filename,
		FileMD5:          md5Hex,
		UploadedAt:       time.Now(),
	}
	if err := h.storage.MySQL.CreateResume(ctx, resume); err != nil {
		// 落库失败时回滚去重记录和已上传的对象，避免该文件后续无法上传
		if rmErr := h.storage.Redis.RemoveRawFileMD5(ctx, md5Member); rmErr != nil {
			logger.Warn().Err(rmErr).Str("resume_id", resumeID).Msg("failed to roll back md5 dedup entry")
		}
		if delErr := h.storage.MinIO.DeleteFile(ctx, objectKey); delErr != nil {
			logger.Warn().Err(delErr).Str("object_key", objectKey).Msg("failed to roll back uploaded object")
		}
		logger.Error().Err(err).Str("resume_id", resumeID).Msg("failed to persist resume record")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "保存简历记录失败"})
		return
	}

	if err := h.storage.Redis.SetFileMD5ToResumeID(ctx, md5Member, resumeID); err != nil {
		logger.Warn().Err(err).Str("resume_id", resumeID).Msg("failed to record md5 to resume mapping")
	}

	c.JSON(consts.StatusOK, ResumeUploadResponse{ResumeID: resumeID, Status: "uploaded"})
}

// HandleSubmitApplication 处理职位投递请求
func (h *ApplicationHandler) HandleSubmitApplication(ctx context.Context, c *app.RequestContext) {
	cand := candidateID(c)
	if cand == "" {
		c.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少X-Candidate-ID请求头"})
		return
	}

	var req SubmitApplicationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if req.JobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id不能为空"})
		return
	}

	result, err := h.workflow.SubmitApplication(ctx, cand, req.JobID, pkgutils.OptionalString(req.CoverLetter))
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrJobNotFound):
			c.JSON(consts.StatusNotFound, utils.H{"error": "职位不存在"})
		case errors.Is(err, workflow.ErrResumeRequired):
			c.JSON(consts.StatusUnprocessableEntity, utils.H{"error": "请先上传简历再投递职位"})
		case errors.Is(err, workflow.ErrDuplicateApplication):
			c.JSON(consts.StatusConflict, utils.H{"error": "您已投递过该职位"})
		default:
			logger.Error().Err(err).Str("candidate_id", cand).Str("job_id", req.JobID).Msg("failed to submit application")
			c.JSON(consts.StatusInternalServerError, utils.H{"error": "投递失败，请稍后重试"})
		}
		return
	}

	logger.Ctx(ctx).Info().
		Str("candidate_id", cand).
		Str("job_id", req.JobID).
		Str("application_id", result.ApplicationID).
		Bool("scoring_pending", result.ScoringPending).
		Msg("application submitted")
	c.JSON(consts.StatusCreated, result)
}

// HandleListJobs 返回在招职位列表
func (h *ApplicationHandler) HandleListJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := h.storage.MySQL.ListActiveJobs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list active jobs")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询职位列表失败"})
		return
	}

	summaries := make([]types.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, types.JobSummary{
			JobID:       job.JobID,
			JobTitle:    job.JobTitle,
			Company:     job.Company,
			Location:    job.Location,
			JobType:     job.JobType,
			SalaryRange: job.SalaryRange,
		})
	}
	c.JSON(consts.StatusOK, utils.H{"jobs": summaries})
}

// HandleMyApplications 返回当前候选人的申请记录
func (h *ApplicationHandler) HandleMyApplications(ctx context.Context, c *app.RequestContext) {
	cand := candidateID(c)
	if cand == "" {
		c.JSON(consts.StatusUnauthorized, utils.H{"error": "缺少X-Candidate-ID请求头"})
		return
	}

	items, err := h.storage.MySQL.ListApplicationsByCandidate(ctx, cand)
	if err != nil {
		logger.Error().Err(err).Str("candidate_id", cand).Msg("failed to list candidate applications")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询申请记录失败"})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"applications": items})
}
