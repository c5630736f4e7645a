package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"job-portal-go/internal/logger"
	"job-portal-go/internal/tracing"
	"job-portal-go/internal/types"
)

var tracer = otel.Tracer("job-portal-go/scorer")

// Scorer 简历评分服务接口
type Scorer interface {
	// ScoreResume 对一份简历针对指定职位描述进行评分
	ScoreResume(ctx context.Context, jobDescription string, resumeFilename string, resumeFile []byte) (*types.ScoreResult, error)
}

// HTTPScorer 是基于HTTP的ATS评分服务客户端
type HTTPScorer struct {
	// 评分服务地址，例如 http://localhost:8000
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 日志记录
	logger zerolog.Logger
}

// ScorerOption 定义配置选项函数
type ScorerOption func(*HTTPScorer)

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) ScorerOption {
	return func(s *HTTPScorer) {
		s.Client.Timeout = timeout
	}
}

// WithHTTPClient 配置自定义HTTP客户端
func WithHTTPClient(client *http.Client) ScorerOption {
	return func(s *HTTPScorer) {
		s.Client = client
	}
}

// WithScorerLogger 配置自定义日志记录器
func WithScorerLogger(l zerolog.Logger) ScorerOption {
	return func(s *HTTPScorer) {
		s.logger = l
	}
}

// 确保HTTPScorer实现了Scorer接口
var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer 创建一个新的评分服务客户端
func NewHTTPScorer(serverURL string, options ...ScorerOption) *HTTPScorer {
	// 设置默认的HTTP客户端，包含合理的超时设置
	client := &http.Client{
		Timeout: 60 * time.Second,
	}

	s := &HTTPScorer{
		ServerURL: serverURL,
		Client:    client,
		logger:    logger.Named("scorer"),
	}

	// 应用选项
	for _, option := range options {
		option(s)
	}

	return s
}

// scoreResponse 评分服务返回的原始响应结构
type scoreResponse struct {
	ATSScore          *float64 `json:"ats_score"`
	PredictedCategory string   `json:"predicted_category"`
	Confidence        *float64 `json:"confidence"`
}

// ScoreResume 上传简历文件和职位描述，返回评分结果
func (s *HTTPScorer) ScoreResume(ctx context.Context, jobDescription string, resumeFilename string, resumeFile []byte) (*types.ScoreResult, error) {
	startTime := time.Now()

	ctx, span := tracer.Start(ctx, "Scorer.ScoreResume",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("scorer.server_url", s.ServerURL),
		attribute.String("scorer.resume_filename", resumeFilename),
		attribute.Int("scorer.resume_size", len(resumeFile)),
		attribute.String("scorer.job_description", tracing.SafeJobDescription(jobDescription)),
	)

	// 构建multipart表单：job_description文本字段 + resume_file文件字段
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("job_description", jobDescription); err != nil {
		return nil, fmt.Errorf("写入职位描述字段失败: %w", err)
	}

	part, err := writer.CreateFormFile("resume_file", resumeFilename)
	if err != nil {
		return nil, fmt.Errorf("创建简历文件字段失败: %w", err)
	}
	if _, err := part.Write(resumeFile); err != nil {
		return nil, fmt.Errorf("写入简历文件内容失败: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭multipart写入器失败: %w", err)
	}

	// 构建请求URL
	url := fmt.Sprintf("%s/analyze-resume", s.ServerURL)

	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	// 发送请求
	resp, err := s.Client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeScorer)
		return nil, fmt.Errorf("发送请求到评分服务失败: %w", err)
	}
	defer resp.Body.Close()

	// 检查响应状态
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("评分服务返回错误状态码: %d, 响应: %s", resp.StatusCode, string(respBody))
		tracing.RecordHTTPError(span, err, resp.StatusCode)
		return nil, err
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取评分服务响应失败: %w", err)
	}

	var raw scoreResponse
	if err := json.Unmarshal(respBytes, &raw); err != nil {
		return nil, fmt.Errorf("解析评分结果JSON失败: %w", err)
	}

	result, err := validateScore(&raw)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("scorer.ats_score", result.ATSScore),
		attribute.String("scorer.predicted_category", result.PredictedCategory),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Debug().
		Str("category", result.PredictedCategory).
		Float64("ats_score", result.ATSScore).
		Float64("confidence", result.Confidence).
		Dur("duration", time.Since(startTime)).
		Msg("resume scored")

	return result, nil
}

// validate 校验评分服务返回的各字段取值范围
func (s *scoreResponse) validate() error {
	if s.ATSScore == nil {
		return fmt.Errorf("评分结果缺少ats_score字段")
	}
	if s.Confidence == nil {
		return fmt.Errorf("评分结果缺少confidence字段")
	}
	if s.PredictedCategory == "" {
		return fmt.Errorf("评分结果缺少predicted_category字段")
	}
	if *s.ATSScore < 0 || *s.ATSScore > 100 {
		return fmt.Errorf("评分结果ats_score超出范围[0,100]: %f", *s.ATSScore)
	}
	if *s.Confidence < 0 || *s.Confidence > 1 {
		return fmt.Errorf("评分结果confidence超出范围[0,1]: %f", *s.Confidence)
	}
	return nil
}

func validateScore(raw *scoreResponse) (*types.ScoreResult, error) {
	if err := raw.validate(); err != nil {
		return nil, err
	}
	return &types.ScoreResult{
		ATSScore:          *raw.ATSScore,
		PredictedCategory: raw.PredictedCategory,
		Confidence:        *raw.Confidence,
	}, nil
}
