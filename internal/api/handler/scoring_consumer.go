package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"job-portal-go/internal/config"
	"job-portal-go/internal/logger"
	"job-portal-go/internal/storage"
	"job-portal-go/internal/workflow"
)

// ScoringConsumer 消费评分队列，对申请执行ATS评分流程
type ScoringConsumer struct {
	cfg      *config.Config
	storage  *storage.Storage
	workflow *workflow.ApplicationWorkflow
}

// NewScoringConsumer 创建评分消费者
func NewScoringConsumer(cfg *config.Config, storage *storage.Storage, wf *workflow.ApplicationWorkflow) *ScoringConsumer {
	return &ScoringConsumer{
		cfg:      cfg,
		storage:  storage,
		workflow: wf,
	}
}

// Start 启动评分队列消费者。
// 评分失败是终态：记录日志后确认消息，不重新入队，申请保持pending等待人工重新评分。
func (sc *ScoringConsumer) Start(ctx context.Context) error {
	logger.Info().
		Str("queue", sc.cfg.RabbitMQ.ScoringQueue).
		Int("prefetch_count", sc.cfg.RabbitMQ.PrefetchCount).
		Msg("评分消费者就绪")

	_, err := sc.storage.RabbitMQ.StartConsumer(sc.cfg.RabbitMQ.ScoringQueue, sc.cfg.RabbitMQ.PrefetchCount, func(data []byte) bool {
		var task storage.ScoringTaskMessage
		if err := json.Unmarshal(data, &task); err != nil {
			logger.Error().Err(err).Msg("解析评分任务消息失败")
			return true // 消息格式错误无法重试，直接确认
		}

		result, err := sc.workflow.ScoreApplication(ctx, task.ApplicationID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("application_id", task.ApplicationID).
				Str("request_id", task.RequestID).
				Str("requested_by", task.RequestedBy).
				Msg("评分任务处理失败")
			return true // 评分失败是终态，确认消息不重新入队
		}

		logger.Info().
			Str("application_id", task.ApplicationID).
			Str("request_id", task.RequestID).
			Float64("ats_score", result.ATSScore).
			Str("category", result.PredictedCategory).
			Msg("评分任务处理完成")
		return true
	})
	if err != nil {
		return fmt.Errorf("启动评分消费者失败: %w", err)
	}

	return nil
}
