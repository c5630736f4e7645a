package storage

import "time"

// ScoringTaskMessage 评分任务消息，由审核端重新评分操作投递到评分队列
type ScoringTaskMessage struct {
	ApplicationID      string    `json:"application_id"`       // 申请ID
	JobDescriptionText string    `json:"job_description_text"` // 岗位描述全文
	ResumeFilePathOSS  string    `json:"resume_file_path_oss"` // 简历文件在MinIO中的对象键
	RequestedBy        string    `json:"requested_by"`         // 触发方标识 (submission/rescore)
	RequestID          string    `json:"request_id"`           // 请求追踪ID
	RequestedAt        time.Time `json:"requested_at"`         // 请求时间
}

// ApplicationEventMessage 申请流程通知事件，经发件箱中继投递到通知队列
type ApplicationEventMessage struct {
	Event         string    `json:"event"` // 事件名，见 constants 包
	ApplicationID string    `json:"application_id,omitempty"`
	JobID         string    `json:"job_id,omitempty"`
	CandidateID   string    `json:"candidate_id,omitempty"`
	ATSScore      *float64  `json:"ats_score,omitempty"`
	Category      *string   `json:"predicted_category,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
