package constants

// 申请状态枚举值，与数据库 status 列一致
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusReviewed = "reviewed"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// ValidApplicationStatuses 状态更新接口允许的取值
var ValidApplicationStatuses = map[string]bool{
	ApplicationStatusPending:  true,
	ApplicationStatusReviewed: true,
	ApplicationStatusAccepted: true,
	ApplicationStatusRejected: true,
}

// 申请流程通知事件名，每个终态恰好对应一个事件
const (
	EventApplicationSubmitted        = "application.submitted"
	EventApplicationResumeRequired   = "application.resume_required"
	EventApplicationDuplicate        = "application.duplicate"
	EventApplicationFailure          = "application.failure"
	EventApplicationScoringCompleted = "application.scoring_completed"
)

// 岗位状态
const (
	JobStatusActive = "active"
	JobStatusClosed = "closed"
)
