package types

import "time"

// ScoreResult ATS评分服务返回的结构化结果
type ScoreResult struct {
	ATSScore          float64 `json:"ats_score"`          // 匹配度分数 (0-100)
	PredictedCategory string  `json:"predicted_category"` // 预测的职位类别
	Confidence        float64 `json:"confidence"`         // 类别置信度 (0-1)
}

// SubmitResult 申请提交的返回结果
type SubmitResult struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
	// Score 评分子流程成功时携带结果；失败或未完成时为nil
	Score *ScoreResult `json:"score,omitempty"`
	// ScoringPending 评分未完成（失败或排队中）时为true
	ScoringPending bool `json:"scoring_pending"`
}

// ApplicationDetail 审核端申请列表的聚合行，一次查询组装岗位、候选人、简历与评分
type ApplicationDetail struct {
	ApplicationID     string     `json:"application_id"`
	Status            string     `json:"status"`
	CoverLetter       *string    `json:"cover_letter,omitempty"`
	AppliedAt         time.Time  `json:"applied_at"`
	JobID             string     `json:"job_id"`
	JobTitle          string     `json:"job_title"`
	Company           string     `json:"company"`
	CandidateID       string     `json:"candidate_id"`
	CandidateName     string     `json:"candidate_name"`
	CandidateEmail    string     `json:"candidate_email"`
	ResumeID          string     `json:"resume_id,omitempty"`
	ResumeFilename    string     `json:"resume_filename,omitempty"`
	ResumePathOSS     string     `json:"-"`
	ATSScore          *float64   `json:"ats_score"`
	PredictedCategory *string    `json:"predicted_category"`
	ConfidenceScore   *float64   `json:"confidence_score"`
	ATSCalculatedAt   *time.Time `json:"ats_calculated_at"`
}

// JobSummary 求职端岗位列表条目
type JobSummary struct {
	JobID       string  `json:"job_id"`
	JobTitle    string  `json:"job_title"`
	Company     string  `json:"company"`
	Location    string  `json:"location"`
	JobType     string  `json:"job_type"`
	SalaryRange *string `json:"salary_range,omitempty"`
}

// MyApplicationItem 求职端"我的申请"列表条目
type MyApplicationItem struct {
	ApplicationID     string     `json:"application_id"`
	JobID             string     `json:"job_id"`
	JobTitle          string     `json:"job_title"`
	Company           string     `json:"company"`
	Status            string     `json:"status"`
	AppliedAt         time.Time  `json:"applied_at"`
	ATSScore          *float64   `json:"ats_score"`
	PredictedCategory *string    `json:"predicted_category"`
	ConfidenceScore   *float64   `json:"confidence_score"`
	ATSCalculatedAt   *time.Time `json:"ats_calculated_at"`
}
