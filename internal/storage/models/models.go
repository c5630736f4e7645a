package models

import (
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表
type Candidate struct {
	CandidateID string    `gorm:"type:char(36);primaryKey"`
	Name        string    `gorm:"type:varchar(255);not null"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex:idx_candidates_email_unique;not null"`
	Phone       string    `gorm:"type:varchar(50)"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Resume 候选人上传的简历文件记录，一个候选人可有多份，取UploadedAt最新的一份为当前简历
type Resume struct {
	ResumeID         string    `gorm:"type:char(36);primaryKey"`
	CandidateID      string    `gorm:"type:char(36);not null;index:idx_resumes_candidate_id"`
	FilePathOSS      string    `gorm:"type:varchar(1024);not null"` // 对象存储中的文件键
	OriginalFilename string    `gorm:"type:varchar(255)"`
	FileMD5          string    `gorm:"type:char(32);index:idx_resumes_file_md5"`
	UploadedAt       time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_resumes_uploaded_at"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Resume) TableName() string {
	return "resumes"
}

// Job 岗位信息表，对申请流程只读
type Job struct {
	JobID              string         `gorm:"type:char(36);primaryKey"`
	JobTitle           string         `gorm:"type:varchar(255);not null"`
	Company            string         `gorm:"type:varchar(255);not null"`
	Location           string         `gorm:"type:varchar(255)"`
	JobType            string         `gorm:"type:varchar(50)"`
	SalaryRange        *string        `gorm:"type:varchar(100)"` // 可空
	JobDescriptionText string         `gorm:"type:text;not null"`
	RequirementsJSON   datatypes.JSON `gorm:"type:json"`
	Status             string         `gorm:"type:varchar(50);default:'active';index:idx_jobs_status"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// Application 申请表
// (job_id, candidate_id) 上的唯一索引是重复申请的权威判定，预检查只是快速路径
// 评分四元组(ATSScore/PredictedCategory/ConfidenceScore/ATSCalculatedAt)要么全空要么全有值
type Application struct {
	ApplicationID     string     `gorm:"type:char(36);primaryKey"`
	JobID             string     `gorm:"type:char(36);not null;uniqueIndex:idx_applications_job_candidate_unique,priority:1"`
	CandidateID       string     `gorm:"type:char(36);not null;uniqueIndex:idx_applications_job_candidate_unique,priority:2;index:idx_applications_candidate_id"`
	Status            string     `gorm:"type:varchar(20);default:'pending';index:idx_applications_status"`
	CoverLetter       *string    `gorm:"type:text"` // 可空
	ATSScore          *float64   `gorm:"type:double"`
	PredictedCategory *string    `gorm:"type:varchar(100)"`
	ConfidenceScore   *float64   `gorm:"type:double"`
	ATSCalculatedAt   *time.Time `gorm:"type:datetime(6)"`
	AppliedAt         time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_applications_applied_at"`
	CreatedAt         time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Application) TableName() string {
	return "applications"
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}
