package workflow

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrResumeRequired       = errors.New("候选人没有简历记录")
	ErrDuplicateApplication = errors.New("重复申请同一职位")
	ErrJobNotFound          = errors.New("职位不存在")
	ErrApplicationNotFound  = errors.New("申请记录不存在")
	ErrResumeFetchFailed    = errors.New("下载简历文件失败")
	ErrScoringServiceFailed = errors.New("调用评分服务失败")
	ErrScoreWriteBackFailed = errors.New("回写评分结果失败")
	ErrDatabaseFailed       = errors.New("数据库操作失败")
)

// ApplicationError 包含详细错误信息的自定义错误
type ApplicationError struct {
	ApplicationID string
	Op            string
	BaseErr       error
	Detail        string
}

func (e *ApplicationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 申请ID:%s): %s", e.BaseErr, e.Op, e.ApplicationID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 申请ID:%s)", e.BaseErr, e.Op, e.ApplicationID)
}

func (e *ApplicationError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ApplicationError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewResumeFetchError(applicationID, detail string) error {
	return &ApplicationError{
		ApplicationID: applicationID,
		Op:            "fetch_resume",
		BaseErr:       ErrResumeFetchFailed,
		Detail:        detail,
	}
}

func NewScoringError(applicationID, detail string) error {
	return &ApplicationError{
		ApplicationID: applicationID,
		Op:            "score",
		BaseErr:       ErrScoringServiceFailed,
		Detail:        detail,
	}
}

func NewWriteBackError(applicationID, detail string) error {
	return &ApplicationError{
		ApplicationID: applicationID,
		Op:            "write_back",
		BaseErr:       ErrScoreWriteBackFailed,
		Detail:        detail,
	}
}

func NewDatabaseError(applicationID, detail string) error {
	return &ApplicationError{
		ApplicationID: applicationID,
		Op:            "database",
		BaseErr:       ErrDatabaseFailed,
		Detail:        detail,
	}
}
