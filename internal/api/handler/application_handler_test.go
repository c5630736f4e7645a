package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-portal-go/internal/config"
)

func uploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		AllowedMIMETypes: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
		MaxFileSizeMB: 10,
	}
}

func TestValidateResumeUpload(t *testing.T) {
	cfg := uploadConfig()

	t.Run("PDF文件通过校验", func(t *testing.T) {
		ext, err := ValidateResumeUpload("resume.pdf", 1024, cfg)
		require.NoError(t, err)
		assert.Equal(t, ".pdf", ext)
	})

	t.Run("扩展名大小写不敏感", func(t *testing.T) {
		ext, err := ValidateResumeUpload("RESUME.PDF", 1024, cfg)
		require.NoError(t, err)
		assert.Equal(t, ".pdf", ext)
	})

	t.Run("docx文件通过校验", func(t *testing.T) {
		ext, err := ValidateResumeUpload("简历.docx", 2048, cfg)
		require.NoError(t, err)
		assert.Equal(t, ".docx", ext)
	})

	t.Run("不支持的扩展名", func(t *testing.T) {
		_, err := ValidateResumeUpload("resume.exe", 1024, cfg)
		require.Error(t, err)
	})

	t.Run("没有扩展名", func(t *testing.T) {
		_, err := ValidateResumeUpload("resume", 1024, cfg)
		require.Error(t, err)
	})

	t.Run("超过大小限制", func(t *testing.T) {
		_, err := ValidateResumeUpload("resume.pdf", 11*1024*1024, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "文件大小超过限制")
	})

	t.Run("空文件", func(t *testing.T) {
		_, err := ValidateResumeUpload("resume.pdf", 0, cfg)
		require.Error(t, err)
	})

	t.Run("MIME类型不在白名单", func(t *testing.T) {
		restricted := &config.UploadConfig{
			AllowedMIMETypes: []string{"application/pdf"},
			MaxFileSizeMB:    10,
		}
		_, err := ValidateResumeUpload("resume.docx", 1024, restricted)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "不在允许列表中")
	})
}
