package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 空对象键不应触发任何MinIO调用，直接返回空串
func TestGetPresignedURLEmptyKey(t *testing.T) {
	m := &MinIO{}

	url, err := m.GetPresignedURL(context.Background(), "", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "", url)
}

func TestGetContentType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want string
	}{
		{"pdf文件", ".pdf", "application/pdf"},
		{"大写扩展名", ".PDF", "application/pdf"},
		{"doc文件", ".doc", "application/msword"},
		{"docx文件", ".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"txt文件", ".txt", "text/plain"},
		{"未知扩展名", ".xyz", "application/octet-stream"},
		{"空扩展名", "", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getContentType(tt.ext))
		})
	}
}
