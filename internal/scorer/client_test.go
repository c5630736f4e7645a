package scorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 启动一个模拟评分服务，返回固定响应
func newMockScoringServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/analyze-resume", r.URL.Path)

		// 校验multipart字段名
		err := r.ParseMultipartForm(10 << 20)
		require.NoError(t, err)
		assert.Equal(t, "后端工程师，要求熟悉Go", r.FormValue("job_description"))

		file, header, err := r.FormFile("resume_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "resume.pdf", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestScoreResumeSuccess(t *testing.T) {
	server := newMockScoringServer(t, http.StatusOK,
		`{"ats_score": 87.5, "predicted_category": "Software Engineering", "confidence": 0.91}`)
	defer server.Close()

	s := NewHTTPScorer(server.URL, WithTimeout(5*time.Second))
	result, err := s.ScoreResume(context.Background(), "后端工程师，要求熟悉Go", "resume.pdf", []byte("%PDF-1.4 fake"))

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 87.5, result.ATSScore)
	assert.Equal(t, "Software Engineering", result.PredictedCategory)
	assert.Equal(t, 0.91, result.Confidence)
}

func TestScoreResumeServerError(t *testing.T) {
	server := newMockScoringServer(t, http.StatusInternalServerError, `{"error": "model unavailable"}`)
	defer server.Close()

	s := NewHTTPScorer(server.URL)
	result, err := s.ScoreResume(context.Background(), "后端工程师，要求熟悉Go", "resume.pdf", []byte("data"))

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "500")
}

func TestScoreResumeBadJSON(t *testing.T) {
	server := newMockScoringServer(t, http.StatusOK, `not json at all`)
	defer server.Close()

	s := NewHTTPScorer(server.URL)
	_, err := s.ScoreResume(context.Background(), "后端工程师，要求熟悉Go", "resume.pdf", []byte("data"))

	require.Error(t, err)
}

func TestScoreResumeValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"缺少ats_score", `{"predicted_category": "Sales", "confidence": 0.5}`},
		{"缺少confidence", `{"ats_score": 50, "predicted_category": "Sales"}`},
		{"缺少predicted_category", `{"ats_score": 50, "confidence": 0.5}`},
		{"ats_score超出上界", `{"ats_score": 120, "predicted_category": "Sales", "confidence": 0.5}`},
		{"ats_score为负数", `{"ats_score": -1, "predicted_category": "Sales", "confidence": 0.5}`},
		{"confidence超出上界", `{"ats_score": 50, "predicted_category": "Sales", "confidence": 1.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newMockScoringServer(t, http.StatusOK, tt.body)
			defer server.Close()

			s := NewHTTPScorer(server.URL)
			result, err := s.ScoreResume(context.Background(), "后端工程师，要求熟悉Go", "resume.pdf", []byte("data"))

			require.Error(t, err)
			assert.Nil(t, result)
		})
	}
}

func TestScoreResumeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewHTTPScorer(server.URL)
	_, err := s.ScoreResume(ctx, "后端工程师", "resume.pdf", []byte("data"))
	require.Error(t, err)
}
