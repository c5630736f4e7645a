package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"job-portal-go/internal/constants"
)

func TestValidApplicationStatuses(t *testing.T) {
	t.Run("允许的状态值", func(t *testing.T) {
		for _, status := range []string{
			constants.ApplicationStatusPending,
			constants.ApplicationStatusReviewed,
			constants.ApplicationStatusAccepted,
			constants.ApplicationStatusRejected,
		} {
			assert.True(t, constants.ValidApplicationStatuses[status], "应允许状态 %s", status)
		}
	})

	t.Run("拒绝的状态值", func(t *testing.T) {
		for _, status := range []string{"", "PENDING", "archived", "in_review", "deleted"} {
			assert.False(t, constants.ValidApplicationStatuses[status], "不应允许状态 %s", status)
		}
	})
}
