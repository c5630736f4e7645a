package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"空字符串", "", ""},
		{"单字符", "张", "*"},
		{"两个字符", "张三", "张*"},
		{"三个字符", "王小明", "王*明"},
		{"手机号", "13812345678", "13*******78"},
		{"邮箱", "myemail@example.com", "my***************om"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPII(tt.value))
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Run("短字符串原样返回", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateString("hello", 10))
	})

	t.Run("超长字符串保留首尾", func(t *testing.T) {
		long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
		got := TruncateString(long, 21)
		assert.Contains(t, got, "...")
		assert.LessOrEqual(t, len([]rune(got)), 21)
	})

	t.Run("极小maxLength直接截断", func(t *testing.T) {
		assert.Equal(t, "ab", TruncateString("abcdef", 2))
	})

	t.Run("中文按字符截断", func(t *testing.T) {
		got := TruncateString(strings.Repeat("岗", 300), MaxJDLength)
		assert.LessOrEqual(t, len([]rune(got)), MaxJDLength)
	})
}

func TestSafeAttributeValue(t *testing.T) {
	t.Run("敏感字段名触发掩码", func(t *testing.T) {
		got := SafeAttributeValue("user.email", "myemail@example.com", DefaultMaxLength)
		assert.NotContains(t, got, "myemail@example.com")
		assert.Contains(t, got, "*")
	})

	t.Run("普通字段名只做截断", func(t *testing.T) {
		got := SafeAttributeValue("db.statement", "SELECT 1", DefaultMaxLength)
		assert.Equal(t, "SELECT 1", got)
	})
}

func TestSafeSQL(t *testing.T) {
	long := "SELECT * FROM applications WHERE " + strings.Repeat("x = 1 AND ", 100) + "1 = 1"
	got := SafeSQL(long)
	assert.LessOrEqual(t, len([]rune(got)), MaxSQLLength)
	assert.Contains(t, got, "...")
}

func TestSafeRedisKey(t *testing.T) {
	assert.Equal(t, "app:review:applications", SafeRedisKey("app:review:applications"))

	long := "app:review:" + strings.Repeat("k", 200)
	assert.LessOrEqual(t, len([]rune(SafeRedisKey(long))), MaxRedisLength)
}
