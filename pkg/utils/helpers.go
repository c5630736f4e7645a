package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// StringPtr 返回字符串的指针
func StringPtr(s string) *string {
	return &s
}

// OptionalString 空字符串返回nil，否则返回指针
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CalculateMD5 computes the MD5 hash of a byte slice.
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
