package util

import "github.com/google/uuid"

// NewID 生成全局唯一ID
func NewID() string {
	return uuid.NewString()
}
