package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Retry 通用重试函数
// @param name: 操作名称(用于错误提示)
// @param attempts: 最大重试次数
// @param sleep: 每次重试间隔时间
// @param fn: 需要执行的函数, 返回 error 表示需要重试
// @return error: 所有尝试都失败时返回最后一次的错误; ctx 取消时立即返回
func Retry(ctx context.Context, name string, attempts int, sleep time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%s: retry aborted", name)
		case <-time.After(sleep):
		}
	}
	return errors.Wrapf(lastErr, "%s: retry time over", name)
}
