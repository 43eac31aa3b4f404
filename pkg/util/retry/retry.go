// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// deadlineBackOff 在下一次休眠会越过 ctx 截止时间时直接停止，而不是睡到超时。
type deadlineBackOff struct {
	backoff.BackOff
	ctx context.Context
}

func (d deadlineBackOff) NextBackOff() time.Duration {
	next := d.BackOff.NextBackOff()
	if dl, ok := d.ctx.Deadline(); ok && next != backoff.Stop && time.Until(dl) < next {
		return backoff.Stop
	}
	return next
}

func newBackOff(ctx context.Context, c *config) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.sleep
	exp.MaxInterval = c.maxSleepTime
	exp.Multiplier = 2
	exp.RandomizationFactor = c.jitter
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = exp
	if c.attempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.attempts-1))
	}
	return backoff.WithContext(deadlineBackOff{BackOff: b, ctx: ctx}, ctx)
}

// Do 按指数退避重试 fn，直到成功、次数用尽、错误不可重试或 ctx 结束。
// ctx 结束时返回的错误同时匹配 ctx 错误和 fn 最后一次的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	logger := log.Ctx(ctx).With(zap.String("caller", caller(2)))

	var (
		tries   uint
		lastErr error
	)
	op := func() error {
		tries++
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRecoverable(err) || (c.isRetryErr != nil && !c.isRetryErr(err)) {
			logger.Warn("retry func failed, not retryable", zap.Uint("tries", tries), zap.Error(err))
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if tries%4 == 1 {
			logger.Warn("retry func failed", zap.Uint("tries", tries), zap.Duration("next", next), zap.Error(err))
		}
	}

	err := backoff.RetryNotify(op, newBackOff(ctx, c), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil && errors.Is(err, ctxErr) {
		logger.Warn("retry func failed, ctx done", zap.Uint("tries", tries), zap.Error(lastErr))
		return merr.Combine(ctxErr, lastErr)
	}
	if IsRecoverable(err) {
		logger.Warn("retry func gave up", zap.Uint("tries", tries), zap.Uint("attempts", c.attempts), zap.Error(err))
	}
	return err
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将错误标记为不可恢复，Do 遇到后立即返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断错误是否未被 Unrecoverable 标记。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
