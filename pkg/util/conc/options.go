// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"time"

	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/pkg/log"
)

// PoolOption 调整协程池行为。
type PoolOption func(opt *poolOption)

type poolOption struct {
	nonBlocking bool          // 池满时 Submit 立即失败而不是等待空闲 worker
	idleExpiry  time.Duration // 空闲 worker 的回收间隔，0 表示沿用 ants 默认值
	recoverTask bool          // 任务 panic 只记录日志，不再向上抛出
}

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithNonblocking(opt.nonBlocking),
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool task panicked", zap.Any("panic", v), zap.Bool("recovered", opt.recoverTask))
			if !opt.recoverTask {
				panic(v)
			}
		}),
	}
	if opt.idleExpiry > 0 {
		result = append(result, ants.WithExpiryDuration(opt.idleExpiry))
	}
	return result
}

// WithNonBlocking 设置池满时是否直接拒绝任务。
func WithNonBlocking(v bool) PoolOption {
	return func(opt *poolOption) { opt.nonBlocking = v }
}

// WithIdleExpiry 设置空闲 worker 的回收间隔。
func WithIdleExpiry(d time.Duration) PoolOption {
	return func(opt *poolOption) { opt.idleExpiry = d }
}

// WithRecoverTask 设置任务 panic 后是否吞掉异常，避免单个连接拖垮整个进程。
func WithRecoverTask(v bool) PoolOption {
	return func(opt *poolOption) { opt.recoverTask = v }
}
