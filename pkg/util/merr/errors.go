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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// 叶子错误按领域分段编码：1xx 槽位表，2xx 参与者，3xx 连接。
// 新增前先确认现有错误是否够用。retriable 表示客户端稍后重试可能成功。
var (
	ErrServiceTooManyRequests = newSnapError("too many concurrent requests, queue is full", 4, true)

	ErrServerFull   = newSnapError("server full, no free game slot", 100, true)
	ErrGameNotFound = newSnapError("game not found", 101, false)

	ErrUserNotFound        = newSnapError("user not found", 200, false)
	ErrUserAlreadyAttached = newSnapError("user already attached", 201, false)

	ErrConnClosed      = newSnapError("connection closed", 300, false)
	ErrSendQueueFull   = newSnapError("send queue is full", 301, true)
	ErrEncodeFailed    = newSnapError("encode message failed", 302, false)
	ErrDecodeFailed    = newSnapError("decode message failed", 303, false)
	ErrVersionMismatch = newSnapError("client version not supported", 304, false)

	ErrParameterInvalid = newSnapError("invalid parameter", 1100, false)

	// 不导出：未知错误统一归到这里，也用于标记槽位表不变式被破坏（例如名册里缺少用户自己）。
	errUnexpected = newSnapError("unexpected error", (1<<16)-1, false)
)

type snapError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newSnapError(msg string, code int32, retriable bool) snapError {
	return snapError{msg: msg, detail: msg, retriable: retriable, errCode: code}
}

func (e snapError) code() int32 { return e.errCode }

func (e snapError) Error() string { return e.msg }

// Detail 返回带字段的完整描述。
func (e snapError) Detail() string { return e.detail }

// Is 按错误码匹配，同码不同描述的错误视为同一种。
func (e snapError) Is(err error) bool {
	if cause, ok := errors.Cause(err).(snapError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
