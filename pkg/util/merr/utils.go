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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	if se, ok := errors.Cause(err).(snapError); ok {
		return se.code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CanceledCode
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutCode
	default:
		return errUnexpected.code()
	}
}

// IsRetryableErr 判断客户端稍后重试是否可能成功，例如服务器满或发送队列满。
func IsRetryableErr(err error) bool {
	se, ok := errors.Cause(err).(snapError)
	return ok && se.retriable
}

// IsUnexpected 判断错误是否为内部一致性错误。
func IsUnexpected(err error) bool {
	return errors.Is(err, errUnexpected)
}

// Status 为发给客户端的终止性错误帧。
type Status struct {
	Code      int32  `json:"code"`
	Error     string `json:"error"`
	Retriable bool   `json:"retriable,omitempty"`
}

// NewStatus 根据给定错误构造 Status，err 为空时返回表示成功的 Status。
// Error 取最内层包装之上的那一层，去掉调用链上的上下文前缀。
func NewStatus(err error) *Status {
	if err == nil {
		return &Status{}
	}
	inner := err
	for next := errors.Unwrap(inner); next != nil && errors.Unwrap(next) != nil; next = errors.Unwrap(inner) {
		inner = next
	}
	return &Status{
		Code:      Code(err),
		Error:     inner.Error(),
		Retriable: IsRetryableErr(err),
	}
}

// withMsg 在 err 外再包一层由 msg 拼接成的上下文。
func withMsg(err error, msg []string) error {
	if len(msg) == 0 {
		return err
	}
	return errors.Wrap(err, strings.Join(msg, "->"))
}

func WrapErrTooManyRequests(limit int32, msg ...string) error {
	return withMsg(withFields(ErrServiceTooManyRequests, "", kv("limit", limit)), msg)
}

func WrapErrServerFull(maxGames int, msg ...string) error {
	return withMsg(withFields(ErrServerFull, "", kv("maxGames", maxGames)), msg)
}

func WrapErrGameNotFound(userID uint64, msg ...string) error {
	return withMsg(withFields(ErrGameNotFound, "", kv("userID", userID)), msg)
}

// WrapErrUnexpected 标记一次违反槽位表不变式的情况。
func WrapErrUnexpected(reason string, msg ...string) error {
	return withMsg(withFields(errUnexpected, reason), msg)
}

func WrapErrUserNotFound(userID uint64, msg ...string) error {
	return withMsg(withFields(ErrUserNotFound, "", kv("userID", userID)), msg)
}

func WrapErrUserAlreadyAttached(userID uint64, msg ...string) error {
	return withMsg(withFields(ErrUserAlreadyAttached, "", kv("userID", userID)), msg)
}

func WrapErrConnClosed(msg ...string) error {
	return withMsg(ErrConnClosed, msg)
}

func WrapErrSendQueueFull(capacity int, msg ...string) error {
	return withMsg(withFields(ErrSendQueueFull, "", kv("capacity", capacity)), msg)
}

func WrapErrEncodeFailed(cause error, msg ...string) error {
	return withMsg(withFields(ErrEncodeFailed, cause.Error()), msg)
}

func WrapErrDecodeFailed(cause error, msg ...string) error {
	return withMsg(withFields(ErrDecodeFailed, cause.Error()), msg)
}

func WrapErrVersionMismatch(got, want string, msg ...string) error {
	return withMsg(withFields(ErrVersionMismatch, "", kv("got", got), kv("want", want)), msg)
}

// WrapErrParameterInvalidRange 表示 actual 不在 [lower, upper] 内。
func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	field := fmt.Sprintf("%v out of range [%v, %v]", actual, lower, upper)
	return withMsg(withFields(ErrParameterInvalid, "", field), msg)
}

func WrapErrParameterInvalidMsg(format string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, format, args...)
}

// withFields 把字段以 [k=v] 形式追加到错误信息后，desc 非空时再追加 ": desc"。
// 错误码不变，errors.Is 仍然按码匹配。
func withFields(err snapError, desc string, fields ...string) error {
	var sb strings.Builder
	sb.WriteString(err.msg)
	for _, f := range fields {
		sb.WriteString("[" + f + "]")
	}
	if desc != "" {
		sb.WriteString(": " + desc)
	}
	err.msg = sb.String()
	err.detail = err.msg
	return err
}

func kv(name string, value any) string {
	return fmt.Sprintf("%s=%v", name, value)
}
