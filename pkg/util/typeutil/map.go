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

package typeutil

import (
	"sync"

	"go.uber.org/atomic"
)

// ConcurrentMap 是对 sync.Map 的泛型封装，单个 key 的读、写、删除彼此原子。
//
// 计数在 map 操作之后单独更新：同一 key 上并发的写入与删除可能让删除的减一先于写入的加一，
// 所以计数是有符号的，静止后与实际元素数一致。
type ConcurrentMap[K comparable, V any] struct {
	inner sync.Map
	len   atomic.Int64
}

func NewConcurrentMap[K comparable, V any]() *ConcurrentMap[K, V] {
	return &ConcurrentMap[K, V]{}
}

// Insert 写入 key/value，已存在时覆盖。
func (m *ConcurrentMap[K, V]) Insert(key K, value V) {
	_, loaded := m.inner.Swap(key, value)
	if !loaded {
		m.len.Inc()
	}
}

// Get 读取 key 对应的值。
func (m *ConcurrentMap[K, V]) Get(key K) (V, bool) {
	var zeroValue V
	value, ok := m.inner.Load(key)
	if !ok {
		return zeroValue, false
	}
	return value.(V), true
}

// Contain 判断 key 是否存在。
func (m *ConcurrentMap[K, V]) Contain(key K) bool {
	_, ok := m.inner.Load(key)
	return ok
}

// GetOrInsert 返回已存在的值；不存在时写入 value。loaded 为 true 表示 key 已存在。
func (m *ConcurrentMap[K, V]) GetOrInsert(key K, value V) (V, bool) {
	stored, loaded := m.inner.LoadOrStore(key, value)
	if !loaded {
		m.len.Inc()
	}
	return stored.(V), loaded
}

// GetAndRemove 删除 key 并返回删除前的值。
func (m *ConcurrentMap[K, V]) GetAndRemove(key K) (V, bool) {
	var zeroValue V
	value, ok := m.inner.LoadAndDelete(key)
	if !ok {
		return zeroValue, false
	}
	m.len.Dec()
	return value.(V), true
}

// Remove 删除 key，不存在时忽略。
func (m *ConcurrentMap[K, V]) Remove(key K) {
	m.GetAndRemove(key)
}

// CompareAndRemove 仅当当前值等于 old 时删除 key。
func (m *ConcurrentMap[K, V]) CompareAndRemove(key K, old V) bool {
	deleted := m.inner.CompareAndDelete(key, old)
	if deleted {
		m.len.Dec()
	}
	return deleted
}

// Len 返回当前元素个数；并发修改期间为近似值，但不会小于 0。
func (m *ConcurrentMap[K, V]) Len() int {
	return int(max(m.len.Load(), 0))
}

// Range 遍历所有元素，回调返回 false 时终止。
func (m *ConcurrentMap[K, V]) Range(fn func(key K, value V) bool) {
	m.inner.Range(func(key, value any) bool {
		return fn(key.(K), value.(V))
	})
}

// Keys 返回所有 key 的快照。
func (m *ConcurrentMap[K, V]) Keys() []K {
	ret := make([]K, 0, m.Len())
	m.inner.Range(func(key, value any) bool {
		ret = append(ret, key.(K))
		return true
	})
	return ret
}
