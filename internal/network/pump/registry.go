package pump

import (
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
	"github.com/lk2023060901/snap-garden-go/pkg/util/typeutil"
)

// Registry 维护参与者 ID 到其连接（通常为 *Pump）的索引。
//
// 职责说明：
//   - 只负责注册、查询和移除，不直接创建或关闭连接；
//   - 连接的生命周期由上层决定，Registry 仅用于按参与者 ID 定向投递。
type Registry[P comparable] struct {
	conns *typeutil.ConcurrentMap[uint64, P]
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry[P comparable]() *Registry[P] {
	return &Registry[P]{
		conns: typeutil.NewConcurrentMap[uint64, P](),
	}
}

// Register 为参与者登记连接；同一参与者已有连接时返回 ErrUserAlreadyAttached，不覆盖旧连接。
func (r *Registry[P]) Register(id uint64, conn P) error {
	if _, loaded := r.conns.GetOrInsert(id, conn); loaded {
		return merr.WrapErrUserAlreadyAttached(id)
	}
	return nil
}

// Get 查找参与者当前的连接。
func (r *Registry[P]) Get(id uint64) (P, bool) {
	return r.conns.Get(id)
}

// Unregister 仅当参与者当前登记的仍是 conn 时才移除，避免误删后来登记的连接。
func (r *Registry[P]) Unregister(id uint64, conn P) error {
	if !r.conns.CompareAndRemove(id, conn) {
		return merr.WrapErrUserNotFound(id)
	}
	return nil
}

// Range 遍历当前所有连接，fn 返回 false 时中断遍历。
func (r *Registry[P]) Range(fn func(id uint64, conn P) bool) {
	if fn == nil {
		return
	}
	r.conns.Range(fn)
}

// Count 返回当前已登记的连接数量。
func (r *Registry[P]) Count() int {
	return r.conns.Len()
}
