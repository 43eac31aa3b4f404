package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameUserID    = "userID"
	FieldNameGameID    = "gameID"
	FieldNameSlot      = "slot"
	FieldNameRemote    = "remote"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldUserID 返回一个包含参与者 ID 的 zap 字段。
func FieldUserID(id uint64) zap.Field {
	return zap.Uint64(FieldNameUserID, id)
}

// FieldGameID 返回一个包含对局代际 ID 的 zap 字段。
func FieldGameID(id uint64) zap.Field {
	return zap.Uint64(FieldNameGameID, id)
}

// FieldSlot 返回一个包含槽位下标的 zap 字段。
func FieldSlot(slot int) zap.Field {
	return zap.Int(FieldNameSlot, slot)
}

// FieldRemote 返回一个包含远端地址的 zap 字段。
func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}
