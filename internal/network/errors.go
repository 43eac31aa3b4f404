package network

import "go.uber.org/zap"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在日志与监控中标记错误发生的位置。
type Stage string

const (
	StageHandshake Stage = "handshake"
	StageRecvRaw   Stage = "recv_raw" // 收到底层原始帧
	StageDecode    Stage = "decode"   // 帧 -> 业务对象
	StageDispatch  Stage = "dispatch" // 业务对象 -> 会话处理
	StageEncode    Stage = "encode"   // 业务对象 -> 帧
	StageSend      Stage = "send"     // 写出到底层连接
)

// FieldStage 构造统一的阶段日志字段。
func FieldStage(s Stage) zap.Field {
	return zap.String("stage", string(s))
}
