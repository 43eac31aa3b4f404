// Package message 定义网络边界上使用的消息信封。
//
// Inbound 表示“某个发送者发来的一条消息”，Outbound 表示“发往某个接收者的一条消息”。
// 发送者/接收者的标识类型由调用方决定：在会话管理层为全局用户 ID，
// 在游戏逻辑内部则为 0..N-1 的玩家座位号。
package message

// Inbound 为入站消息信封。
type Inbound[ID any, T any] struct {
	Sender  ID
	Message T
}

// Outbound 为出站消息信封。
type Outbound[ID any, T any] struct {
	Recipient ID
	Message   T
}

// NewInbound 构造一条入站消息。
func NewInbound[ID any, T any](sender ID, msg T) Inbound[ID, T] {
	return Inbound[ID, T]{Sender: sender, Message: msg}
}

// NewOutbound 构造一条出站消息。
func NewOutbound[ID any, T any](recipient ID, msg T) Outbound[ID, T] {
	return Outbound[ID, T]{Recipient: recipient, Message: msg}
}

// Broadcast 为 recipients 中的每个接收者各构造一条内容相同的出站消息。
func Broadcast[ID any, T any](recipients []ID, msg T) []Outbound[ID, T] {
	out := make([]Outbound[ID, T], 0, len(recipients))
	for _, r := range recipients {
		out = append(out, Outbound[ID, T]{Recipient: r, Message: msg})
	}
	return out
}
