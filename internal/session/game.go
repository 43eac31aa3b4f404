package session

import (
	"github.com/lk2023060901/snap-garden-go/internal/network/message"
)

// UserID 为进程内唯一的参与者标识，由 Manager 在创建对局时分配。
type UserID = uint64

// GameID 为对局的代际 ID，每次创建对局时分配，永不复用。
type GameID = uint64

// PlayerNumber 为参与者在所属对局中的座位号（0..N-1），是游戏逻辑唯一可见的身份。
type PlayerNumber = int

// Game 为可插拔的对局逻辑。
//
// 实现只通过 PlayerAction 的返回值与外界通信，消息以座位号寻址；
// Manager 负责在用户 ID 与座位号之间转换，并保证同一对局的调用互斥。
type Game[I any, O any] interface {
	// NumPlayers 返回每局固定的参与者人数。
	NumPlayers() int

	// PlayerAction 推进对局状态，并返回需要投递给各座位的消息。
	PlayerAction(msg message.Inbound[PlayerNumber, I]) []message.Outbound[PlayerNumber, O]
}
