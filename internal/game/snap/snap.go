// Package snap 实现双人“Snap”纸牌对局，是会话槽位表中运行的对局逻辑。
//
// 规则概要：
//   - 一副洗好的牌平分给两位玩家，轮流把手牌顶部的牌翻到中间牌堆；
//   - 中间牌堆最上面两张点数相同时可以 Snap，此时每位玩家都必须回应一次，
//     以浏览器测得的反应耗时决定最快的一方：最快的是 Draw 则继续翻牌，是 Snap 则另一方收走中间牌堆；
//   - 无法 Snap 时误拍的玩家收走中间牌堆；
//   - 无法 Snap 且有玩家手牌为空时，当前出牌玩家获胜，之后只接受 PlayAgain。
package snap

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/snap-garden-go/internal/game/snap/cards"
	"github.com/lk2023060901/snap-garden-go/internal/network/message"
	"github.com/lk2023060901/snap-garden-go/internal/session"
	"github.com/lk2023060901/snap-garden-go/pkg/log"
)

// NumPlayers 为每局玩家人数。
const NumPlayers = 2

// invalidLogCost 为每条非法消息日志消耗的限流额度。
const invalidLogCost = 1

type (
	inbound  = message.Inbound[session.PlayerNumber, Input]
	outbound = message.Outbound[session.PlayerNumber, Output]
)

type player struct {
	hand    *cards.Pile
	pending *Input
}

// Game 为一局 Snap 的全部状态。
type Game struct {
	players [NumPlayers]player
	turn    session.PlayerNumber
	center  *cards.Pile

	logger *log.MLogger
}

var _ session.Game[Input, Output] = (*Game)(nil)

// New 洗牌并发牌，创建一局新的对局。
func New() *Game {
	a, b := cards.Deal()
	return NewWithHands(a, b)
}

// NewWithHands 使用给定手牌创建对局，手牌顶部为最后一张。
func NewWithHands(first, second *cards.Pile) *Game {
	return &Game{
		players: [NumPlayers]player{{hand: first}, {hand: second}},
		center:  cards.NewPile(),
		logger:  log.With(log.FieldModule("snap")),
	}
}

// NumPlayers 实现 session.Game。
func (g *Game) NumPlayers() int {
	return NumPlayers
}

// Turn 返回当前应当翻牌的玩家。
func (g *Game) Turn() session.PlayerNumber {
	return g.turn
}

// HandSize 返回玩家剩余手牌数。
func (g *Game) HandSize(p session.PlayerNumber) int {
	return g.players[p].hand.Len()
}

// CenterSize 返回中间牌堆的张数。
func (g *Game) CenterSize() int {
	return g.center.Len()
}

// PlayerAction 实现 session.Game：推进对局并返回需要发给各玩家的消息。
func (g *Game) PlayerAction(msg inbound) []outbound {
	if msg.Sender < 0 || msg.Sender >= NumPlayers {
		return g.invalid(msg, "unknown player")
	}

	if g.hasEnded() {
		if msg.Message.Kind != PlayAgain {
			return g.invalid(msg, "game ended")
		}
		g.reset()
		return g.toAll(Output{Kind: GameRestarted})
	}

	if msg.Message.Kind == Draw && msg.Sender != g.turn {
		return g.invalid(msg, "not this player's turn")
	}

	if !g.snapPossible() {
		// 此时唯一合法的消息是当前玩家的 Draw；误拍的玩家收走中间牌堆。
		switch msg.Message.Kind {
		case Draw:
			return g.drawCard()
		case Snap:
			out := g.toAll(Output{Kind: OtherPlayerResponded, Player: msg.Sender, Response: msg.Message, IsMistake: true})
			return append(out, g.takeCenter(msg.Sender)...)
		default:
			return g.invalid(msg, "only a draw from the current player is valid")
		}
	}

	// 可以 Snap：等待所有玩家各回应一次，重复回应忽略。
	p := &g.players[msg.Sender]
	if p.pending != nil {
		return nil
	}
	response := msg.Message
	p.pending = &response
	out := g.toAll(Output{Kind: OtherPlayerResponded, Player: msg.Sender, Response: response})

	for i := range g.players {
		if g.players[i].pending == nil {
			return out
		}
	}

	fastest, fastestResponse := g.fastestResponse()
	g.clearPending()
	switch fastestResponse.Kind {
	case Draw:
		return append(out, g.drawCard()...)
	case Snap:
		loser := (fastest + 1) % NumPlayers
		return append(out, g.takeCenter(loser)...)
	default:
		return g.abort("unexpected fastest response " + fastestResponse.String())
	}
}

func (g *Game) reset() {
	a, b := cards.Deal()
	g.players = [NumPlayers]player{{hand: a}, {hand: b}}
	g.turn = 0
	g.center = cards.NewPile()
}

func (g *Game) snapPossible() bool {
	top, ok := g.center.Top()
	if !ok {
		return false
	}
	below, ok := g.center.BelowTop()
	return ok && top.Value == below.Value
}

func (g *Game) hasEnded() bool {
	if g.snapPossible() {
		return false
	}
	for i := range g.players {
		if g.players[i].hand.IsEmpty() {
			return true
		}
	}
	return false
}

// drawCard 当前玩家翻一张牌；若因此结束对局则宣布其获胜，否则轮到下一位。
func (g *Game) drawCard() []outbound {
	card, ok := g.players[g.turn].hand.Draw()
	if !ok {
		return g.abort("draw from empty hand")
	}
	out := g.toAll(Output{Kind: CardDrawn, Card: card, Player: g.turn})
	g.center.Place(card)

	if g.hasEnded() {
		return append(out, g.toAll(Output{Kind: PlayerWins, Player: g.turn})...)
	}
	g.turn = (g.turn + 1) % NumPlayers
	return out
}

func (g *Game) takeCenter(p session.PlayerNumber) []outbound {
	hand := g.players[p].hand
	hand.Absorb(g.center)
	hand.Shuffle()
	g.turn = p
	return g.toAll(Output{Kind: PlayerTakesCenter, Player: p})
}

func (g *Game) fastestResponse() (session.PlayerNumber, Input) {
	winner := 0
	best := *g.players[0].pending
	for i := 1; i < NumPlayers; i++ {
		r := *g.players[i].pending
		if r.FasterThan(best) {
			winner, best = i, r
		}
	}
	return winner, best
}

func (g *Game) clearPending() {
	for i := range g.players {
		g.players[i].pending = nil
	}
}

func (g *Game) toAll(o Output) []outbound {
	recipients := make([]session.PlayerNumber, NumPlayers)
	for i := range recipients {
		recipients[i] = i
	}
	return message.Broadcast(recipients, o)
}

// abort 在对局进入意外状态时记录日志并通知所有玩家。
func (g *Game) abort(reason string) []outbound {
	g.logger.Error("snap game entered an unexpected state", zap.String("reason", reason))
	return g.toAll(Output{Kind: SomethingWentWrong})
}

// invalid 记录不符合当前状态的消息，不产生任何输出。
func (g *Game) invalid(msg inbound, reason string) []outbound {
	g.logger.RatedInfo(invalidLogCost, "ignore unexpected message",
		zap.Int("player", msg.Sender),
		zap.Stringer("msg", msg.Message),
		zap.String("reason", reason))
	return nil
}
