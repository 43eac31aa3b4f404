package snap

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/snap-garden-go/internal/game/snap/cards"
	"github.com/lk2023060901/snap-garden-go/internal/json"
	"github.com/lk2023060901/snap-garden-go/internal/network/message"
)

func card(s cards.Suit, v cards.Value) cards.Card {
	return cards.Card{Suit: s, Value: v}
}

func act(g *Game, p int, in Input) []outbound {
	return g.PlayerAction(message.NewInbound(p, in))
}

func kinds(out []outbound) []OutputKind {
	return lo.Map(out, func(o outbound, _ int) OutputKind { return o.Message.Kind })
}

type SnapSuite struct {
	suite.Suite
}

func (s *SnapSuite) TestNewDealsWholeDeck() {
	g := New()
	s.Equal(NumPlayers, g.NumPlayers())
	s.Equal(cards.DeckSize/2, g.HandSize(0))
	s.Equal(cards.DeckSize/2, g.HandSize(1))
	s.Equal(0, g.CenterSize())
	s.Equal(0, g.Turn())
}

func (s *SnapSuite) TestDrawTurns() {
	g := NewWithHands(
		cards.NewPile(card(cards.Clubs, cards.Two), card(cards.Clubs, cards.Three)),
		cards.NewPile(card(cards.Hearts, cards.Five), card(cards.Hearts, cards.Seven)),
	)

	s.Empty(act(g, 1, NewDraw(10)), "draw out of turn is ignored")

	out := act(g, 0, NewDraw(10))
	s.Equal([]OutputKind{CardDrawn, CardDrawn}, kinds(out))
	s.Equal(0, out[0].Recipient)
	s.Equal(1, out[1].Recipient)
	s.Equal(card(cards.Clubs, cards.Three), out[0].Message.Card)
	s.Equal(0, out[0].Message.Player)
	s.Equal(1, g.Turn())

	out = act(g, 1, NewDraw(10))
	s.Equal([]OutputKind{CardDrawn, CardDrawn}, kinds(out))
	s.Equal(0, g.Turn())
	s.Equal(2, g.CenterSize())

	s.Empty(act(g, 0, NewNoResponse()))
	s.Empty(act(g, 0, NewPlayAgain()))
	s.Empty(act(g, 5, NewDraw(1)))
}

func (s *SnapSuite) TestMistakenSnap() {
	g := NewWithHands(
		cards.NewPile(card(cards.Clubs, cards.Two), card(cards.Clubs, cards.Three)),
		cards.NewPile(card(cards.Hearts, cards.Five), card(cards.Hearts, cards.Seven)),
	)
	act(g, 0, NewDraw(10))

	out := act(g, 1, NewSnap(50))
	s.Equal([]OutputKind{OtherPlayerResponded, OtherPlayerResponded, PlayerTakesCenter, PlayerTakesCenter}, kinds(out))
	s.True(out[0].Message.IsMistake)
	s.Equal(1, out[0].Message.Player)
	s.Equal(NewSnap(50), out[0].Message.Response)
	s.Equal(1, out[2].Message.Player)

	s.Equal(0, g.CenterSize())
	s.Equal(3, g.HandSize(1))
	s.Equal(1, g.Turn())
}

func snapReadyGame() *Game {
	g := NewWithHands(
		cards.NewPile(card(cards.Clubs, cards.Two), card(cards.Clubs, cards.Five), card(cards.Clubs, cards.Nine)),
		cards.NewPile(card(cards.Hearts, cards.Four), card(cards.Hearts, cards.Nine)),
	)
	g.PlayerAction(message.NewInbound(0, NewDraw(1)))
	g.PlayerAction(message.NewInbound(1, NewDraw(1)))
	return g
}

func (s *SnapSuite) TestSnapWinnerTakesNothingLoserTakesCenter() {
	g := snapReadyGame()
	s.Equal(2, g.CenterSize())
	s.Equal(0, g.Turn())

	out := act(g, 0, NewSnap(100))
	s.Equal([]OutputKind{OtherPlayerResponded, OtherPlayerResponded}, kinds(out))
	s.False(out[0].Message.IsMistake)

	s.Empty(act(g, 0, NewSnap(1)), "duplicate response is ignored")

	out = act(g, 1, NewNoResponse())
	s.Equal([]OutputKind{OtherPlayerResponded, OtherPlayerResponded, PlayerTakesCenter, PlayerTakesCenter}, kinds(out))
	s.Equal(1, out[2].Message.Player)
	s.Equal(3, g.HandSize(1))
	s.Equal(2, g.HandSize(0))
	s.Equal(0, g.CenterSize())
	s.Equal(1, g.Turn())
}

func (s *SnapSuite) TestFastestDrawContinues() {
	g := snapReadyGame()

	act(g, 1, NewSnap(500))
	out := act(g, 0, NewDraw(300))
	s.Equal([]OutputKind{OtherPlayerResponded, OtherPlayerResponded, CardDrawn, CardDrawn}, kinds(out))
	s.Equal(card(cards.Clubs, cards.Five), out[2].Message.Card)
	s.Equal(3, g.CenterSize())
}

func (s *SnapSuite) TestSlowerSnapLoses() {
	g := snapReadyGame()

	act(g, 0, NewSnap(200))
	out := act(g, 1, NewSnap(100))
	// 玩家 1 更快，玩家 0 收走中间牌堆。
	s.Equal(PlayerTakesCenter, out[len(out)-1].Message.Kind)
	s.Equal(0, out[len(out)-1].Message.Player)
	s.Equal(4, g.HandSize(0))
}

func (s *SnapSuite) TestNobodyRespondsAborts() {
	g := snapReadyGame()

	act(g, 0, NewNoResponse())
	out := act(g, 1, NewNoResponse())
	s.Equal([]OutputKind{OtherPlayerResponded, OtherPlayerResponded, SomethingWentWrong, SomethingWentWrong}, kinds(out))
}

func (s *SnapSuite) TestGameEndAndRestart() {
	g := NewWithHands(
		cards.NewPile(card(cards.Clubs, cards.Three)),
		cards.NewPile(card(cards.Hearts, cards.Five), card(cards.Hearts, cards.Seven)),
	)

	out := act(g, 0, NewDraw(10))
	s.Equal([]OutputKind{CardDrawn, CardDrawn, PlayerWins, PlayerWins}, kinds(out))
	s.Equal(0, out[2].Message.Player)

	s.Empty(act(g, 1, NewDraw(10)))
	s.Empty(act(g, 0, NewSnap(10)))

	out = act(g, 1, NewPlayAgain())
	s.Equal([]OutputKind{GameRestarted, GameRestarted}, kinds(out))
	s.Equal(cards.DeckSize/2, g.HandSize(0))
	s.Equal(cards.DeckSize/2, g.HandSize(1))
	s.Equal(0, g.CenterSize())
	s.Equal(0, g.Turn())
}

func TestSnap(t *testing.T) {
	suite.Run(t, new(SnapSuite))
}

func TestInputJSON(t *testing.T) {
	cases := []struct {
		raw  string
		want Input
	}{
		{`{"Draw":123}`, NewDraw(123)},
		{`{"Snap":7}`, NewSnap(7)},
		{`"NoResponse"`, NewNoResponse()},
		{` "PlayAgain"`, NewPlayAgain()},
	}
	for _, c := range cases {
		var got Input
		require.NoError(t, json.Unmarshal([]byte(c.raw), &got), c.raw)
		assert.Equal(t, c.want, got)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, c.raw, string(data))
	}

	for _, bad := range []string{`"Shout"`, `{"Shout":1}`, `{"Draw":1,"Snap":2}`, `{}`, `42`} {
		var got Input
		assert.Error(t, json.Unmarshal([]byte(bad), &got), bad)
	}
}

func TestOutputJSON(t *testing.T) {
	cases := []struct {
		out  Output
		want string
	}{
		{Output{Kind: YourNumber, Player: 1}, `{"YourNumber":1}`},
		{Output{Kind: CardDrawn, Card: card(cards.Hearts, cards.Ten), Player: 0}, `{"CardDrawn":{"card":{"suit":"Hearts","value":"Ten"},"from":0}}`},
		{Output{Kind: OtherPlayerResponded, Player: 1, Response: NewSnap(40), IsMistake: true}, `{"OtherPlayerResponded":{"player":1,"msg":{"Snap":40},"is_mistake":true}}`},
		{Output{Kind: PlayerTakesCenter, Player: 0}, `{"PlayerTakesCenter":0}`},
		{Output{Kind: PlayerWins, Player: 1}, `{"PlayerWins":1}`},
		{Output{Kind: SomethingWentWrong}, `"SomethingWentWrong"`},
		{Output{Kind: GameRestarted}, `{"GameRestarted":0}`},
	}
	for _, c := range cases {
		data, err := json.Marshal(c.out)
		require.NoError(t, err)
		assert.JSONEq(t, c.want, string(data))

		var got Output
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, c.out, got)
	}
}

func TestFasterThan(t *testing.T) {
	assert.True(t, NewDraw(10).FasterThan(NewSnap(20)))
	assert.False(t, NewSnap(20).FasterThan(NewDraw(10)))
	assert.True(t, NewSnap(999).FasterThan(NewNoResponse()))
	assert.False(t, NewNoResponse().FasterThan(NewDraw(1)))
	assert.False(t, NewPlayAgain().FasterThan(NewNoResponse()))
}
