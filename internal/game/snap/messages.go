package snap

import (
	"bytes"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/snap-garden-go/internal/game/snap/cards"
	"github.com/lk2023060901/snap-garden-go/internal/json"
)

// InputKind 为客户端消息类型。
type InputKind uint8

const (
	// Draw 表示玩家翻了一张牌。
	Draw InputKind = iota
	// Snap 表示玩家拍了牌。
	Snap
	// NoResponse 表示玩家在限定时间内没有反应。
	NoResponse
	// PlayAgain 表示玩家希望再来一局。
	PlayAgain
)

var inputKindNames = [...]string{"Draw", "Snap", "NoResponse", "PlayAgain"}

func (k InputKind) String() string {
	if int(k) < len(inputKindNames) {
		return inputKindNames[k]
	}
	return "InputKind(?)"
}

// Input 为客户端发来的对局消息。
//
// JSON 形式：{"Draw":123}、{"Snap":87}、"NoResponse"、"PlayAgain"，
// 其中数字为浏览器测得的反应耗时（毫秒）。
type Input struct {
	Kind       InputKind
	ResponseMs uint32
}

// NewDraw 构造一条 Draw 消息。
func NewDraw(ms uint32) Input { return Input{Kind: Draw, ResponseMs: ms} }

// NewSnap 构造一条 Snap 消息。
func NewSnap(ms uint32) Input { return Input{Kind: Snap, ResponseMs: ms} }

// NewNoResponse 构造一条 NoResponse 消息。
func NewNoResponse() Input { return Input{Kind: NoResponse} }

// NewPlayAgain 构造一条 PlayAgain 消息。
func NewPlayAgain() Input { return Input{Kind: PlayAgain} }

// FasterThan 判断 in 是否比 other 更快；NoResponse 和 PlayAgain 永远不是更快的一方。
func (in Input) FasterThan(other Input) bool {
	if !in.timed() {
		return false
	}
	if !other.timed() {
		return true
	}
	return in.ResponseMs < other.ResponseMs
}

func (in Input) timed() bool {
	return in.Kind == Draw || in.Kind == Snap
}

func (in Input) String() string {
	if in.timed() {
		return in.Kind.String() + "(" + strconv.FormatUint(uint64(in.ResponseMs), 10) + ")"
	}
	return in.Kind.String()
}

func (in Input) MarshalJSON() ([]byte, error) {
	switch in.Kind {
	case Draw, Snap:
		return json.Marshal(map[string]uint32{in.Kind.String(): in.ResponseMs})
	case NoResponse, PlayAgain:
		return json.Marshal(in.Kind.String())
	default:
		return nil, errors.Newf("snap: unknown input kind %d", in.Kind)
	}
}

func (in *Input) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		switch name {
		case "NoResponse":
			*in = NewNoResponse()
		case "PlayAgain":
			*in = NewPlayAgain()
		default:
			return errors.Newf("snap: unknown input %q", name)
		}
		return nil
	}

	var tagged map[string]uint32
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errors.Newf("snap: input must have exactly one variant, got %d", len(tagged))
	}
	for name, ms := range tagged {
		switch name {
		case "Draw":
			*in = NewDraw(ms)
		case "Snap":
			*in = NewSnap(ms)
		default:
			return errors.Newf("snap: unknown input %q", name)
		}
	}
	return nil
}

// OutputKind 为服务端消息类型。
type OutputKind uint8

const (
	YourNumber OutputKind = iota
	CardDrawn
	OtherPlayerResponded
	PlayerTakesCenter
	PlayerWins
	SomethingWentWrong
	GameRestarted
)

var outputKindNames = [...]string{
	"YourNumber", "CardDrawn", "OtherPlayerResponded", "PlayerTakesCenter",
	"PlayerWins", "SomethingWentWrong", "GameRestarted",
}

func (k OutputKind) String() string {
	if int(k) < len(outputKindNames) {
		return outputKindNames[k]
	}
	return "OutputKind(?)"
}

// Output 为发给客户端的对局消息。
//
// 不同 Kind 使用的字段：
//   - YourNumber / PlayerTakesCenter / PlayerWins：Player；
//   - CardDrawn：Card、Player（出牌者）；
//   - OtherPlayerResponded：Player、Response、IsMistake；
//   - SomethingWentWrong / GameRestarted：无。
type Output struct {
	Kind      OutputKind
	Player    int
	Card      cards.Card
	Response  Input
	IsMistake bool
}

// Greet 返回告知玩家其座位号的消息，连接挂接到对局后发送。
func Greet(player int) Output {
	return Output{Kind: YourNumber, Player: player}
}

type cardDrawnBody struct {
	Card cards.Card `json:"card"`
	From int        `json:"from"`
}

type respondedBody struct {
	Player    int   `json:"player"`
	Msg       Input `json:"msg"`
	IsMistake bool  `json:"is_mistake"`
}

func (o Output) MarshalJSON() ([]byte, error) {
	name := o.Kind.String()
	switch o.Kind {
	case YourNumber, PlayerTakesCenter, PlayerWins:
		return json.Marshal(map[string]int{name: o.Player})
	case CardDrawn:
		return json.Marshal(map[string]cardDrawnBody{name: {Card: o.Card, From: o.Player}})
	case OtherPlayerResponded:
		return json.Marshal(map[string]respondedBody{name: {Player: o.Player, Msg: o.Response, IsMistake: o.IsMistake}})
	case SomethingWentWrong:
		return json.Marshal(name)
	case GameRestarted:
		// 保持与既有客户端一致：{"GameRestarted":0}。
		return json.Marshal(map[string]int{name: 0})
	default:
		return nil, errors.Newf("snap: unknown output kind %d", o.Kind)
	}
}

func (o *Output) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name != SomethingWentWrong.String() {
			return errors.Newf("snap: unknown output %q", name)
		}
		*o = Output{Kind: SomethingWentWrong}
		return nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errors.Newf("snap: output must have exactly one variant, got %d", len(tagged))
	}
	for name, body := range tagged {
		kind, ok := outputKindByName(name)
		if !ok {
			return errors.Newf("snap: unknown output %q", name)
		}
		out := Output{Kind: kind}
		switch kind {
		case YourNumber, PlayerTakesCenter, PlayerWins:
			if err := json.Unmarshal(body, &out.Player); err != nil {
				return err
			}
		case CardDrawn:
			var b cardDrawnBody
			if err := json.Unmarshal(body, &b); err != nil {
				return err
			}
			out.Card, out.Player = b.Card, b.From
		case OtherPlayerResponded:
			var b respondedBody
			if err := json.Unmarshal(body, &b); err != nil {
				return err
			}
			out.Player, out.Response, out.IsMistake = b.Player, b.Msg, b.IsMistake
		}
		*o = out
	}
	return nil
}

func outputKindByName(name string) (OutputKind, bool) {
	for i, n := range outputKindNames {
		if n == name {
			return OutputKind(i), true
		}
	}
	return 0, false
}
