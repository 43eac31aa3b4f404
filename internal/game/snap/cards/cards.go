// Package cards 提供标准 52 张扑克牌及牌堆操作。
package cards

import (
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/snap-garden-go/internal/json"
)

// Suit 为花色。
type Suit uint8

const (
	Clubs Suit = iota
	Hearts
	Spades
	Diamonds
)

var (
	suitNames   = [...]string{"Clubs", "Hearts", "Spades", "Diamonds"}
	suitSymbols = [...]string{"♣", "♥", "♠", "♦"}
)

// Value 为点数，从 Two 到 Ace。
type Value uint8

const (
	Two Value = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var (
	valueNames  = [...]string{"Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten", "Jack", "Queen", "King", "Ace"}
	valueFaces  = [...]string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
	allSuits    = [...]Suit{Clubs, Hearts, Spades, Diamonds}
	numValues   = len(valueNames)
	errBadSuit  = errors.New("cards: unknown suit")
	errBadValue = errors.New("cards: unknown value")
)

// DeckSize 为一副牌的张数。
const DeckSize = 52

func (s Suit) String() string {
	if int(s) < len(suitNames) {
		return suitNames[s]
	}
	return "Suit(?)"
}

func (s Suit) MarshalJSON() ([]byte, error) {
	if int(s) >= len(suitNames) {
		return nil, errBadSuit
	}
	return json.Marshal(suitNames[s])
}

func (s *Suit) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range suitNames {
		if n == name {
			*s = Suit(i)
			return nil
		}
	}
	return errors.Wrapf(errBadSuit, "%q", name)
}

func (v Value) String() string {
	if int(v) < len(valueNames) {
		return valueNames[v]
	}
	return "Value(?)"
}

func (v Value) MarshalJSON() ([]byte, error) {
	if int(v) >= len(valueNames) {
		return nil, errBadValue
	}
	return json.Marshal(valueNames[v])
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range valueNames {
		if n == name {
			*v = Value(i)
			return nil
		}
	}
	return errors.Wrapf(errBadValue, "%q", name)
}

// Card 为一张牌。
type Card struct {
	Suit  Suit  `json:"suit"`
	Value Value `json:"value"`
}

// String 返回牌面，例如 "10♥"、"A♠"。
func (c Card) String() string {
	face := "?"
	if int(c.Value) < len(valueFaces) {
		face = valueFaces[c.Value]
	}
	symbol := "?"
	if int(c.Suit) < len(suitSymbols) {
		symbol = suitSymbols[c.Suit]
	}
	return face + symbol
}

// Pile 为一叠牌，末尾为牌堆顶部。
type Pile struct {
	cards []Card
}

// NewPile 创建包含给定牌的牌堆，cs 的最后一张位于顶部。
func NewPile(cs ...Card) *Pile {
	p := &Pile{cards: make([]Card, 0, DeckSize)}
	p.cards = append(p.cards, cs...)
	return p
}

// NewDeck 返回一副按花色、点数排列的完整牌。
func NewDeck() *Pile {
	p := NewPile()
	for _, s := range allSuits {
		for v := 0; v < numValues; v++ {
			p.cards = append(p.cards, Card{Suit: s, Value: Value(v)})
		}
	}
	return p
}

// Deal 洗牌后将一副牌平分为两手。
func Deal() (*Pile, *Pile) {
	deck := NewDeck()
	deck.Shuffle()
	half := DeckSize / 2
	return NewPile(deck.cards[:half]...), NewPile(deck.cards[half:]...)
}

func (p *Pile) Shuffle() {
	rand.Shuffle(len(p.cards), func(i, j int) {
		p.cards[i], p.cards[j] = p.cards[j], p.cards[i]
	})
}

func (p *Pile) Len() int {
	return len(p.cards)
}

func (p *Pile) IsEmpty() bool {
	return len(p.cards) == 0
}

// Top 返回顶部的牌。
func (p *Pile) Top() (Card, bool) {
	if len(p.cards) == 0 {
		return Card{}, false
	}
	return p.cards[len(p.cards)-1], true
}

// BelowTop 返回顶部下面一张牌。
func (p *Pile) BelowTop() (Card, bool) {
	if len(p.cards) < 2 {
		return Card{}, false
	}
	return p.cards[len(p.cards)-2], true
}

// Draw 从顶部取走一张牌。
func (p *Pile) Draw() (Card, bool) {
	c, ok := p.Top()
	if ok {
		p.cards = p.cards[:len(p.cards)-1]
	}
	return c, ok
}

// Place 把一张牌放到顶部。
func (p *Pile) Place(c Card) {
	p.cards = append(p.cards, c)
}

// Absorb 把 other 中的牌逐张从顶部取走并放到 p 的顶部，other 随后为空。
func (p *Pile) Absorb(other *Pile) {
	for {
		c, ok := other.Draw()
		if !ok {
			return
		}
		p.Place(c)
	}
}

// Cards 返回牌堆的副本，最后一张为顶部。
func (p *Pile) Cards() []Card {
	return append([]Card(nil), p.cards...)
}
