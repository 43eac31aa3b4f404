package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/snap-garden-go/internal/json"
)

func TestDeckIsComplete(t *testing.T) {
	deck := NewDeck()
	require.Equal(t, DeckSize, deck.Len())
	seen := make(map[Card]struct{})
	for _, c := range deck.Cards() {
		seen[c] = struct{}{}
	}
	assert.Len(t, seen, DeckSize)
}

func TestDeal(t *testing.T) {
	a, b := Deal()
	assert.Equal(t, DeckSize/2, a.Len())
	assert.Equal(t, DeckSize/2, b.Len())

	seen := make(map[Card]struct{})
	for _, c := range append(a.Cards(), b.Cards()...) {
		seen[c] = struct{}{}
	}
	assert.Len(t, seen, DeckSize)
}

func TestPileOperations(t *testing.T) {
	p := NewPile()
	_, ok := p.Draw()
	assert.False(t, ok)
	_, ok = p.BelowTop()
	assert.False(t, ok)

	p.Place(Card{Suit: Clubs, Value: Two})
	p.Place(Card{Suit: Hearts, Value: Ten})

	top, ok := p.Top()
	assert.True(t, ok)
	assert.Equal(t, Card{Suit: Hearts, Value: Ten}, top)
	below, ok := p.BelowTop()
	assert.True(t, ok)
	assert.Equal(t, Card{Suit: Clubs, Value: Two}, below)

	other := NewPile(Card{Suit: Spades, Value: Ace})
	other.Absorb(p)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, 3, other.Len())
	top, _ = other.Top()
	assert.Equal(t, Card{Suit: Clubs, Value: Two}, top)
}

func TestCardString(t *testing.T) {
	assert.Equal(t, "10♥", Card{Suit: Hearts, Value: Ten}.String())
	assert.Equal(t, "A♠", Card{Suit: Spades, Value: Ace}.String())
	assert.Equal(t, "2♣", Card{Suit: Clubs, Value: Two}.String())
	assert.Equal(t, "Q♦", Card{Suit: Diamonds, Value: Queen}.String())
}

func TestCardJSON(t *testing.T) {
	data, err := json.Marshal(Card{Suit: Diamonds, Value: Jack})
	require.NoError(t, err)
	assert.JSONEq(t, `{"suit":"Diamonds","value":"Jack"}`, string(data))

	var c Card
	require.NoError(t, json.Unmarshal([]byte(`{"suit":"Spades","value":"King"}`), &c))
	assert.Equal(t, Card{Suit: Spades, Value: King}, c)

	assert.Error(t, json.Unmarshal([]byte(`{"suit":"Stars","value":"King"}`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"suit":"Spades","value":"Eleven"}`), &c))
}
