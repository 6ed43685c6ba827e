package cards

import "github.com/lox/blackjack/internal/randutil"

// DefaultDecks is the number of decks in a shoe when none is configured
const DefaultDecks = 8

// DeckSize is the number of cards in one standard deck
const DeckSize = 52

// OrderedShoe builds decks standard decks in fixed order: deck by deck,
// suits Hearts, Diamonds, Clubs, Spades, ranks Two through Ace.
func OrderedShoe(decks int) []Card {
	if decks <= 0 {
		decks = DefaultDecks
	}
	shoe := make([]Card, 0, decks*DeckSize)
	for range decks {
		for _, s := range Suits {
			for _, r := range Ranks {
				shoe = append(shoe, NewCard(r, s))
			}
		}
	}
	return shoe
}

// GenerateShoe returns the ordered shoe permuted by a Fisher-Yates shuffle
// keyed by seed. The result depends on nothing but seed and decks.
func GenerateShoe(seed string, decks int) []Card {
	shoe := OrderedShoe(decks)
	randutil.NewStream(seed).Permute(len(shoe), func(i, j int) {
		shoe[i], shoe[j] = shoe[j], shoe[i]
	})
	return shoe
}
