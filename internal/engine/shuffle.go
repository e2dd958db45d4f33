package engine

import (
	"fmt"
	"math/rand"

	"github.com/invigo/invigo-backend/internal/model"
)

// Shuffle randomizes the option order of every question independently and
// remaps the solution key so it still points at the originally-correct
// option. Correctness is tracked by option text, not by position: the
// returned key indexes the option whose text equals the text that was
// correct under the input key.
//
// When two options in the same question share the same text the relocation
// is ambiguous; the first matching index in the shuffled order wins.
//
// The transformation is pure — inputs are not mutated — and the randomness
// source is injected so exam builds are reproducible under a fixed seed.
func Shuffle(questions []model.Question, key model.SolutionKey, rng *rand.Rand) ([]model.Question, model.SolutionKey, error) {
	if err := model.ValidateSolutionKey(questions, key); err != nil {
		return nil, nil, err
	}

	shuffled := make([]model.Question, len(questions))
	shuffledKey := make(model.SolutionKey, len(key))

	for i, q := range questions {
		correctText := q.Options[key[q.ID]]

		perm := rng.Perm(len(q.Options))
		options := make([]string, len(q.Options))
		for dst, src := range perm {
			options[dst] = q.Options[src]
		}

		newIdx := -1
		for j, opt := range options {
			if opt == correctText {
				newIdx = j
				break
			}
		}
		if newIdx < 0 {
			// Unreachable: the permutation preserves all option values.
			return nil, nil, fmt.Errorf("question %q: correct option lost during shuffle", q.ID)
		}

		shuffled[i] = model.Question{ID: q.ID, Text: q.Text, Options: options}
		shuffledKey[q.ID] = newIdx
	}

	return shuffled, shuffledKey, nil
}
