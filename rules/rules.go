// Package rules holds the rock-paper-scissors rule and the leader election
// used to pick which participant resolves a round.
package rules

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidChoice = errors.New("invalid choice")

type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

var beats = map[Choice]Choice{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

func ParseChoice(s string) (Choice, error) {
	c := Choice(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

type Result string

const (
	Win  Result = "win"
	Lose Result = "lose"
	Draw Result = "draw"
)

// Complement is the result the opponent sees.
func (r Result) Complement() Result {
	switch r {
	case Win:
		return Lose
	case Lose:
		return Win
	}
	return r
}

// Decide returns the outcome for the player who chose a against b.
func Decide(a, b Choice) Result {
	if a == b {
		return Draw
	}
	if beats[a] == b {
		return Win
	}
	return Lose
}

// Leader picks the participant that sorts first. Both sides compute the same
// answer without exchanging messages.
func Leader[T cmp.Ordered](a, b T) T {
	return min(a, b)
}

// IsResolver reports whether self is the side that must resolve a round
// played against opponent.
func IsResolver[T cmp.Ordered](self, opponent T) bool {
	return self != opponent && Leader(self, opponent) == self
}
