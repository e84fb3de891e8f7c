package reactions

import (
	"fmt"
)

// Reaction is the acting user's current reaction on a comment.
type Reaction string

const (
	None    Reaction = "none"
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
)

func (reaction Reaction) IsValid() bool {
	switch reaction {
	case None, Like, Dislike:
		return true
	default:
		return false
	}
}

// Parse converts a wire value to a Reaction. An empty string means None.
func Parse(value string) (Reaction, error) {
	if value == "" {
		return None, nil
	}

	reaction := Reaction(value)
	if !reaction.IsValid() {
		return None, InvalidReactionError{Value: value}
	}

	return reaction, nil
}

// Toggle returns the reaction that results from requesting requested while
// current is active. Requesting the active reaction removes it; requesting the
// opposite one switches directly.
func Toggle(current, requested Reaction) Reaction {
	if requested == None || current == requested {
		return None
	}

	return requested
}

// CounterDelta returns the like and dislike counter adjustments for moving
// from prev to next.
func CounterDelta(prev, next Reaction) (likes, dislikes int) {
	if prev == next {
		return 0, 0
	}

	switch prev {
	case Like:
		likes--
	case Dislike:
		dislikes--
	case None:
	}

	switch next {
	case Like:
		likes++
	case Dislike:
		dislikes++
	case None:
	}

	return likes, dislikes
}

type InvalidReactionError struct {
	Value string
}

func (err InvalidReactionError) Error() string {
	return fmt.Sprintf("invalid reaction: %q", err.Value)
}
