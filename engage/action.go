// Decides how the agent reacts to third-party posts, and carries out the reaction.
//
// For each timeline item the [Engine] asks the generator for a recommendation of four independent flags (like, retweet, quote, reply). At most one "primary" action (retweet, quote, reply) may be requested; a recommendation asking for more than one is rejected outright and nothing executes. Like is independent of the primary action.
//
// Every evaluated item gets a processed record, whether or not anything executed, so it is never evaluated again.
package engage

import (
	"errors"
	"fmt"

	"github.com/bluesky-social/herald/generate"
)

var ErrConflictingActions = errors.New("more than one primary engagement action requested")

const (
	ActionLike    = "like"
	ActionRetweet = "retweet"
	ActionQuote   = "quote"
	ActionReply   = "reply"
)

type Action struct {
	Like    bool `json:"like"`
	Retweet bool `json:"retweet"`
	Quote   bool `json:"quote"`
	Reply   bool `json:"reply"`
}

func (a Action) primaries() []string {
	var out []string
	if a.Retweet {
		out = append(out, ActionRetweet)
	}
	if a.Quote {
		out = append(out, ActionQuote)
	}
	if a.Reply {
		out = append(out, ActionReply)
	}
	return out
}

func (a Action) Validate() error {
	if p := a.primaries(); len(p) > 1 {
		return fmt.Errorf("%w: %v", ErrConflictingActions, p)
	}
	return nil
}

// The single requested primary action, or empty string. Only meaningful for a valid Action.
func (a Action) Primary() string {
	p := a.primaries()
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// All requested actions, in execution order.
func (a Action) Requested() []string {
	var out []string
	if a.Like {
		out = append(out, ActionLike)
	}
	return append(out, a.primaries()...)
}

func ParseAction(raw string) (Action, error) {
	flags, err := generate.ParseFlags(raw, ActionLike, ActionRetweet, ActionQuote, ActionReply)
	if err != nil {
		return Action{}, err
	}
	return Action{
		Like:    flags[ActionLike],
		Retweet: flags[ActionRetweet],
		Quote:   flags[ActionQuote],
		Reply:   flags[ActionReply],
	}, nil
}
