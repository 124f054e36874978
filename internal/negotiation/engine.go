// Package negotiation holds the rate negotiation policy: a pure function
// from (listed rate, offered rate, round) to a decision. Thresholds are
// fixed business constants, not tunable at runtime.
package negotiation

import (
	"fmt"
	"math"
)

type Action string

const (
	ActionAccept          Action = "accept"
	ActionCounterOffer    Action = "counter_offer"
	ActionDeclineContinue Action = "decline_continue"
	ActionTransferToRep   Action = "transfer_to_rep"
)

const (
	// Offers at or above this fraction of the listed rate are accepted outright.
	acceptRatio = 0.95
	// Offers below this fraction of the listed rate are never matched.
	minAcceptableRatio = 0.85
	// A counter moves this fraction of the way from the offer back to the listed rate.
	counterStep = 0.3
	// Lowball offers get one more chance before the call is handed off.
	lowballRoundLimit = 2
	maxRounds         = 3
)

// Decision is the outcome of evaluating a single offer. Exactly one of the
// rate fields is meaningful depending on Action.
type Decision struct {
	Action      Action  `json:"action"`
	Accepted    bool    `json:"accepted"`
	FinalRate   float64 `json:"final_rate,omitempty"`
	CounterRate float64 `json:"counter_rate,omitempty"`
	MinRate     float64 `json:"min_rate,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Message     string  `json:"message"`
}

// Evaluate applies the negotiation policy for one round. listedRate and
// offeredRate must be positive and round must be >= 1; callers validate at
// the boundary. The round cap is checked before the rate bands, so an offer
// that would otherwise be acceptable on round 4 is still handed off.
func Evaluate(listedRate, offeredRate float64, round int) Decision {
	minAcceptable := listedRate * minAcceptableRatio

	if round > maxRounds {
		return Decision{
			Action:  ActionTransferToRep,
			Reason:  "max rounds exceeded",
			Message: "I'll need to transfer you to a sales representative for further assistance.",
		}
	}

	if offeredRate >= listedRate*acceptRatio {
		return Decision{
			Action:    ActionAccept,
			Accepted:  true,
			FinalRate: offeredRate,
			Message:   fmt.Sprintf("Great! I can accept your rate of $%.2f for this load.", offeredRate),
		}
	}

	if offeredRate >= minAcceptable {
		counter := round2(offeredRate + (listedRate-offeredRate)*counterStep)
		return Decision{
			Action:      ActionCounterOffer,
			CounterRate: counter,
			Message:     fmt.Sprintf("I appreciate your offer. I can go as low as $%.2f for this load. Would that work for you?", counter),
		}
	}

	if round < lowballRoundLimit {
		return Decision{
			Action:  ActionDeclineContinue,
			MinRate: round2(minAcceptable),
			Message: fmt.Sprintf("I understand you're looking for the best rate. The lowest I can offer for this load is $%.2f. Would you like to reconsider?", round2(minAcceptable)),
		}
	}

	return Decision{
		Action:  ActionTransferToRep,
		Reason:  "rate too low after repeated attempts",
		Message: "I see we're having difficulty agreeing on a rate. Let me transfer you to a sales representative who may have more flexibility.",
	}
}

// MinAcceptable is the floor below which a rate is never booked. The booking
// path re-checks it as a sanity bound at book time.
func MinAcceptable(listedRate float64) float64 {
	return round2(listedRate * minAcceptableRatio)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
