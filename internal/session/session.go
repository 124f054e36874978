// Package session tracks one voice call's progress from carrier
// verification through load search and rate negotiation to a terminal
// outcome. The session is the audit record for the call; nothing else
// holds a mutable reference into it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/negotiation"
)

type State string

const (
	StateNew                State = "new"
	StateVerifying          State = "verifying"
	StateVerified           State = "verified"
	StateVerificationFailed State = "verification_failed"
	StateSearching          State = "searching"
	StateNegotiating        State = "negotiating"
	StateBooked             State = "booked"
	StateNegotiationFailed  State = "negotiation_failed"
	StateTransferred        State = "transferred"
	StateNotInterested      State = "not_interested"
	StateDropped            State = "dropped"
)

var (
	ErrTerminal       = errors.New("session already in a terminal state")
	ErrNotVerified    = errors.New("carrier not verified as eligible")
	ErrRoundSequence  = errors.New("negotiation round out of sequence")
	ErrInvalidOutcome = errors.New("invalid call outcome")
)

// Verification is the result of a carrier eligibility check as recorded on
// the session.
type Verification struct {
	MCNumber     string    `json:"mc_number"`
	Eligible     bool      `json:"eligible"`
	CarrierName  string    `json:"carrier_name"`
	SafetyRating string    `json:"safety_rating"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Attempt is an immutable record of one negotiation round.
type Attempt struct {
	Round       int                `json:"round"`
	LoadID      string             `json:"load_id"`
	OfferedRate float64            `json:"offered_rate"`
	Action      negotiation.Action `json:"action"`
	CounterRate *float64           `json:"counter_rate,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CallSession is the per-call state machine. Methods mutate in place and
// are not safe for concurrent use; Store serializes access per session id.
type CallSession struct {
	ID               string              `json:"id"`
	State            State               `json:"state"`
	Verification     *Verification       `json:"verification,omitempty"`
	LoadID           string              `json:"load_id,omitempty"`
	PresentedLoadIDs []string            `json:"presented_load_ids,omitempty"`
	Attempts         []Attempt           `json:"attempts,omitempty"`
	Outcome          models.CallOutcome  `json:"outcome,omitempty"`
	FinalRate        *float64            `json:"final_rate,omitempty"`
	Sentiment        *models.Sentiment   `json:"sentiment,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func New(id string) *CallSession {
	now := time.Now().UTC()
	return &CallSession{
		ID:        id,
		State:     StateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *CallSession) Terminal() bool {
	switch s.State {
	case StateBooked, StateNegotiationFailed, StateTransferred,
		StateNotInterested, StateDropped, StateVerificationFailed:
		return true
	}
	return false
}

func (s *CallSession) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// BeginVerification marks an eligibility check in flight. If the check
// never completes the session stays verifying and the event may be
// re-issued.
func (s *CallSession) BeginVerification() error {
	if s.Terminal() {
		return ErrTerminal
	}
	if s.State == StateNew {
		s.State = StateVerifying
	}
	s.touch()
	return nil
}

// RecordVerification applies an eligibility check result. An ineligible
// result is terminal; the carrier cannot proceed on this call.
func (s *CallSession) RecordVerification(v Verification) error {
	if s.Terminal() {
		return ErrTerminal
	}
	s.Verification = &v
	if v.Eligible {
		s.State = StateVerified
	} else {
		s.State = StateVerificationFailed
		s.Outcome = models.OutcomeVerificationFailed
	}
	s.touch()
	return nil
}

func (s *CallSession) eligible() bool {
	return s.Verification != nil && s.Verification.Eligible
}

// RecordSearch notes which loads were presented to the caller. Search does
// not otherwise move the state machine.
func (s *CallSession) RecordSearch(loadIDs []string) error {
	if s.Terminal() {
		return ErrTerminal
	}
	if !s.eligible() {
		return ErrNotVerified
	}
	if s.State == StateVerified {
		s.State = StateSearching
	}
	s.PresentedLoadIDs = append(s.PresentedLoadIDs, loadIDs...)
	s.touch()
	return nil
}

// NextRound is the only round number the session will accept next.
func (s *CallSession) NextRound() int {
	return len(s.Attempts) + 1
}

// RecordAttempt appends one negotiation round. The caller supplies the
// round number but it must be exactly previous+1 (1 for the first attempt);
// anything else is a protocol error and leaves the session untouched.
func (s *CallSession) RecordAttempt(loadID string, round int, offeredRate float64, decision negotiation.Decision) error {
	if s.Terminal() {
		return ErrTerminal
	}
	if !s.eligible() {
		return ErrNotVerified
	}
	if round != s.NextRound() {
		return fmt.Errorf("%w: got round %d, expected %d", ErrRoundSequence, round, s.NextRound())
	}
	a := Attempt{
		Round:       round,
		LoadID:      loadID,
		OfferedRate: offeredRate,
		Action:      decision.Action,
		CreatedAt:   time.Now().UTC(),
	}
	if decision.Action == negotiation.ActionCounterOffer {
		counter := decision.CounterRate
		a.CounterRate = &counter
	}
	s.State = StateNegotiating
	s.LoadID = loadID
	s.Attempts = append(s.Attempts, a)
	s.touch()
	return nil
}

// RecordBooking moves the session to its booked terminal state. Requires a
// prior eligible verification.
func (s *CallSession) RecordBooking(loadID string, rate float64) error {
	if s.Terminal() {
		return ErrTerminal
	}
	if !s.eligible() {
		return ErrNotVerified
	}
	s.State = StateBooked
	s.Outcome = models.OutcomeBooked
	s.LoadID = loadID
	s.FinalRate = &rate
	s.touch()
	return nil
}

// Close sets a terminal outcome reported at call end. Closing an already
// terminal session is a no-op; the stored outcome wins. A booked outcome
// requires a prior eligible verification, same as RecordBooking.
func (s *CallSession) Close(outcome models.CallOutcome, sentiment *models.Sentiment, finalRate *float64) error {
	if !outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	if s.Terminal() {
		return ErrTerminal
	}
	if outcome == models.OutcomeBooked && !s.eligible() {
		return ErrNotVerified
	}
	s.Outcome = outcome
	s.State = stateForOutcome(outcome)
	if sentiment != nil {
		s.Sentiment = sentiment
	}
	if finalRate != nil {
		s.FinalRate = finalRate
	}
	s.touch()
	return nil
}

func stateForOutcome(outcome models.CallOutcome) State {
	switch outcome {
	case models.OutcomeBooked:
		return StateBooked
	case models.OutcomeNegotiationFailed:
		return StateNegotiationFailed
	case models.OutcomeNotInterested:
		return StateNotInterested
	case models.OutcomeTransferred:
		return StateTransferred
	case models.OutcomeVerificationFailed:
		return StateVerificationFailed
	default:
		return StateDropped
	}
}
