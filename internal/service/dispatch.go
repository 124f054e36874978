// Package service routes inbound voice-agent events to their delegates:
// carrier verification, load search, rate negotiation, booking, and call
// logging. Every delegate failure is reduced to a safe envelope here; raw
// errors never reach the caller.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/carrier"
	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/negotiation"
	"github.com/carrierdesk/backend/internal/session"
)

const voiceResultLimit = 3

// LoadRepository is the slice of the load store the dispatcher needs.
// Implemented by db.Store and db.MemStore.
type LoadRepository interface {
	SearchLoads(ctx context.Context, c models.SearchCriteria) ([]models.Load, error)
	GetLoad(ctx context.Context, loadID string) (models.Load, error)
	TryBook(ctx context.Context, loadID, mcNumber string, rate float64) (models.Booking, error)
}

type CallLogStore interface {
	InsertCallLog(ctx context.Context, cl models.CallLog) error
}

// Event is the inbound webhook envelope. Parameters stay raw until the
// action is known, then decode into the matching typed payload.
type Event struct {
	SessionID  string          `json:"session_id"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

// Envelope is the uniform response returned to the voice agent. Failures
// here are conversational branches, not protocol errors.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type VerifyCarrierParams struct {
	MCNumber string `json:"mc_number" validate:"required"`
}

type SearchLoadsParams struct {
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	EquipmentType string   `json:"equipment_type"`
	MinRate       *float64 `json:"min_rate" validate:"omitempty,gt=0"`
	MaxRate       *float64 `json:"max_rate" validate:"omitempty,gt=0"`
}

type NegotiateRateParams struct {
	LoadID           string  `json:"load_id" validate:"required"`
	OfferedRate      float64 `json:"offered_rate" validate:"required,gt=0"`
	NegotiationRound int     `json:"negotiation_round" validate:"required,min=1"`
	MCNumber         string  `json:"mc_number"`
}

type BookLoadParams struct {
	LoadID     string  `json:"load_id" validate:"required"`
	MCNumber   string  `json:"mc_number" validate:"required"`
	AgreedRate float64 `json:"agreed_rate" validate:"required,gt=0"`
}

type LogCallParams struct {
	MCNumber          *string           `json:"mc_number"`
	LoadID            *string           `json:"load_id"`
	Outcome           string            `json:"outcome" validate:"required"`
	Sentiment         *models.Sentiment `json:"sentiment"`
	FinalRate         *float64          `json:"final_rate"`
	NegotiationRounds int               `json:"negotiation_rounds"`
	DurationSeconds   *int              `json:"duration_seconds"`
	Transcript        json.RawMessage   `json:"transcript"`
}

type Dispatcher struct {
	Loads     LoadRepository
	CallLogs  CallLogStore
	Gateway   carrier.Gateway
	Sessions  *session.Store
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func fail(message string) Envelope {
	return Envelope{Success: false, Message: message}
}

// Dispatch resolves one inbound event. It never returns an error: every
// failure path maps to an Envelope the voice agent can speak.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Envelope {
	if ev.SessionID == "" {
		return fail("session_id is required")
	}

	// A call that already ended replays its recorded outcome instead of
	// mutating anything further.
	if snap, ok := d.Sessions.Snapshot(ev.SessionID); ok && snap.Terminal() {
		if ev.Action == "negotiate_rate" || ev.Action == "book_load" || ev.Action == "log_call" {
			return Envelope{
				Success: true,
				Message: fmt.Sprintf("Call already concluded with outcome %s", snap.Outcome),
				Data: map[string]any{
					"outcome":    snap.Outcome,
					"final_rate": snap.FinalRate,
				},
			}
		}
	}

	switch ev.Action {
	case "verify_carrier":
		return d.verifyCarrier(ctx, ev)
	case "search_loads":
		return d.searchLoads(ctx, ev)
	case "negotiate_rate":
		return d.negotiateRate(ctx, ev)
	case "book_load":
		return d.bookLoad(ctx, ev)
	case "log_call":
		return d.logCall(ctx, ev)
	default:
		d.Logger.Warn().Str("session_id", ev.SessionID).Str("action", ev.Action).Msg("unknown action")
		return fail("unknown action")
	}
}

func (d *Dispatcher) decode(ev Event, dst any) error {
	params := ev.Parameters
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return d.Validator.Struct(dst)
}

func (d *Dispatcher) verifyCarrier(ctx context.Context, ev Event) Envelope {
	var p VerifyCarrierParams
	if err := d.decode(ev, &p); err != nil {
		return fail("MC number is required for verification")
	}

	if err := d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
		return s.BeginVerification()
	}); err != nil {
		return fail("This call has already concluded")
	}

	v, err := d.Gateway.Check(ctx, p.MCNumber)
	if err != nil {
		// Registry unreachable: recoverable, the session stays verifying
		// with no result recorded and the agent may re-issue the event.
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("mc_number", p.MCNumber).Msg("carrier verification failed")
		return Envelope{
			Success: false,
			Message: "Unable to verify carrier at this time",
			Data:    map[string]any{"is_eligible": false, "reason": "registry_unavailable"},
		}
	}

	err = d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
		return s.RecordVerification(session.Verification{
			MCNumber:     v.MCNumber,
			Eligible:     v.Eligible,
			CarrierName:  v.CarrierName,
			SafetyRating: v.SafetyRating,
			CheckedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		d.Logger.Warn().Err(err).Str("session_id", ev.SessionID).Msg("verification not recorded")
		return fail("This call has already concluded")
	}

	msg := fmt.Sprintf("Carrier %s verified successfully", v.CarrierName)
	if !v.Eligible {
		msg = "Carrier is not eligible to book loads"
	}
	return Envelope{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"is_eligible":   v.Eligible,
			"carrier_name":  v.CarrierName,
			"safety_rating": v.SafetyRating,
		},
	}
}

func (d *Dispatcher) searchLoads(ctx context.Context, ev Event) Envelope {
	var p SearchLoadsParams
	if err := d.decode(ev, &p); err != nil {
		return fail("Invalid search criteria")
	}

	loads, err := d.Loads.SearchLoads(ctx, models.SearchCriteria{
		Origin:        p.Origin,
		Destination:   p.Destination,
		EquipmentType: p.EquipmentType,
		MinRate:       p.MinRate,
		MaxRate:       p.MaxRate,
		Limit:         voiceResultLimit,
	})
	if err != nil {
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Msg("load search failed")
		return fail("Unable to search loads at this time")
	}

	summaries := make([]models.LoadSummary, 0, len(loads))
	ids := make([]string, 0, len(loads))
	for _, l := range loads {
		summaries = append(summaries, l.Summary())
		ids = append(ids, l.LoadID)
	}

	if len(ids) > 0 {
		err = d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
			return s.RecordSearch(ids)
		})
		if err != nil && !errors.Is(err, session.ErrNotVerified) {
			d.Logger.Warn().Err(err).Str("session_id", ev.SessionID).Msg("search not recorded on session")
		}
	}

	msg := fmt.Sprintf("Found %d loads matching your criteria", len(summaries))
	if len(summaries) == 0 {
		msg = "No loads currently available matching your criteria"
	}
	return Envelope{
		Success: true,
		Message: msg,
		Data:    map[string]any{"loads": summaries},
	}
}

func (d *Dispatcher) negotiateRate(ctx context.Context, ev Event) Envelope {
	var p NegotiateRateParams
	if err := d.decode(ev, &p); err != nil {
		return fail("load_id, offered_rate and negotiation_round are required")
	}

	load, err := d.Loads.GetLoad(ctx, p.LoadID)
	if err != nil {
		if errors.Is(err, db.ErrLoadNotFound) {
			return fail("Load not found")
		}
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("load_id", p.LoadID).Msg("load lookup failed")
		return fail("Unable to process negotiation")
	}

	decision := negotiation.Evaluate(load.LoadboardRate, p.OfferedRate, p.NegotiationRound)

	err = d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
		return s.RecordAttempt(p.LoadID, p.NegotiationRound, p.OfferedRate, decision)
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRoundSequence):
			return fail(fmt.Sprintf("Negotiation round %d is out of sequence", p.NegotiationRound))
		case errors.Is(err, session.ErrNotVerified):
			return fail("Carrier must be verified before negotiating")
		default:
			d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Msg("negotiation attempt rejected")
			return fail("Unable to process negotiation")
		}
	}

	data := map[string]any{
		"action":   decision.Action,
		"accepted": decision.Accepted,
	}
	switch decision.Action {
	case negotiation.ActionAccept:
		data["final_rate"] = decision.FinalRate
	case negotiation.ActionCounterOffer:
		data["counter_rate"] = decision.CounterRate
	case negotiation.ActionDeclineContinue:
		data["min_rate"] = decision.MinRate
	case negotiation.ActionTransferToRep:
		data["reason"] = decision.Reason
	}
	return Envelope{Success: true, Message: decision.Message, Data: data}
}

func (d *Dispatcher) bookLoad(ctx context.Context, ev Event) Envelope {
	var p BookLoadParams
	if err := d.decode(ev, &p); err != nil {
		return fail("load_id, mc_number and agreed_rate are required")
	}

	// Booking requires an eligible carrier on this session before any
	// load state changes hands.
	snap, ok := d.Sessions.Snapshot(ev.SessionID)
	if !ok || snap.Verification == nil || !snap.Verification.Eligible {
		return fail("Carrier must be verified before booking")
	}

	load, err := d.Loads.GetLoad(ctx, p.LoadID)
	if err != nil {
		if errors.Is(err, db.ErrLoadNotFound) {
			return fail("Load not found")
		}
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("load_id", p.LoadID).Msg("load lookup failed")
		return fail("Unable to book load at this time")
	}
	if p.AgreedRate < negotiation.MinAcceptable(load.LoadboardRate) {
		return fail("Agreed rate is below the minimum acceptable rate for this load")
	}

	booking, err := d.Loads.TryBook(ctx, p.LoadID, p.MCNumber, p.AgreedRate)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrLoadNotFound):
			return fail("Load not found")
		case errors.Is(err, db.ErrLoadNotAvailable):
			return fail("Load is no longer available")
		default:
			d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("load_id", p.LoadID).Msg("booking failed")
			return fail("Unable to book load at this time")
		}
	}

	err = d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
		return s.RecordBooking(p.LoadID, p.AgreedRate)
	})
	if err != nil {
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Str("load_id", p.LoadID).Msg("booking recorded on load but not on session")
	}

	return Envelope{
		Success: true,
		Message: "Load booked successfully",
		Data: map[string]any{
			"booking_id":  booking.ID,
			"load_id":     booking.LoadID,
			"mc_number":   booking.MCNumber,
			"agreed_rate": booking.AgreedRate,
		},
	}
}

func (d *Dispatcher) logCall(ctx context.Context, ev Event) Envelope {
	var p LogCallParams
	if err := d.decode(ev, &p); err != nil {
		return fail("outcome is required to log a call")
	}
	outcome := models.CallOutcome(p.Outcome)
	if !outcome.Valid() {
		return fail(fmt.Sprintf("unknown call outcome %q", p.Outcome))
	}

	var closed session.CallSession
	err := d.Sessions.Update(ev.SessionID, func(s *session.CallSession) error {
		if err := s.Close(outcome, p.Sentiment, p.FinalRate); err != nil {
			return err
		}
		closed = *s
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrNotVerified) {
			return fail("A booked outcome requires a verified carrier on this call")
		}
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Msg("session close failed")
		return fail("Failed to log call data")
	}

	cl := models.CallLog{
		CallID:            ev.SessionID,
		MCNumber:          p.MCNumber,
		LoadID:            p.LoadID,
		Outcome:           closed.Outcome,
		Sentiment:         closed.Sentiment,
		FinalRate:         closed.FinalRate,
		NegotiationRounds: len(closed.Attempts),
		DurationSeconds:   p.DurationSeconds,
		Transcript:        p.Transcript,
		CreatedAt:         time.Now().UTC(),
	}
	if closed.Verification != nil {
		if cl.MCNumber == nil {
			mc := closed.Verification.MCNumber
			cl.MCNumber = &mc
		}
		name := closed.Verification.CarrierName
		cl.CarrierName = &name
	}
	if cl.LoadID == nil && closed.LoadID != "" {
		id := closed.LoadID
		cl.LoadID = &id
	}
	if len(closed.Attempts) > 0 {
		first := closed.Attempts[0].OfferedRate
		cl.InitialOffer = &first
		if history, err := json.Marshal(closed.Attempts); err == nil {
			cl.History = history
		}
	}

	if err := d.CallLogs.InsertCallLog(ctx, cl); err != nil {
		d.Logger.Error().Err(err).Str("session_id", ev.SessionID).Msg("call log persistence failed")
		return fail("Failed to log call data")
	}

	return Envelope{
		Success: true,
		Message: "Call data logged successfully",
		Data:    map[string]any{"outcome": closed.Outcome, "rounds": len(closed.Attempts)},
	}
}
