package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/carrierdesk/backend/internal/carrier"
	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/models"
	"github.com/carrierdesk/backend/internal/negotiation"
	"github.com/carrierdesk/backend/internal/session"
)

type stubGateway struct {
	result carrier.Verification
	err    error
}

func (g stubGateway) Check(ctx context.Context, mcNumber string) (carrier.Verification, error) {
	if g.err != nil {
		return carrier.Verification{}, g.err
	}
	v := g.result
	v.MCNumber = mcNumber
	return v, nil
}

func testLoad(id string, rate float64) models.Load {
	now := time.Now().UTC()
	return models.Load{
		LoadID:           id,
		Origin:           "Chicago, IL",
		Destination:      "Atlanta, GA",
		PickupDatetime:   now.Add(24 * time.Hour),
		DeliveryDatetime: now.Add(48 * time.Hour),
		EquipmentType:    "Dry Van",
		LoadboardRate:    rate,
		Weight:           35000,
		CommodityType:    "General Freight",
		NumOfPieces:      24,
		Miles:            716,
		Dimensions:       "48x40x48",
		Status:           models.LoadAvailable,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func newDispatcher(store *db.MemStore, gw carrier.Gateway) *Dispatcher {
	return &Dispatcher{
		Loads:     store,
		CallLogs:  store,
		Gateway:   gw,
		Sessions:  session.NewStore(),
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}
}

func eligibleGateway() stubGateway {
	return stubGateway{result: carrier.Verification{
		Eligible:     true,
		CarrierName:  "Test Carrier LLC",
		SafetyRating: "Satisfactory",
	}}
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return b
}

func verify(t *testing.T, d *Dispatcher, sessionID, mc string) {
	t.Helper()
	env := d.Dispatch(context.Background(), Event{
		SessionID:  sessionID,
		Action:     "verify_carrier",
		Parameters: params(t, map[string]any{"mc_number": mc}),
	})
	if !env.Success {
		t.Fatalf("verify failed: %+v", env)
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{SessionID: "s1", Action: "bogus"})
	if env.Success {
		t.Fatalf("expected failure envelope, got %+v", env)
	}
	if env.Message != "unknown action" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestDispatchRequiresSessionID(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{Action: "search_loads"})
	if env.Success {
		t.Fatalf("expected failure, got %+v", env)
	}
}

func TestVerifyCarrier(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "verify_carrier",
		Parameters: params(t, map[string]any{"mc_number": "123456"}),
	})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if env.Data["is_eligible"] != true {
		t.Fatalf("expected eligible, got %+v", env.Data)
	}

	snap, ok := d.Sessions.Snapshot("s1")
	if !ok || snap.State != session.StateVerified {
		t.Fatalf("session not verified: %+v", snap)
	}
}

func TestVerifyCarrierMissingMCNumber(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{SessionID: "s1", Action: "verify_carrier"})
	if env.Success {
		t.Fatalf("expected failure, got %+v", env)
	}
}

func TestVerifyCarrierRegistryDown(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), stubGateway{err: errors.New("dial timeout")})
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "verify_carrier",
		Parameters: params(t, map[string]any{"mc_number": "123456"}),
	})
	if env.Success {
		t.Fatalf("expected recoverable failure, got %+v", env)
	}
	if env.Data["reason"] != "registry_unavailable" {
		t.Fatalf("expected distinguishable reason, got %+v", env.Data)
	}
	// No result recorded; the event can be re-issued.
	snap, ok := d.Sessions.Snapshot("s1")
	if !ok || snap.State != session.StateVerifying || snap.Verification != nil {
		t.Fatalf("session must stay verifying with no result, got %+v", snap)
	}

	d.Gateway = eligibleGateway()
	verify(t, d, "s1", "123456")
	snap, _ = d.Sessions.Snapshot("s1")
	if snap.State != session.StateVerified {
		t.Fatalf("re-issued verification must succeed, got %+v", snap)
	}
}

func TestSearchLoadsOrderedAndCapped(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-4", 2400))
	store.PutLoad(testLoad("LD-1", 2500))
	store.PutLoad(testLoad("LD-2", 1800))
	store.PutLoad(testLoad("LD-3", 2100))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "search_loads",
		Parameters: params(t, map[string]any{"origin": "chicago"}),
	})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	loads := env.Data["loads"].([]models.LoadSummary)
	if len(loads) != 3 {
		t.Fatalf("expected voice cap of 3 results, got %d", len(loads))
	}
	if loads[0].LoadID != "LD-2" || loads[1].LoadID != "LD-3" || loads[2].LoadID != "LD-4" {
		t.Fatalf("expected rate-ascending order, got %+v", loads)
	}

	snap, _ := d.Sessions.Snapshot("s1")
	if len(snap.PresentedLoadIDs) != 3 {
		t.Fatalf("expected presented load ids recorded, got %+v", snap.PresentedLoadIDs)
	}
}

func TestSearchLoadsNoMatches(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "search_loads",
		Parameters: params(t, map[string]any{"origin": "nowhere"}),
	})
	if !env.Success {
		t.Fatalf("no matches is not a failure: %+v", env)
	}
	if env.Message != "No loads currently available matching your criteria" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestNegotiateRateFlow(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 100))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 90, "negotiation_round": 1}),
	})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}
	if env.Data["action"] != negotiation.ActionCounterOffer {
		t.Fatalf("expected counter, got %+v", env.Data)
	}
	if env.Data["counter_rate"] != 93.0 {
		t.Fatalf("expected counter 93.0, got %v", env.Data["counter_rate"])
	}
}

func TestNegotiateRateOutOfSequence(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 100))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	round := func(n int) Envelope {
		return d.Dispatch(context.Background(), Event{
			SessionID:  "s1",
			Action:     "negotiate_rate",
			Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 90, "negotiation_round": n}),
		})
	}

	if env := round(1); !env.Success {
		t.Fatalf("round 1: %+v", env)
	}
	if env := round(1); env.Success {
		t.Fatalf("replayed round must fail: %+v", env)
	}
	if env := round(3); env.Success {
		t.Fatalf("skipped round must fail: %+v", env)
	}

	snap, _ := d.Sessions.Snapshot("s1")
	if len(snap.Attempts) != 1 {
		t.Fatalf("rejected rounds must not mutate, got %d attempts", len(snap.Attempts))
	}
	if env := round(2); !env.Success {
		t.Fatalf("round 2 after rejects: %+v", env)
	}
}

func TestNegotiateRateUnverifiedSession(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 100))
	d := newDispatcher(store, eligibleGateway())

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 90, "negotiation_round": 1}),
	})
	if env.Success {
		t.Fatalf("expected failure for unverified carrier, got %+v", env)
	}
}

func TestNegotiateRateUnknownLoad(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	verify(t, d, "s1", "123456")
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-404", "offered_rate": 90, "negotiation_round": 1}),
	})
	if env.Success || env.Message != "Load not found" {
		t.Fatalf("expected load not found, got %+v", env)
	}
}

func TestBookLoad(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 1000))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "book_load",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "123456", "agreed_rate": 950}),
	})
	if !env.Success {
		t.Fatalf("expected booking success, got %+v", env)
	}

	load, _ := store.GetLoad(context.Background(), "LD-1")
	if load.Status != models.LoadBooked {
		t.Fatalf("load not booked: %+v", load)
	}
	snap, _ := d.Sessions.Snapshot("s1")
	if snap.Outcome != models.OutcomeBooked || snap.FinalRate == nil || *snap.FinalRate != 950 {
		t.Fatalf("session not booked: %+v", snap)
	}

	// A second booking against the same load conflicts.
	d2 := newDispatcher(store, eligibleGateway())
	verify(t, d2, "s2", "654321")
	env = d2.Dispatch(context.Background(), Event{
		SessionID:  "s2",
		Action:     "book_load",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "654321", "agreed_rate": 960}),
	})
	if env.Success || env.Message != "Load is no longer available" {
		t.Fatalf("expected conflict, got %+v", env)
	}
}

func TestBookLoadRejectsRateBelowFloor(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 1000))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "book_load",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "123456", "agreed_rate": 800}),
	})
	if env.Success {
		t.Fatalf("expected floor rejection, got %+v", env)
	}
	load, _ := store.GetLoad(context.Background(), "LD-1")
	if load.Status != models.LoadAvailable {
		t.Fatalf("load must stay available, got %s", load.Status)
	}
}

func TestBookLoadRequiresVerifiedSession(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 1000))
	d := newDispatcher(store, eligibleGateway())

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "book_load",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "123456", "agreed_rate": 950}),
	})
	if env.Success {
		t.Fatalf("expected failure, got %+v", env)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 1000))

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan string, callers)
	for i := 0; i < callers; i++ {
		sessionID := string(rune('a' + i))
		d := newDispatcher(store, eligibleGateway())
		verify(t, d, sessionID, "12345"+sessionID)
		wg.Add(1)
		go func(d *Dispatcher, sid string) {
			defer wg.Done()
			env := d.Dispatch(context.Background(), Event{
				SessionID:  sid,
				Action:     "book_load",
				Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "MC-" + sid, "agreed_rate": 990}),
			})
			if env.Success {
				wins <- sid
			}
		}(d, sessionID)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	if got := len(store.Bookings()); got != 1 {
		t.Fatalf("expected one booking row, got %d", got)
	}
}

func TestLogCallAndTerminalReplay(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 100))
	d := newDispatcher(store, eligibleGateway())
	verify(t, d, "s1", "123456")

	_ = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 80, "negotiation_round": 1}),
	})
	_ = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 82, "negotiation_round": 2}),
	})

	env := d.Dispatch(context.Background(), Event{
		SessionID: "s1",
		Action:    "log_call",
		Parameters: params(t, map[string]any{
			"outcome":   "transferred",
			"sentiment": "neutral",
		}),
	})
	if !env.Success {
		t.Fatalf("log_call failed: %+v", env)
	}

	cl, ok := store.CallLog("s1")
	if !ok {
		t.Fatalf("call log not persisted")
	}
	if cl.Outcome != models.OutcomeTransferred || cl.NegotiationRounds != 2 {
		t.Fatalf("unexpected call log: %+v", cl)
	}
	if cl.InitialOffer == nil || *cl.InitialOffer != 80 {
		t.Fatalf("expected initial offer 80, got %+v", cl.InitialOffer)
	}
	if cl.CarrierName == nil || *cl.CarrierName != "Test Carrier LLC" {
		t.Fatalf("expected carrier name from verification, got %+v", cl.CarrierName)
	}

	// Further events replay the stored outcome without mutating.
	env = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "negotiate_rate",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "offered_rate": 95, "negotiation_round": 3}),
	})
	if !env.Success || env.Data["outcome"] != models.OutcomeTransferred {
		t.Fatalf("expected terminal replay, got %+v", env)
	}
	snap, _ := d.Sessions.Snapshot("s1")
	if len(snap.Attempts) != 2 {
		t.Fatalf("terminal session must not accept attempts, got %d", len(snap.Attempts))
	}

	env = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "log_call",
		Parameters: params(t, map[string]any{"outcome": "booked"}),
	})
	if !env.Success || env.Data["outcome"] != models.OutcomeTransferred {
		t.Fatalf("repeated log_call must return stored outcome, got %+v", env)
	}
}

func TestLogCallBookedRequiresVerification(t *testing.T) {
	store := db.NewMemStore()
	d := newDispatcher(store, eligibleGateway())

	// A booked outcome as the very first event of a session has no
	// verification behind it and must be rejected.
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "log_call",
		Parameters: params(t, map[string]any{"outcome": "booked", "final_rate": 950}),
	})
	if env.Success {
		t.Fatalf("expected rejection of unverified booked outcome, got %+v", env)
	}
	if snap, ok := d.Sessions.Snapshot("s1"); ok && snap.Terminal() {
		t.Fatalf("session must not reach a terminal state: %+v", snap)
	}
	if _, ok := store.CallLog("s1"); ok {
		t.Fatalf("no call log may be persisted for the rejected outcome")
	}

	verify(t, d, "s1", "123456")
	env = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "log_call",
		Parameters: params(t, map[string]any{"outcome": "booked", "final_rate": 950}),
	})
	if !env.Success {
		t.Fatalf("booked outcome after verification: %+v", env)
	}
}

func TestLogCallUnknownOutcome(t *testing.T) {
	d := newDispatcher(db.NewMemStore(), eligibleGateway())
	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "log_call",
		Parameters: params(t, map[string]any{"outcome": "vanished"}),
	})
	if env.Success {
		t.Fatalf("expected rejection of unknown outcome, got %+v", env)
	}
}

func TestIneligibleCarrierCannotProceed(t *testing.T) {
	store := db.NewMemStore()
	store.PutLoad(testLoad("LD-1", 100))
	gw := stubGateway{result: carrier.Verification{Eligible: false, CarrierName: "Revoked Freight", SafetyRating: "Unsatisfactory"}}
	d := newDispatcher(store, gw)

	env := d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "verify_carrier",
		Parameters: params(t, map[string]any{"mc_number": "999999"}),
	})
	if !env.Success || env.Data["is_eligible"] != false {
		t.Fatalf("expected success with is_eligible=false, got %+v", env)
	}

	// Failed verification is terminal, so a booking attempt replays the
	// stored outcome and the load never changes hands.
	env = d.Dispatch(context.Background(), Event{
		SessionID:  "s1",
		Action:     "book_load",
		Parameters: params(t, map[string]any{"load_id": "LD-1", "mc_number": "999999", "agreed_rate": 100}),
	})
	if env.Data["outcome"] != models.OutcomeVerificationFailed {
		t.Fatalf("expected verification_failed replay, got %+v", env)
	}
	load, _ := store.GetLoad(context.Background(), "LD-1")
	if load.Status != models.LoadAvailable {
		t.Fatalf("load must stay available, got %s", load.Status)
	}
}
