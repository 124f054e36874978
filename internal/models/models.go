package models

import (
	"encoding/json"
	"time"
)

type LoadStatus string

const (
	LoadAvailable LoadStatus = "available"
	LoadBooked    LoadStatus = "booked"
	LoadInTransit LoadStatus = "in_transit"
	LoadDelivered LoadStatus = "delivered"
	LoadCancelled LoadStatus = "cancelled"
)

type CallOutcome string

const (
	OutcomeBooked             CallOutcome = "booked"
	OutcomeNegotiationFailed  CallOutcome = "negotiation_failed"
	OutcomeNotInterested      CallOutcome = "not_interested"
	OutcomeTransferred        CallOutcome = "transferred"
	OutcomeDropped            CallOutcome = "dropped"
	OutcomeVerificationFailed CallOutcome = "verification_failed"
)

func (o CallOutcome) Valid() bool {
	switch o {
	case OutcomeBooked, OutcomeNegotiationFailed, OutcomeNotInterested,
		OutcomeTransferred, OutcomeDropped, OutcomeVerificationFailed:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Load is a bookable freight shipment. LoadID is the only identifier that
// crosses the API boundary; the database surrogate key stays internal.
type Load struct {
	LoadID           string     `json:"load_id"`
	Origin           string     `json:"origin"`
	Destination      string     `json:"destination"`
	PickupDatetime   time.Time  `json:"pickup_datetime"`
	DeliveryDatetime time.Time  `json:"delivery_datetime"`
	EquipmentType    string     `json:"equipment_type"`
	LoadboardRate    float64    `json:"loadboard_rate"`
	Notes            string     `json:"notes,omitempty"`
	Weight           float64    `json:"weight"`
	CommodityType    string     `json:"commodity_type"`
	NumOfPieces      int        `json:"num_of_pieces"`
	Miles            float64    `json:"miles"`
	Dimensions       string     `json:"dimensions"`
	Status           LoadStatus `json:"status"`
	BookedMCNumber   *string    `json:"booked_mc_number,omitempty"`
	BookedRate       *float64   `json:"booked_rate,omitempty"`
	BookedAt         *time.Time `json:"booked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LoadSummary is the trimmed field subset read out to the voice agent.
type LoadSummary struct {
	LoadID      string    `json:"load_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Rate        float64   `json:"rate"`
	Pickup      time.Time `json:"pickup"`
	Delivery    time.Time `json:"delivery"`
	Miles       float64   `json:"miles"`
	Weight      float64   `json:"weight"`
	Commodity   string    `json:"commodity"`
}

func (l Load) Summary() LoadSummary {
	return LoadSummary{
		LoadID:      l.LoadID,
		Origin:      l.Origin,
		Destination: l.Destination,
		Rate:        l.LoadboardRate,
		Pickup:      l.PickupDatetime,
		Delivery:    l.DeliveryDatetime,
		Miles:       l.Miles,
		Weight:      l.Weight,
		Commodity:   l.CommodityType,
	}
}

type SearchCriteria struct {
	Origin        string
	Destination   string
	EquipmentType string
	MinRate       *float64
	MaxRate       *float64
	Limit         int
}

// Booking is the audit row written once a load flips available → booked.
type Booking struct {
	ID           string    `json:"id"`
	LoadID       string    `json:"load_id"`
	MCNumber     string    `json:"mc_number"`
	AgreedRate   float64   `json:"agreed_rate"`
	OriginalRate float64   `json:"original_rate"`
	BookedAt     time.Time `json:"booked_at"`
}

type CallLog struct {
	CallID            string          `json:"call_id"`
	MCNumber          *string         `json:"mc_number,omitempty"`
	CarrierName       *string         `json:"carrier_name,omitempty"`
	LoadID            *string         `json:"load_id,omitempty"`
	Outcome           CallOutcome     `json:"outcome"`
	Sentiment         *Sentiment      `json:"sentiment,omitempty"`
	InitialOffer      *float64        `json:"initial_offer,omitempty"`
	FinalRate         *float64        `json:"final_rate,omitempty"`
	NegotiationRounds int             `json:"negotiation_rounds"`
	History           json.RawMessage `json:"negotiation_history,omitempty"`
	DurationSeconds   *int            `json:"duration_seconds,omitempty"`
	Transcript        json.RawMessage `json:"transcript,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// CallEvent is an informational status update stored verbatim for audit.
type CallEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type LoadStats struct {
	TotalLoads      int               `json:"total_loads"`
	BookedToday     int               `json:"booked_today"`
	StatusBreakdown []LoadStatusGroup `json:"status_breakdown"`
}

type LoadStatusGroup struct {
	Status  LoadStatus `json:"status"`
	Count   int        `json:"count"`
	AvgRate float64    `json:"avg_rate"`
}
