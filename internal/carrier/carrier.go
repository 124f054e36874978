// Package carrier looks up motor-carrier eligibility in the FMCSA
// registry. The registry is an external black box; this package only
// adapts it behind Gateway.
package carrier

import "context"

type Verification struct {
	MCNumber     string `json:"mc_number"`
	Eligible     bool   `json:"is_eligible"`
	CarrierName  string `json:"carrier_name"`
	SafetyRating string `json:"safety_rating"`
}

type Gateway interface {
	// Check resolves an MC number. A carrier that is unknown to the
	// registry comes back with Eligible=false and a nil error; a non-nil
	// error means the registry itself could not be reached.
	Check(ctx context.Context, mcNumber string) (Verification, error)
}
