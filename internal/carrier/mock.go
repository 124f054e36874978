package carrier

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockGateway produces deterministic registry results keyed off the MC
// number, for local runs without an FMCSA web key.
type MockGateway struct{}

func (m MockGateway) Check(ctx context.Context, mcNumber string) (Verification, error) {
	h := hashMC(mcNumber)

	names := []string{"Sunrise Freight LLC", "Blue Ridge Haulers Inc", "Prairie Line Transport", "Cascade Carriers Co"}
	ratings := []string{"Satisfactory", "Conditional", "Not Rated"}

	return Verification{
		MCNumber:     mcNumber,
		Eligible:     h%5 != 0,
		CarrierName:  fmt.Sprintf("%s (MC %s)", names[int(h/3)%len(names)], mcNumber),
		SafetyRating: ratings[int(h/7)%len(ratings)],
	}, nil
}

func hashMC(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
