package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 8 * time.Second

// FMCSAGateway queries the FMCSA QCMobile carrier endpoint. Eligibility
// means the record is an active carrier; anything else, including an
// unknown MC number, is simply not eligible.
type FMCSAGateway struct {
	BaseURL string
	WebKey  string
	Timeout time.Duration
	Client  *http.Client
}

type fmcsaResponse struct {
	Content struct {
		Carrier struct {
			LegalName    string `json:"legalName"`
			EntityType   string `json:"entityType"`
			StatusCode   string `json:"statusCode"`
			SafetyRating string `json:"safetyRating"`
		} `json:"carrier"`
	} `json:"content"`
}

func (g FMCSAGateway) Check(ctx context.Context, mcNumber string) (Verification, error) {
	if g.Client == nil {
		g.Client = &http.Client{}
	}
	if g.BaseURL == "" {
		g.BaseURL = "https://mobile.fmcsa.dot.gov"
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/qc/services/carriers/%s?webKey=%s",
		strings.TrimRight(g.BaseURL, "/"), url.PathEscape(mcNumber), url.QueryEscape(g.WebKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Verification{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Verification{}, fmt.Errorf("fmcsa lookup timed out: %w", err)
		}
		return Verification{}, fmt.Errorf("fmcsa lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Verification{MCNumber: mcNumber, Eligible: false, CarrierName: "Unknown", SafetyRating: "Not Rated"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("fmcsa lookup returned %s", resp.Status)
	}

	var body fmcsaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Verification{}, fmt.Errorf("fmcsa response decode: %w", err)
	}

	c := body.Content.Carrier
	v := Verification{
		MCNumber:     mcNumber,
		Eligible:     c.EntityType == "CARRIER" && c.StatusCode == "ACTIVE",
		CarrierName:  c.LegalName,
		SafetyRating: c.SafetyRating,
	}
	if v.CarrierName == "" {
		v.CarrierName = "Unknown"
	}
	if v.SafetyRating == "" {
		v.SafetyRating = "Not Rated"
	}
	return v, nil
}
