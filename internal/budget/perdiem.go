// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/grant-engine/internal/httputil"
)

// DefaultGSABaseURL is the GSA per-diem rates API.
const DefaultGSABaseURL = "https://api.gsa.gov/travel/perdiem/v2/rates"

// GSATimeout bounds each per-diem request.
const GSATimeout = 10 * time.Second

// ErrNoAPIKey is returned when no GSA API key is configured.
var ErrNoAPIKey = errors.New("no GSA API key configured")

// Rates are daily lodging and meals & incidentals rates.
type Rates struct {
	Lodging float64 `json:"lodging"`
	MIE     float64 `json:"mie"`
}

type rateKey struct {
	city, state string
	fy, month   int
}

// GSAClient looks up per-diem rates. Successful lookups are cached for the
// life of the client.
type GSAClient struct {
	BaseURL string
	APIKey  string

	client *http.Client

	mu    sync.Mutex
	cache map[rateKey]Rates
}

// NewGSAClient returns a client for the public GSA API.
func NewGSAClient(apiKey string) *GSAClient {
	return &GSAClient{
		BaseURL: DefaultGSABaseURL,
		APIKey:  apiKey,
		client:  httputil.NewClient(GSATimeout),
		cache:   make(map[rateKey]Rates),
	}
}

// gsaRate is one rate record. The API nests records under rates[].rate[];
// older responses put the fields directly on rates[].
type gsaRate struct {
	Meals   float64 `json:"meals"`
	Lodging float64 `json:"lodging"`
	Months  struct {
		Month []struct {
			Value  float64 `json:"value"`
			Number int     `json:"number"`
		} `json:"month"`
	} `json:"months"`
}

type gsaResponse struct {
	Rates []struct {
		gsaRate
		Rate []gsaRate `json:"rate"`
	} `json:"rates"`
}

// Rates returns the lodging and M&IE rates for a city. month (1-12) selects
// a seasonal lodging rate; 0 uses the standard rate.
func (c *GSAClient) Rates(ctx context.Context, city, state string, fiscalYear, month int) (Rates, error) {
	if c.APIKey == "" {
		return Rates{}, ErrNoAPIKey
	}
	key := rateKey{strings.ToLower(city), strings.ToUpper(state), fiscalYear, month}

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	u := fmt.Sprintf("%s/city/%s/%s?%s", strings.TrimRight(c.BaseURL, "/"),
		url.PathEscape(state), url.PathEscape(city),
		url.Values{"fy": {strconv.Itoa(fiscalYear)}, "api_key": {c.APIKey}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Rates{}, fmt.Errorf("building GSA request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.client, req, 3)
	if err != nil {
		return Rates{}, fmt.Errorf("fetching GSA rates for %s, %s: %w", city, state, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("fetching GSA rates for %s, %s: HTTP %d", city, state, resp.StatusCode)
	}

	var body gsaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rates{}, fmt.Errorf("decoding GSA response: %w", err)
	}
	if len(body.Rates) == 0 {
		return Rates{}, fmt.Errorf("no GSA rates for %s, %s", city, state)
	}
	rec := body.Rates[0].gsaRate
	if len(body.Rates[0].Rate) > 0 {
		rec = body.Rates[0].Rate[0]
	}

	rates := Rates{MIE: rec.Meals, Lodging: lodgingFor(rec, month)}
	c.mu.Lock()
	c.cache[key] = rates
	c.mu.Unlock()
	return rates, nil
}

// lodgingFor picks the monthly lodging value for month, else the standard
// value. Without a standard value the highest monthly rate is used.
func lodgingFor(r gsaRate, month int) float64 {
	if month >= 1 && month <= 12 {
		for _, m := range r.Months.Month {
			if m.Number == month && m.Value > 0 {
				return m.Value
			}
		}
		if len(r.Months.Month) == 12 && r.Months.Month[month-1].Value > 0 {
			return r.Months.Month[month-1].Value
		}
	}
	if r.Lodging > 0 {
		return r.Lodging
	}
	var highest float64
	for _, m := range r.Months.Month {
		highest = max(highest, m.Value)
	}
	return highest
}
