package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const DefaultAbuseBaseURL = "https://api.abuseipdb.com/api/v2"

// maxAgeInDays bounds how far back reports are counted by the reputation API.
const abuseMaxAgeDays = 90

// Abuse queries an AbuseIPDB-style reputation endpoint. Without an API key
// it never touches the network and reports a fixed "not configured" set.
type Abuse struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewAbuse(baseURL, apiKey string, timeout time.Duration) *Abuse {
	if baseURL == "" {
		baseURL = DefaultAbuseBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Abuse{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches abuse-reputation fields for ip. Every failure mode maps to
// a sentinel AbuseInfo; no error escapes.
func (a *Abuse) Lookup(ctx context.Context, ip string) AbuseInfo {
	if a.apiKey == "" {
		return sentinelAbuse("not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/check", nil)
	if err != nil {
		return sentinelAbuse("lookup failed")
	}
	q := req.URL.Query()
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", strconv.Itoa(abuseMaxAgeDays))
	q.Set("verbose", "")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Key", a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return sentinelAbuse("lookup failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return sentinelAbuse("rate limited")
	default:
		return sentinelAbuse(fmt.Sprintf("API error(%d)", resp.StatusCode))
	}

	var body struct {
		Data struct {
			AbuseConfidence int    `json:"abuseConfidencePercentage"`
			UsageType       string `json:"usageType"`
			TotalReports    int    `json:"totalReports"`
			LastReportedAt  string `json:"lastReportedAt"`
			IsWhitelisted   bool   `json:"isWhitelisted"`
			CountryMatch    *bool  `json:"countryMatch"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return sentinelAbuse("lookup failed")
	}

	d := body.Data
	info := AbuseInfo{
		Confidence:    fmt.Sprintf("%d%%", d.AbuseConfidence),
		UsageType:     d.UsageType,
		TotalReports:  strconv.Itoa(d.TotalReports),
		LastReported:  d.LastReportedAt,
		IsWhitelisted: d.IsWhitelisted,
		CountryMatch:  true,
	}
	if info.UsageType == "" {
		info.UsageType = "N/A"
	}
	if info.LastReported == "" {
		info.LastReported = "N/A"
	}
	if d.CountryMatch != nil {
		info.CountryMatch = *d.CountryMatch
	}
	return info
}

func sentinelAbuse(confidence string) AbuseInfo {
	return AbuseInfo{
		Confidence:   confidence,
		UsageType:    "N/A",
		TotalReports: "N/A",
		LastReported: "N/A",
		CountryMatch: true,
	}
}
