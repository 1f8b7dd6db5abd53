package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultGeoBaseURL = "https://ipinfo.io"

// Geo queries an ipinfo.io-style geolocation endpoint.
type Geo struct {
	baseURL string
	client  *http.Client
}

func NewGeo(baseURL string, timeout time.Duration) *Geo {
	if baseURL == "" {
		baseURL = DefaultGeoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Geo{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches geolocation fields for ip. Any transport error or non-200
// response yields a zero GeoInfo.
func (g *Geo) Lookup(ctx context.Context, ip string) GeoInfo {
	u := fmt.Sprintf("%s/%s/json", g.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GeoInfo{}
	}
	req.Header.Set("User-Agent", "ipscope/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return GeoInfo{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GeoInfo{}
	}

	var body struct {
		Country  string `json:"country"`
		Region   string `json:"region"`
		City     string `json:"city"`
		Loc      string `json:"loc"`
		Timezone string `json:"timezone"`
		Postal   string `json:"postal"`
		Org      string `json:"org"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GeoInfo{}
	}

	info := GeoInfo{
		Country:  body.Country,
		Region:   body.Region,
		City:     body.City,
		Location: body.Loc,
		Timezone: body.Timezone,
		Postal:   body.Postal,
		Org:      body.Org,
		ISP:      body.Org,
	}
	if body.Org != "" {
		info.ASN = strings.Fields(body.Org)[0]
	}
	return info
}
