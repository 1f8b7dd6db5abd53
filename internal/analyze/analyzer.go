// Package analyze turns one IP address into a full AnalysisRecord by
// sequencing the lookup providers and the risk classifier.
package analyze

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ipscope/ipscope/internal/lookup"
	"github.com/ipscope/ipscope/pkg/types"
)

// TimestampFormat is the layout used for record timestamps.
const TimestampFormat = "2006-01-02 15:04:05"

type ReverseDNSLookup interface {
	Lookup(ctx context.Context, ip string) string
}

type GeoLookup interface {
	Lookup(ctx context.Context, ip string) lookup.GeoInfo
}

type AbuseLookup interface {
	Lookup(ctx context.Context, ip string) lookup.AbuseInfo
}

// Analyzer runs the per-address pipeline: reverse DNS, geolocation, abuse
// reputation, then risk classification. The pacing limiter is shared across
// all tasks so aggregate outbound traffic stays at one lookup pipeline per
// interval regardless of how many batches run concurrently.
type Analyzer struct {
	rdns  ReverseDNSLookup
	geo   GeoLookup
	abuse AbuseLookup
	pace  *rate.Limiter
	now   func() time.Time
}

func New(rdns ReverseDNSLookup, geo GeoLookup, abuse AbuseLookup, pace *rate.Limiter) *Analyzer {
	return &Analyzer{rdns: rdns, geo: geo, abuse: abuse, pace: pace, now: time.Now}
}

// NewPacer builds the shared pacing limiter for a fixed inter-address delay.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Analyze produces the record for one address. All three providers run in
// order even when earlier ones come back empty; afterwards the analyzer
// waits once on the pacing limiter regardless of lookup outcomes. A
// cancelled context only shortens the pacing wait; the record is returned
// either way.
func (a *Analyzer) Analyze(ctx context.Context, ip string) types.AnalysisRecord {
	rec := types.AnalysisRecord{
		IP:        ip,
		Timestamp: a.now().Format(TimestampFormat),
	}

	rec.DNSPtr = a.rdns.Lookup(ctx, ip)

	geo := a.geo.Lookup(ctx, ip)
	rec.Country = geo.Country
	rec.Region = geo.Region
	rec.City = geo.City
	rec.Location = geo.Location
	rec.Timezone = geo.Timezone
	rec.Postal = geo.Postal
	rec.Org = geo.Org
	rec.ASN = geo.ASN
	rec.ISP = geo.ISP

	abuse := a.abuse.Lookup(ctx, ip)
	rec.AbuseConfidence = abuse.Confidence
	rec.UsageType = abuse.UsageType
	rec.TotalReports = abuse.TotalReports
	rec.LastReported = abuse.LastReported
	rec.IsWhitelisted = abuse.IsWhitelisted
	rec.CountryMatch = abuse.CountryMatch

	risk := ClassifyRisk(rec.AbuseConfidence, rec.TotalReports)
	rec.RiskScore = risk.Score
	rec.RiskLevel = risk.Level
	rec.RiskColor = risk.Color
	rec.RiskFactors = risk.Factors

	if a.pace != nil {
		_ = a.pace.Wait(ctx)
	}
	return rec
}

// FailureRecord builds the record for an address whose analysis failed
// outright. It carries the error and an unknown risk level in a neutral
// color; the lookup fields stay blank.
func FailureRecord(ip string, errMsg string, at time.Time) types.AnalysisRecord {
	return types.AnalysisRecord{
		IP:           ip,
		Timestamp:    at.Format(TimestampFormat),
		Error:        errMsg,
		RiskLevel:    RiskLevelUnknown,
		RiskColor:    RiskColorSecondary,
		CountryMatch: true,
	}
}
