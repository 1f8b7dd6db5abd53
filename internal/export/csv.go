// Package export renders analysis results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ipscope/ipscope/pkg/types"
)

// Columns is the canonical export schema. It is fixed: every row carries
// the same columns no matter which fields a record actually has, so a batch
// mixing failure records with successful ones still exports cleanly.
var Columns = []string{
	"ip", "timestamp", "dns_ptr",
	"country", "region", "city", "location", "timezone", "postal",
	"org", "asn", "isp",
	"abuse_confidence", "usage_type", "total_reports", "last_reported",
	"is_whitelisted", "country_match",
	"risk_score", "risk_level", "risk_color", "risk_factors",
	"error",
}

// WriteCSV writes a header row plus one row per record.
func WriteCSV(w io.Writer, records []types.AnalysisRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range records {
		if err := cw.Write(row(&records[i])); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename returns the attachment name for a task's export, keyed by the
// first id segment.
func Filename(taskID string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("ip_analysis_%s.csv", short)
}

func row(r *types.AnalysisRecord) []string {
	return []string{
		r.IP, r.Timestamp, r.DNSPtr,
		r.Country, r.Region, r.City, r.Location, r.Timezone, r.Postal,
		r.Org, r.ASN, r.ISP,
		r.AbuseConfidence, r.UsageType, r.TotalReports, r.LastReported,
		strconv.FormatBool(r.IsWhitelisted), strconv.FormatBool(r.CountryMatch),
		strconv.Itoa(r.RiskScore), r.RiskLevel, r.RiskColor, r.RiskFactors,
		r.Error,
	}
}
