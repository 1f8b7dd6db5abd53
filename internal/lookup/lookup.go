// Package lookup implements the external data providers used to analyze an
// address: reverse DNS, geolocation, and abuse reputation. Provider failures
// never cross the package boundary as errors; they degrade to empty or
// sentinel field sets so a bad provider cannot abort a batch.
package lookup

// GeoInfo holds geolocation fields for one address. The zero value means
// the lookup yielded nothing.
type GeoInfo struct {
	Country  string
	Region   string
	City     string
	Location string
	Timezone string
	Postal   string
	Org      string
	ASN      string
	ISP      string
}

// AbuseInfo holds abuse-reputation fields for one address. Confidence is
// either a percentage string like "53%" or one of the sentinel values
// ("not configured", "rate limited", "API error(<status>)", "lookup failed").
type AbuseInfo struct {
	Confidence    string
	UsageType     string
	TotalReports  string
	LastReported  string
	IsWhitelisted bool
	CountryMatch  bool
}
