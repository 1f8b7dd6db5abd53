package types

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // Created, runner not started
	TaskStatusRunning   TaskStatus = "running"   // Runner is iterating addresses
	TaskStatusCompleted TaskStatus = "completed" // All addresses analyzed
	TaskStatusError     TaskStatus = "error"     // Runner-level fault
	TaskStatusCancelled TaskStatus = "cancelled" // Stopped early, partial results kept
)

// IsTerminal returns true if the task status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusError, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive returns true if the task is still being worked on.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning:
		return true
	default:
		return false
	}
}

// Task is the status snapshot returned by the API. Results are fetched
// separately once the task is terminal.
type Task struct {
	ID          string         `json:"id"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Total       int            `json:"total"`
	Completed   int            `json:"completed"`
	CurrentIP   string         `json:"current_ip,omitempty"`
	IPCount     int            `json:"ip_count"`
	IPVersions  map[string]int `json:"ip_versions,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// AnalysisRecord is the full result for one address. A record produced from
// a per-address failure carries only IP, Timestamp, Error and the risk
// fields; everything else is left blank.
type AnalysisRecord struct {
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
	DNSPtr    string `json:"dns_ptr,omitempty"`

	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Location string `json:"location,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Postal   string `json:"postal,omitempty"`
	Org      string `json:"org,omitempty"`
	ASN      string `json:"asn,omitempty"`
	ISP      string `json:"isp,omitempty"`

	AbuseConfidence string `json:"abuse_confidence,omitempty"`
	UsageType       string `json:"usage_type,omitempty"`
	TotalReports    string `json:"total_reports,omitempty"`
	LastReported    string `json:"last_reported,omitempty"`
	IsWhitelisted   bool   `json:"is_whitelisted"`
	CountryMatch    bool   `json:"country_match"`

	RiskScore   int    `json:"risk_score"`
	RiskLevel   string `json:"risk_level"`
	RiskColor   string `json:"risk_color"`
	RiskFactors string `json:"risk_factors,omitempty"`

	Error string `json:"error,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/tasks. IPs is free-form text;
// the server extracts, validates and dedupes the address literals.
type SubmitRequest struct {
	IPs    string `json:"ips"`
	APIKey string `json:"api_key,omitempty"`
}

type SubmitResponse struct {
	TaskID     string         `json:"task_id"`
	IPCount    int            `json:"ip_count"`
	IPVersions map[string]int `json:"ip_versions"`
}
