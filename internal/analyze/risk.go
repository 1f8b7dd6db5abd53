package analyze

import (
	"fmt"
	"strconv"
	"strings"
)

// Risk is the classification derived from an address's abuse fields.
type Risk struct {
	Score   int
	Level   string
	Color   string
	Factors string
}

// Levels and bootstrap-style color tags used across results and exports.
const (
	RiskLevelHigh    = "high risk"
	RiskLevelMedium  = "medium risk"
	RiskLevelLow     = "low risk"
	RiskLevelNormal  = "normal"
	RiskLevelUnknown = "unknown"

	RiskColorDanger    = "danger"
	RiskColorWarning   = "warning"
	RiskColorInfo      = "info"
	RiskColorSuccess   = "success"
	RiskColorSecondary = "secondary"

	riskFactorsNone = "none"
)

// ClassifyRisk scores an address from its abuse confidence (a "<n>%" string;
// sentinel values contribute nothing) and total report count (a decimal
// string; non-numeric values contribute nothing). Deterministic: the same
// inputs always produce the same Risk.
func ClassifyRisk(confidence, totalReports string) Risk {
	score := 0
	var factors []string

	if strings.HasSuffix(confidence, "%") {
		if n, err := strconv.Atoi(strings.TrimSuffix(confidence, "%")); err == nil {
			switch {
			case n >= 75:
				score += 50
				factors = append(factors, fmt.Sprintf("high malicious confidence(%d%%)", n))
			case n >= 25:
				score += 25
				factors = append(factors, fmt.Sprintf("medium malicious confidence(%d%%)", n))
			case n > 0:
				score += 10
				factors = append(factors, fmt.Sprintf("low malicious confidence(%d%%)", n))
			}
		}
	}

	if n, err := strconv.Atoi(totalReports); err == nil && n >= 0 {
		switch {
		case n >= 10:
			score += 20
			factors = append(factors, fmt.Sprintf("multiple reports(%d)", n))
		case n >= 5:
			score += 10
			factors = append(factors, fmt.Sprintf("reported(%d)", n))
		}
	}

	risk := Risk{Score: score, Factors: riskFactorsNone}
	switch {
	case score >= 50:
		risk.Level, risk.Color = RiskLevelHigh, RiskColorDanger
	case score >= 25:
		risk.Level, risk.Color = RiskLevelMedium, RiskColorWarning
	case score >= 10:
		risk.Level, risk.Color = RiskLevelLow, RiskColorInfo
	default:
		risk.Level, risk.Color = RiskLevelNormal, RiskColorSuccess
	}
	if len(factors) > 0 {
		risk.Factors = strings.Join(factors, "; ")
	}
	return risk
}
