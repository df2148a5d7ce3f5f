package chat

import "strings"

// RiskLevel is the three-value classification produced by the assessor.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel maps a raw token onto a known level.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW":
		return RiskLow, true
	case "MEDIUM":
		return RiskMedium, true
	case "HIGH":
		return RiskHigh, true
	default:
		return "", false
	}
}

// SafetyRecommendation is fixed policy copy appended to every verdict. It is
// never model-generated, so it cannot drift or hallucinate.
const SafetyRecommendation = "Recommendation: STOP – pause before you pay and never let anyone rush you into a transfer. " +
	"CHECK – verify the recipient through a channel you already trust, and inspect the payment link and website address carefully. " +
	"PROTECT – if anything feels off, do not pay; contact your bank and report the request."

// RiskVerdict is the final structured output for a completed session.
// Immutable once produced.
type RiskVerdict struct {
	Level     RiskLevel
	Rationale []string // 2-4 bullets from the assessment
}

// Render produces the fixed bullet format consumed by downstream clients:
//
//	**RISK LEVEL: HIGH**
//
//	• <rationale>
//	• Recommendation: STOP – ... CHECK – ... PROTECT – ...
func (v RiskVerdict) Render() string {
	var b strings.Builder
	b.WriteString("**RISK LEVEL: ")
	b.WriteString(string(v.Level))
	b.WriteString("**\n\n")
	for _, bullet := range v.Rationale {
		b.WriteString("• ")
		b.WriteString(bullet)
		b.WriteString("\n")
	}
	b.WriteString("• ")
	b.WriteString(SafetyRecommendation)
	return b.String()
}
