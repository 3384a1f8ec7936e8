package model

// FindingTool identifies which analysis pass produced a finding.
type FindingTool string

const (
	FindingToolLint     FindingTool = "lint"
	FindingToolSecurity FindingTool = "security"
)

type FindingSeverity string

const (
	SeverityInfo    FindingSeverity = "info"
	SeverityWarning FindingSeverity = "warning"
	SeverityError   FindingSeverity = "error"
)

// Finding is a single issue reported by the critic.
type Finding struct {
	Tool     FindingTool     `json:"tool"`
	Severity FindingSeverity `json:"severity"`
	Message  string          `json:"message"`
	// Location is "line:col" (col may be omitted) within the checked source.
	Location string `json:"location"`
}

// Blocking reports whether this finding alone fails validation.
// Security findings always block; lint findings block only at error severity.
func (f Finding) Blocking() bool {
	if f.Tool == FindingToolSecurity {
		return true
	}
	return f.Severity == SeverityError
}

// ValidationResult is the critic's verdict on a generated code artifact.
// It is a value object, embedded as a job artifact.
type ValidationResult struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings,omitempty"`
}

// FailureSummary renders blocking findings as feedback for the next
// code-generation attempt.
func (v ValidationResult) FailureSummary() string {
	if v.Passed {
		return ""
	}
	out := ""
	for _, f := range v.Findings {
		if !f.Blocking() {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += "- [" + string(f.Tool) + "] " + f.Message
		if f.Location != "" {
			out += " (line " + f.Location + ")"
		}
	}
	return out
}
