// ABOUTME: Suspicious pattern analysis over attestation structure and subject content
// ABOUTME: Flags scan-bypass signals, path traversal, missing fields, and untrusted builder origins
package tamper

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/scanseal/scanseal/internal/provenance"
)

// scanBypassToolThreshold is the declared tool count above which an empty
// findings set looks like a bypassed scan.
const scanBypassToolThreshold = 5

// CheckSuspiciousPatterns inspects a single attestation (and its subject
// file when available) for structural forgery signals.
func (d *Detector) CheckSuspiciousPatterns(subjectPath string, current *provenance.Statement) []Indicator {
	indicators := []Indicator{}

	// Many declared tools but an empty findings set suggests the scan was
	// bypassed. Only evaluated when the subject file is present and parseable.
	toolCount := declaredToolCount(current)
	if toolCount >= scanBypassToolThreshold {
		if findings, ok := countFindings(subjectPath); ok && findings == 0 {
			indicators = append(indicators, Indicator{
				Severity:    SeverityHigh,
				Kind:        KindSuspiciousPattern,
				Description: "Many tools declared but subject reports zero findings (possible scan bypass)",
				Evidence: map[string]any{
					"tool_count":     toolCount,
					"findings_count": findings,
				},
			})
		}
	}

	for _, subject := range current.Subject {
		if strings.Contains(subject.Name, "..") || strings.HasPrefix(subject.Name, "/") {
			indicators = append(indicators, Indicator{
				Severity:    SeverityHigh,
				Kind:        KindSuspiciousPattern,
				Description: "Subject name looks like a path traversal attempt",
				Evidence:    map[string]any{"subject_name": subject.Name},
			})
		}
	}

	missing := []string{}
	if current.Predicate.BuildDefinition == nil {
		missing = append(missing, "buildDefinition")
	}
	if current.Predicate.RunDetails == nil {
		missing = append(missing, "runDetails")
	}
	if len(current.Subject) == 0 {
		missing = append(missing, "subject")
	}
	if len(missing) > 0 {
		indicators = append(indicators, Indicator{
			Severity:    SeverityMedium,
			Kind:        KindMissingField,
			Description: "Attestation is missing required structure",
			Evidence:    map[string]any{"missing_fields": missing},
		})
	}

	if builder := statementBuilder(current); builder != nil {
		loweredID := strings.ToLower(builder.ID)
		if strings.Contains(loweredID, "localhost") || strings.HasPrefix(loweredID, "file://") {
			indicators = append(indicators, Indicator{
				Severity:    SeverityHigh,
				Kind:        KindSuspiciousPattern,
				Description: "Builder id points at a suspicious origin",
				Evidence:    map[string]any{"builder_id": builder.ID},
			})
		}
	}

	return indicators
}

func declaredToolCount(statement *provenance.Statement) int {
	definition := statement.Predicate.BuildDefinition
	if definition == nil {
		return 0
	}

	if rawTools, ok := definition.ExternalParameters["tools"].([]any); ok && len(rawTools) > 0 {
		return len(rawTools)
	}
	return len(definition.ResolvedDependencies)
}

// countFindings parses the subject scan report and returns its finding
// count. The second return value is false when the file is absent or not a
// recognizable report.
func countFindings(subjectPath string) (int, bool) {
	data, err := os.ReadFile(subjectPath)
	if err != nil {
		return 0, false
	}

	var report struct {
		Findings []json.RawMessage `json:"findings"`
	}
	if err := json.Unmarshal(data, &report); err == nil && report.Findings != nil {
		return len(report.Findings), true
	}

	var listing []json.RawMessage
	if err := json.Unmarshal(data, &listing); err == nil {
		return len(listing), true
	}

	return 0, false
}
