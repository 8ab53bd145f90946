// ABOUTME: Builder consistency analysis across an attestation lineage
// ABOUTME: Flags builder identity changes as platform spoofing signals
package tamper

import (
	"github.com/scanseal/scanseal/internal/provenance"
)

// CheckBuilderConsistency compares the current attestation's builder against
// historical attestations for the same lineage. A changed builder id is
// CRITICAL; a changed builder version is HIGH when version drift is
// disallowed. Without history this check is a no-op.
func (d *Detector) CheckBuilderConsistency(current *provenance.Statement, historicals []*provenance.Statement) []Indicator {
	if len(historicals) == 0 {
		return nil
	}

	indicators := []Indicator{}

	currentBuilder := statementBuilder(current)
	if currentBuilder == nil || currentBuilder.ID == "" {
		indicators = append(indicators, Indicator{
			Severity:    SeverityMedium,
			Kind:        KindMissingField,
			Description: "Current attestation has no builder id",
		})
		return indicators
	}

	for _, historical := range historicals {
		historicalBuilder := statementBuilder(historical)
		if historicalBuilder == nil || historicalBuilder.ID == "" {
			continue
		}

		if historicalBuilder.ID != currentBuilder.ID {
			indicators = append(indicators, Indicator{
				Severity:    SeverityCritical,
				Kind:        KindBuilderInconsistency,
				Description: "Builder identity changed between attestations",
				Evidence: map[string]any{
					"previous_builder": historicalBuilder.ID,
					"current_builder":  currentBuilder.ID,
				},
			})
			continue
		}

		if !d.opts.AllowBuilderVersionChange &&
			historicalBuilder.Version != "" &&
			historicalBuilder.Version != currentBuilder.Version {
			indicators = append(indicators, Indicator{
				Severity:    SeverityHigh,
				Kind:        KindBuilderInconsistency,
				Description: "Builder version changed between attestations",
				Evidence: map[string]any{
					"previous_version": historicalBuilder.Version,
					"current_version":  currentBuilder.Version,
				},
			})
		}
	}

	return indicators
}

func statementBuilder(statement *provenance.Statement) *provenance.Builder {
	if statement == nil || statement.Predicate.RunDetails == nil {
		return nil
	}
	return statement.Predicate.RunDetails.Builder
}
