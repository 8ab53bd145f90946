// ABOUTME: Timestamp anomaly detection for attestation build metadata
// ABOUTME: Flags future timestamps, impossible durations, and replay-aged attestations
package tamper

import (
	"fmt"
	"time"

	"github.com/scanseal/scanseal/internal/provenance"
)

// ClockSkewTolerance is how far into the future a timestamp may drift
// before it counts as anomalous.
const ClockSkewTolerance = 5 * time.Minute

// CheckTimestampAnomalies inspects startedOn/finishedOn. Future timestamps
// and negative durations are CRITICAL; an implausibly long duration is HIGH;
// an attestation older than the replay threshold is MEDIUM. Missing
// timestamps are flagged MEDIUM as missing fields. Malformed timestamp
// strings are logged and skipped, not treated as anomalies.
func (d *Detector) CheckTimestampAnomalies(current *provenance.Statement) []Indicator {
	indicators := []Indicator{}

	var metadata *provenance.BuildMetadata
	if current.Predicate.RunDetails != nil {
		metadata = current.Predicate.RunDetails.Metadata
	}

	var startedRaw, finishedRaw string
	if metadata != nil {
		startedRaw = metadata.StartedOn
		finishedRaw = metadata.FinishedOn
	}

	missing := []string{}
	if startedRaw == "" {
		missing = append(missing, "startedOn")
	}
	if finishedRaw == "" {
		missing = append(missing, "finishedOn")
	}
	if len(missing) > 0 {
		indicators = append(indicators, Indicator{
			Severity:    SeverityMedium,
			Kind:        KindMissingField,
			Description: "Attestation is missing build timestamps",
			Evidence:    map[string]any{"missing_timestamps": missing},
		})
	}

	now := time.Now().UTC()

	startedOn, startedOK := d.parseTimestamp("startedOn", startedRaw)
	finishedOn, finishedOK := d.parseTimestamp("finishedOn", finishedRaw)

	if startedOK && startedOn.After(now.Add(ClockSkewTolerance)) {
		indicators = append(indicators, Indicator{
			Severity:    SeverityCritical,
			Kind:        KindTimestampAnomaly,
			Description: "startedOn timestamp is in the future",
			Evidence: map[string]any{
				"started_on": startedRaw,
				"checked_at": now.Format(time.RFC3339),
			},
		})
	}

	if finishedOK && finishedOn.After(now.Add(ClockSkewTolerance)) {
		indicators = append(indicators, Indicator{
			Severity:    SeverityCritical,
			Kind:        KindTimestampAnomaly,
			Description: "finishedOn timestamp is in the future",
			Evidence: map[string]any{
				"finished_on": finishedRaw,
				"checked_at":  now.Format(time.RFC3339),
			},
		})
	}

	if startedOK && finishedOK {
		duration := finishedOn.Sub(startedOn)
		if duration < 0 {
			indicators = append(indicators, Indicator{
				Severity:    SeverityCritical,
				Kind:        KindTimestampAnomaly,
				Description: "finishedOn precedes startedOn (impossible duration)",
				Evidence: map[string]any{
					"started_on":  startedRaw,
					"finished_on": finishedRaw,
				},
			})
		} else if duration > time.Duration(d.opts.MaxDurationHours)*time.Hour {
			indicators = append(indicators, Indicator{
				Severity:    SeverityHigh,
				Kind:        KindTimestampAnomaly,
				Description: fmt.Sprintf("Scan duration exceeds %d hours", d.opts.MaxDurationHours),
				Evidence: map[string]any{
					"duration_hours": duration.Hours(),
				},
			})
		}
	}

	if finishedOK {
		age := now.Sub(finishedOn)
		if age > time.Duration(d.opts.MaxAgeDays)*24*time.Hour {
			indicators = append(indicators, Indicator{
				Severity:    SeverityMedium,
				Kind:        KindTimestampAnomaly,
				Description: fmt.Sprintf("Attestation is older than %d days (possible replay)", d.opts.MaxAgeDays),
				Evidence: map[string]any{
					"finished_on": finishedRaw,
					"age_days":    int(age.Hours() / 24),
				},
			})
		}
	}

	return indicators
}

func (d *Detector) parseTimestamp(field, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		d.debug("Skipping malformed attestation timestamp", "field", field, "value", raw, "error", err)
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
