// ABOUTME: Heuristic tamper detection engine for scan attestations
// ABOUTME: Runs four independent forgery checks and aggregates their indicators
package tamper

import (
	"github.com/pterm/pterm"

	"github.com/scanseal/scanseal/internal/provenance"
)

// Severity ranks how strongly an indicator suggests tampering
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Kind categorizes a tamper indicator
type Kind string

const (
	KindDigestMismatch       Kind = "DIGEST_MISMATCH"
	KindTimestampAnomaly     Kind = "TIMESTAMP_ANOMALY"
	KindBuilderInconsistency Kind = "BUILDER_INCONSISTENCY"
	KindToolRollback         Kind = "TOOL_ROLLBACK"
	KindSuspiciousPattern    Kind = "SUSPICIOUS_PATTERN"
	KindMissingField         Kind = "MISSING_FIELD"
)

// Indicator is one piece of tamper evidence. Indicators are produced
// transiently per verification call and never persisted.
type Indicator struct {
	Severity    Severity       `json:"severity"`
	Kind        Kind           `json:"kind"`
	Description string         `json:"description"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// DetectorOpts tunes the heuristic thresholds
type DetectorOpts struct {
	// MaxAgeDays flags attestations older than this as possible replays
	MaxAgeDays int

	// MaxDurationHours flags implausibly long scan durations
	MaxDurationHours int

	// AllowBuilderVersionChange permits builder version drift between
	// attestations of the same lineage
	AllowBuilderVersionChange bool
}

// DefaultDetectorOpts returns the default detection thresholds
func DefaultDetectorOpts() *DetectorOpts {
	return &DetectorOpts{
		MaxAgeDays:                90,
		MaxDurationHours:          24,
		AllowBuilderVersionChange: true,
	}
}

// WithMaxAgeDays sets the replay age threshold
func (opts *DetectorOpts) WithMaxAgeDays(days int) *DetectorOpts {
	opts.MaxAgeDays = days
	return opts
}

// WithMaxDurationHours sets the scan duration threshold
func (opts *DetectorOpts) WithMaxDurationHours(hours int) *DetectorOpts {
	opts.MaxDurationHours = hours
	return opts
}

// WithAllowBuilderVersionChange controls whether builder version drift is
// flagged
func (opts *DetectorOpts) WithAllowBuilderVersionChange(allow bool) *DetectorOpts {
	opts.AllowBuilderVersionChange = allow
	return opts
}

// Detector inspects attestations for forgery signals. It holds no state
// across calls; every invocation constructs its indicators fresh.
type Detector struct {
	opts   *DetectorOpts
	logger *pterm.Logger
}

// NewDetector creates a detector with the given thresholds
func NewDetector(opts *DetectorOpts, logger *pterm.Logger) *Detector {
	if opts == nil {
		opts = DefaultDetectorOpts()
	}
	return &Detector{opts: opts, logger: logger}
}

// CheckAll loads the attestation (and any historical attestations) and runs
// every applicable check: timestamps and suspicious patterns always, builder
// consistency and tool rollback only when history is supplied. Indicators
// are returned in that fixed order. Malformed input files never raise; the
// affected check simply contributes nothing.
func (d *Detector) CheckAll(subjectPath, attestationPath string, historicalPaths []string) []Indicator {
	current, err := provenance.LoadStatement(attestationPath)
	if err != nil {
		d.warn("Failed to load attestation for tamper analysis", "path", attestationPath, "error", err)
		return []Indicator{}
	}

	historicals := make([]*provenance.Statement, 0, len(historicalPaths))
	for _, path := range historicalPaths {
		statement, err := provenance.LoadStatement(path)
		if err != nil {
			d.warn("Skipping unreadable historical attestation", "path", path, "error", err)
			continue
		}
		historicals = append(historicals, statement)
	}

	return d.CheckStatements(subjectPath, current, historicals)
}

// CheckStatements runs the check pipeline over already-parsed statements
func (d *Detector) CheckStatements(subjectPath string, current *provenance.Statement, historicals []*provenance.Statement) []Indicator {
	indicators := []Indicator{}

	indicators = append(indicators, d.CheckTimestampAnomalies(current)...)
	if len(historicals) > 0 {
		indicators = append(indicators, d.CheckBuilderConsistency(current, historicals)...)
		indicators = append(indicators, d.CheckToolRollback(current, historicals)...)
	}
	indicators = append(indicators, d.CheckSuspiciousPatterns(subjectPath, current)...)

	return indicators
}

// HasCritical reports whether any indicator is CRITICAL
func HasCritical(indicators []Indicator) bool {
	return FirstCritical(indicators) != nil
}

// FirstCritical returns the first CRITICAL indicator, or nil
func FirstCritical(indicators []Indicator) *Indicator {
	for i := range indicators {
		if indicators[i].Severity == SeverityCritical {
			return &indicators[i]
		}
	}
	return nil
}

func (d *Detector) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, d.logger.Args(args...))
	}
}

func (d *Detector) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, d.logger.Args(args...))
	}
}
