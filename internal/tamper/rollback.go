// ABOUTME: Scanner version rollback detection across attestation history
// ABOUTME: Flags downgraded tool versions, critically for security-critical scanners
package tamper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scanseal/scanseal/internal/provenance"
)

// securityCriticalTools are scanners whose downgrade is a CRITICAL signal;
// rolling one back can silently reduce detection coverage.
var securityCriticalTools = map[string]bool{
	"bandit":      true,
	"checkov":     true,
	"gitleaks":    true,
	"grype":       true,
	"nuclei":      true,
	"osv-scanner": true,
	"semgrep":     true,
	"trivy":       true,
	"trufflehog":  true,
}

// CheckToolRollback compares resolved tool versions between the current
// attestation and each historical one. A strictly lower current version is
// a downgrade: CRITICAL for security-critical scanners, HIGH otherwise.
// Unparseable versions are logged and never flagged.
func (d *Detector) CheckToolRollback(current *provenance.Statement, historicals []*provenance.Statement) []Indicator {
	if len(historicals) == 0 {
		return nil
	}

	indicators := []Indicator{}
	currentTools := d.toolVersions(current)
	if len(currentTools) == 0 {
		return indicators
	}

	for _, historical := range historicals {
		historicalTools := d.toolVersions(historical)

		names := make([]string, 0, len(currentTools))
		for name := range currentTools {
			if _, ok := historicalTools[name]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			currentVersion := currentTools[name]
			previousVersion := historicalTools[name]
			if !d.isVersionDowngrade(currentVersion, previousVersion) {
				continue
			}

			severity := SeverityHigh
			if securityCriticalTools[strings.ToLower(name)] {
				severity = SeverityCritical
			}

			indicators = append(indicators, Indicator{
				Severity:    severity,
				Kind:        KindToolRollback,
				Description: fmt.Sprintf("Tool %s was downgraded from %s to %s", name, previousVersion, currentVersion),
				Evidence: map[string]any{
					"tool":             name,
					"previous_version": previousVersion,
					"current_version":  currentVersion,
				},
			})
		}
	}

	return indicators
}

// toolVersions builds a tool name to version map from the attestation's
// external-parameters tool list, falling back to the resolved-dependency
// list when the former is empty.
func (d *Detector) toolVersions(statement *provenance.Statement) map[string]string {
	versions := make(map[string]string)

	definition := statement.Predicate.BuildDefinition
	if definition == nil {
		return versions
	}

	if rawTools, ok := definition.ExternalParameters["tools"].([]any); ok {
		for _, raw := range rawTools {
			switch tool := raw.(type) {
			case map[string]any:
				name, _ := tool["name"].(string)
				version, _ := tool["version"].(string)
				if name != "" && version != "" {
					versions[name] = version
				}
			case string:
				if name, version, found := strings.Cut(tool, "@"); found && name != "" && version != "" {
					versions[name] = version
				}
			}
		}
	}

	if len(versions) > 0 {
		return versions
	}

	for _, dependency := range definition.ResolvedDependencies {
		if dependency.Name != "" && dependency.Version != "" {
			versions[dependency.Name] = dependency.Version
		}
	}

	return versions
}

// isVersionDowngrade reports whether current is strictly lower than
// previous under semantic comparison. Either side failing to parse means
// "not a downgrade".
func (d *Detector) isVersionDowngrade(current, previous string) bool {
	currentParts, err := parseVersion(current)
	if err != nil {
		d.debug("Skipping unparseable tool version", "version", current, "error", err)
		return false
	}
	previousParts, err := parseVersion(previous)
	if err != nil {
		d.debug("Skipping unparseable tool version", "version", previous, "error", err)
		return false
	}

	for i := 0; i < 3; i++ {
		if currentParts[i] < previousParts[i] {
			return true
		}
		if currentParts[i] > previousParts[i] {
			return false
		}
	}
	return false
}

// parseVersion splits a version into up to three numeric components,
// zero-padding the rest. An optional leading "v" is stripped.
func parseVersion(version string) ([3]int, error) {
	var parts [3]int

	trimmed := strings.TrimSpace(version)
	trimmed = strings.TrimPrefix(trimmed, "v")
	if trimmed == "" {
		return parts, fmt.Errorf("empty version")
	}

	components := strings.Split(trimmed, ".")
	if len(components) > 3 {
		components = components[:3]
	}

	for i, component := range components {
		value, err := strconv.Atoi(component)
		if err != nil {
			return parts, fmt.Errorf("non-numeric version component %q", component)
		}
		parts[i] = value
	}

	return parts, nil
}
