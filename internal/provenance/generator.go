// ABOUTME: SLSA provenance statement generation for scan result artifacts
// ABOUTME: Assembles in-toto statements from subject digests, scan metadata, and builder identity
package provenance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/scanseal/scanseal/internal/cienv"
	"github.com/scanseal/scanseal/internal/metadata"
)

// GeneratorOpts configures provenance statement generation
type GeneratorOpts struct {
	// Digest algorithms applied to the subject file. sha256 is the
	// documented default; sha384/sha512 are opt-in extensions.
	Algorithms []digest.Algorithm

	// BuilderVersion recorded under runDetails.builder.version
	BuilderVersion string

	// ScanMetadata is merged into externalParameters; explicit profile,
	// tool, and target parameters win on key collisions
	ScanMetadata map[string]any

	// SourceContext records version-control context under
	// externalParameters.source
	SourceContext map[string]string
}

// DefaultGeneratorOpts returns the default generation options
func DefaultGeneratorOpts() *GeneratorOpts {
	return &GeneratorOpts{
		Algorithms:     []digest.Algorithm{digest.SHA256},
		BuilderVersion: "0.1.0",
	}
}

// WithAlgorithms sets the digest algorithm set
func (opts *GeneratorOpts) WithAlgorithms(algorithms ...digest.Algorithm) *GeneratorOpts {
	opts.Algorithms = algorithms
	return opts
}

// WithBuilderVersion sets the recorded builder version
func (opts *GeneratorOpts) WithBuilderVersion(version string) *GeneratorOpts {
	opts.BuilderVersion = version
	return opts
}

// WithScanMetadata merges captured scan parameters into externalParameters
func (opts *GeneratorOpts) WithScanMetadata(meta map[string]any) *GeneratorOpts {
	opts.ScanMetadata = meta
	return opts
}

// WithSourceContext records version-control context on the statement
func (opts *GeneratorOpts) WithSourceContext(source map[string]string) *GeneratorOpts {
	opts.SourceContext = source
	return opts
}

// Generator assembles provenance statements for scan subjects
type Generator struct {
	opts *GeneratorOpts
}

// NewGenerator creates a generator with the given options
func NewGenerator(opts *GeneratorOpts) *Generator {
	if opts == nil {
		opts = DefaultGeneratorOpts()
	}
	return &Generator{opts: opts}
}

// Generate builds a provenance statement for the subject file. The subject
// is hashed with every configured algorithm; startedOn/finishedOn bracket
// the call. Generation fails outright when the subject cannot be read -
// no partial statement is produced.
func (g *Generator) Generate(subjectPath, profile string, tools []Tool, targets []string) (*Statement, error) {
	startedOn := time.Now().UTC()

	if _, err := os.Stat(subjectPath); err != nil {
		return nil, fmt.Errorf("subject file not accessible: %w", err)
	}

	digests, err := ComputeDigests(subjectPath, g.opts.Algorithms)
	if err != nil {
		return nil, fmt.Errorf("failed to digest subject: %w", err)
	}

	provider := cienv.Detect()
	ciMeta := metadata.CaptureCIMetadata()

	externalParameters := map[string]any{}
	for key, value := range g.opts.ScanMetadata {
		externalParameters[key] = value
	}
	if len(g.opts.SourceContext) > 0 {
		source := map[string]any{}
		for key, value := range g.opts.SourceContext {
			source[key] = value
		}
		externalParameters["source"] = source
	}
	if profile != "" {
		externalParameters["profile"] = profile
	}
	if len(tools) > 0 {
		toolParams := make([]any, 0, len(tools))
		for _, tool := range tools {
			toolParams = append(toolParams, map[string]any{
				"name":    tool.Name,
				"version": tool.Version,
			})
		}
		externalParameters["tools"] = toolParams
	}
	if len(targets) > 0 {
		targetParams := make([]any, 0, len(targets))
		for _, target := range targets {
			targetParams = append(targetParams, target)
		}
		externalParameters["targets"] = targetParams
	}

	finishedOn := time.Now().UTC()

	statement := &Statement{
		Type: StatementType,
		Subject: []Subject{{
			Name:   filepath.Base(subjectPath),
			Digest: digests,
		}},
		PredicateType: SLSAPredicateV1,
		Predicate: Predicate{
			BuildDefinition: &BuildDefinition{
				BuildType:            ScanBuildType,
				ExternalParameters:   externalParameters,
				ResolvedDependencies: tools,
			},
			RunDetails: &RunDetails{
				Builder: &Builder{
					ID:      deriveBuilderID(provider, ciMeta),
					Version: g.opts.BuilderVersion,
				},
				Metadata: &BuildMetadata{
					InvocationID: deriveInvocationID(provider, ciMeta),
					StartedOn:    startedOn.Format(time.RFC3339),
					FinishedOn:   finishedOn.Format(time.RFC3339),
				},
			},
		},
	}

	return statement, nil
}

// deriveBuilderID produces a stable builder identity. CI metadata wins;
// outside CI the local hostname identifies the builder.
func deriveBuilderID(provider cienv.Provider, ciMeta map[string]string) string {
	switch provider {
	case cienv.ProviderGitHub:
		if repo := ciMeta["repository"]; repo != "" {
			return "https://github.com/" + repo
		}
		return "https://github.com/actions/runner"
	case cienv.ProviderGitLab:
		if repo := ciMeta["repository"]; repo != "" {
			return "https://gitlab.com/" + repo
		}
		return "https://gitlab.com"
	case cienv.ProviderGeneric:
		return "ci://generic/" + hostname()
	default:
		return "local://" + hostname()
	}
}

func deriveInvocationID(provider cienv.Provider, ciMeta map[string]string) string {
	switch provider {
	case cienv.ProviderGitHub:
		if runID := ciMeta["run_id"]; runID != "" {
			return runID
		}
	case cienv.ProviderGitLab:
		if pipelineID := ciMeta["pipeline_id"]; pipelineID != "" {
			return pipelineID
		}
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
