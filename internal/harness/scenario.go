package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Scenario defines an import conformance scenario.
// Scenarios run a sequence of package imports against a fresh ledger and
// assert on the resulting events, ImportLog rows and hash chains.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Campaign is the default campaign for steps and assertions.
	Campaign string `yaml:"campaign"`

	// EngineVersion overrides the importer's engine version, for
	// engine_contract_range scenarios.
	EngineVersion string `yaml:"engine_version,omitempty"`

	// Packages maps a name used by steps to a package definition.
	Packages map[string]PackageDef `yaml:"packages"`

	// Steps are imports run in order.
	Steps []ImportStep `yaml:"steps"`

	// Assertions validate the final ledger.
	// Supported types: event_count, event_order, event_contains,
	// import_log_count, chain_valid
	Assertions []Assertion `yaml:"assertions"`
}

// PackageDef is either a directory on disk or an inline package. Inline
// packages get a content_index computed from Files unless Manifest sets one.
type PackageDef struct {
	// Dir is a package directory, relative to the scenario file.
	Dir string `yaml:"dir,omitempty"`

	// Manifest holds manifest fields. package_id is required for inline
	// packages; schema_version, engine_contract_range and ruleset_version
	// default to valid values.
	Manifest map[string]any `yaml:"manifest,omitempty"`

	// Files maps package paths to file content.
	Files map[string]string `yaml:"files,omitempty"`

	// Unindexed files are written but left out of content_index.
	Unindexed map[string]string `yaml:"unindexed,omitempty"`

	// Index overrides content_index entries.
	Index map[string]string `yaml:"index,omitempty"`
}

// ImportStep imports one package.
type ImportStep struct {
	// Import names an entry in Scenario.Packages.
	Import string `yaml:"import"`

	// Campaign overrides Scenario.Campaign for this step.
	Campaign string `yaml:"campaign,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the import must complete.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an import's expected outcome.
type ExpectClause struct {
	// Outcome is completed, skipped or failed.
	Outcome string `yaml:"outcome"`

	// Error is the failure kind when Outcome is failed (see ErrorKind).
	Error string `yaml:"error,omitempty"`

	// EventsCreated is checked when set.
	EventsCreated *int `yaml:"events_created,omitempty"`

	// ImportLogRows is checked when set.
	ImportLogRows *int `yaml:"import_log_rows,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": count events, optionally of one EventType
	// - "event_order": EventTypes appear in this relative order
	// - "event_contains": an EventType event's payload contains Payload
	// - "import_log_count": count ImportLog rows matching Phase/Action/ObjectType
	// - "chain_valid": the campaign's hash chain verifies
	Type string `yaml:"type"`

	// Campaign overrides Scenario.Campaign.
	Campaign string `yaml:"campaign,omitempty"`

	// EventType filters event_count and selects event_contains events.
	EventType string `yaml:"event_type,omitempty"`

	// EventTypes is the expected order (used by event_order).
	EventTypes []string `yaml:"event_types,omitempty"`

	// Payload is the expected payload subset (used by event_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Phase, Action and ObjectType filter import_log_count.
	Phase      string `yaml:"phase,omitempty"`
	Action     string `yaml:"action,omitempty"`
	ObjectType string `yaml:"object_type,omitempty"`

	// Count is the expected number of matches (event_count, import_log_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertEventCount     = "event_count"
	AssertEventOrder     = "event_order"
	AssertEventContains  = "event_contains"
	AssertImportLogCount = "import_log_count"
	AssertChainValid     = "chain_valid"
)

// Import outcomes named in ExpectClause.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// LoadScenario reads and parses a scenario YAML file. Package directories
// are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for name, def := range scenario.Packages {
		if def.Dir != "" && !filepath.IsAbs(def.Dir) {
			def.Dir = filepath.Join(base, def.Dir)
			scenario.Packages[name] = def
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Campaign == "" {
		return fmt.Errorf("campaign is required")
	}

	if s.EngineVersion != "" {
		if _, err := semver.StrictNewVersion(s.EngineVersion); err != nil {
			return fmt.Errorf("engine_version %q: %w", s.EngineVersion, err)
		}
	}

	if len(s.Packages) == 0 {
		return fmt.Errorf("packages map is required and must be non-empty")
	}

	names := make([]string, 0, len(s.Packages))
	for name := range s.Packages {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := validatePackage(name, s.Packages[name]); err != nil {
			return err
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Import == "" {
			return fmt.Errorf("steps[%d]: import is required", i)
		}
		if _, ok := s.Packages[step.Import]; !ok {
			return fmt.Errorf("steps[%d]: unknown package %q", i, step.Import)
		}
		if err := validateExpect(i, step.Expect); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validatePackage(name string, def PackageDef) error {
	inline := def.Manifest != nil || len(def.Files) > 0 || len(def.Unindexed) > 0 || len(def.Index) > 0
	switch {
	case def.Dir != "" && inline:
		return fmt.Errorf("packages.%s: dir and inline content are mutually exclusive", name)
	case def.Dir != "":
		info, err := os.Stat(def.Dir)
		if err != nil {
			return fmt.Errorf("packages.%s: package dir not found: %s", name, def.Dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("packages.%s: %s is not a directory", name, def.Dir)
		}
	case def.Manifest == nil:
		return fmt.Errorf("packages.%s: manifest is required for inline packages", name)
	default:
		if id, _ := def.Manifest["package_id"].(string); id == "" {
			return fmt.Errorf("packages.%s: manifest.package_id is required", name)
		}
	}
	return nil
}

func validateExpect(index int, e *ExpectClause) error {
	if e == nil {
		return nil
	}
	switch e.Outcome {
	case OutcomeCompleted, OutcomeSkipped:
		if e.Error != "" {
			return fmt.Errorf("steps[%d].expect: error is only valid with outcome failed", index)
		}
	case OutcomeFailed:
		if e.Error == "" {
			return fmt.Errorf("steps[%d].expect: error is required for outcome failed", index)
		}
		if !slices.Contains(ErrorKinds(), e.Error) {
			return fmt.Errorf("steps[%d].expect: unknown error kind %q", index, e.Error)
		}
	case "":
		return fmt.Errorf("steps[%d].expect: outcome is required", index)
	default:
		return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, e.Outcome)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventCount, AssertImportLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertEventOrder:
		if len(a.EventTypes) == 0 {
			return fmt.Errorf("assertions[%d]: event_types list is required for event_order", index)
		}
	case AssertEventContains:
		if a.EventType == "" {
			return fmt.Errorf("assertions[%d]: event_type is required for event_contains", index)
		}
		if len(a.Payload) == 0 {
			return fmt.Errorf("assertions[%d]: payload is required for event_contains", index)
		}
	case AssertChainValid:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
