package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rdfstamp/internal/audit"
	"github.com/roach88/rdfstamp/internal/rdf"
)

// Scenario is a scripted host transaction sequence with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// KeyMode is "strict" (default) or "loose".
	KeyMode string `yaml:"key_mode,omitempty"`

	// Entities declares the values statements refer to, by name.
	Entities []EntityDef `yaml:"entities"`

	// Steps are the host events, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the result.
	Assertions []Assertion `yaml:"assertions"`
}

// EntityDef declares one named value. Exactly one of IRI, Literal, BNode,
// Triple or Unsupported must be set.
type EntityDef struct {
	Name     string   `yaml:"name"`
	IRI      string   `yaml:"iri,omitempty"`
	Literal  *string  `yaml:"literal,omitempty"`
	Datatype string   `yaml:"datatype,omitempty"`
	Lang     string   `yaml:"lang,omitempty"`
	BNode    string   `yaml:"bnode,omitempty"`
	Triple   []string `yaml:"triple,omitempty"`

	// Unsupported declares a value the renderer rejects.
	Unsupported bool `yaml:"unsupported,omitempty"`
}

// Step is one host event.
type Step struct {
	// Op is the event; see the package documentation.
	Op string `yaml:"op"`

	// Statement names subject, predicate, object and optionally the graph.
	Statement []string `yaml:"statement,omitempty"`

	// Origin tags a remove: unknown (default), rewrite or user.
	Origin string `yaml:"origin,omitempty"`

	// Mode selects what fail breaks: begin, exec or none.
	Mode string `yaml:"mode,omitempty"`
}

// Assertion validates the result.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number (batch_count, update_count, error_code).
	Count int `yaml:"count,omitempty"`

	// Text is the expected substring (update_contains).
	Text string `yaml:"text,omitempty"`

	// Code is the audit error code (error_code).
	Code string `yaml:"code,omitempty"`

	// State is the expected engine state (final_state).
	State string `yaml:"state,omitempty"`
}

// Step operations.
const (
	OpStart         = "start"
	OpAdd           = "add"
	OpRemove        = "remove"
	OpDeleteRequest = "delete_request"
	OpCommit        = "commit"
	OpCompleted     = "completed"
	OpAbort         = "abort"
	OpHold          = "hold"
	OpRelease       = "release"
	OpFail          = "fail"
)

// Assertion types.
const (
	AssertBatchCount     = "batch_count"
	AssertUpdateCount    = "update_count"
	AssertUpdateContains = "update_contains"
	AssertErrorCode      = "error_code"
	AssertFinalState     = "final_state"
)

// Fail modes.
const (
	FailBegin = "begin"
	FailExec  = "exec"
	FailNone  = "none"
)

var statementOps = map[string]bool{
	OpAdd:           true,
	OpRemove:        true,
	OpDeleteRequest: true,
}

var knownOps = map[string]bool{
	OpStart:         true,
	OpAdd:           true,
	OpRemove:        true,
	OpDeleteRequest: true,
	OpCommit:        true,
	OpCompleted:     true,
	OpAbort:         true,
	OpHold:          true,
	OpRelease:       true,
	OpFail:          true,
}

var knownStates = map[string]bool{
	"idle":       true,
	"open":       true,
	"finalizing": true,
	"committing": true,
}

// LoadScenario reads and validates a scenario YAML file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := rdf.ParseKeyMode(s.KeyMode); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}

	declared := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		if err := validateEntity(i, e, declared); err != nil {
			return err
		}
		declared[e.Name] = true
	}

	for i, st := range s.Steps {
		if err := validateStep(i, st, declared); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateEntity(index int, e EntityDef, declared map[string]bool) error {
	if e.Name == "" {
		return fmt.Errorf("entities[%d]: name is required", index)
	}
	if declared[e.Name] {
		return fmt.Errorf("entities[%d]: duplicate name %q", index, e.Name)
	}

	kinds := 0
	for _, set := range []bool{e.IRI != "", e.Literal != nil, e.BNode != "", e.Triple != nil, e.Unsupported} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("entities[%d] (%s): exactly one of iri, literal, bnode, triple, unsupported is required", index, e.Name)
	}
	if (e.Datatype != "" || e.Lang != "") && e.Literal == nil {
		return fmt.Errorf("entities[%d] (%s): datatype and lang apply to literals only", index, e.Name)
	}
	if e.Datatype != "" && e.Lang != "" {
		return fmt.Errorf("entities[%d] (%s): literal cannot have both datatype and lang", index, e.Name)
	}
	if e.Triple != nil {
		if len(e.Triple) != 3 {
			return fmt.Errorf("entities[%d] (%s): triple needs subject, predicate and object", index, e.Name)
		}
		for _, ref := range e.Triple {
			if !declared[ref] {
				return fmt.Errorf("entities[%d] (%s): triple references undeclared entity %q", index, e.Name, ref)
			}
		}
	}
	return nil
}

func validateStep(index int, st Step, declared map[string]bool) error {
	if !knownOps[st.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if statementOps[st.Op] {
		if n := len(st.Statement); n != 3 && n != 4 {
			return fmt.Errorf("steps[%d]: %s needs 3 or 4 statement entries, got %d", index, st.Op, n)
		}
		for _, ref := range st.Statement {
			if !declared[ref] {
				return fmt.Errorf("steps[%d]: undeclared entity %q", index, ref)
			}
		}
	} else if len(st.Statement) > 0 {
		return fmt.Errorf("steps[%d]: %s takes no statement", index, st.Op)
	}

	if st.Origin != "" {
		if st.Op != OpRemove {
			return fmt.Errorf("steps[%d]: origin applies to remove only", index)
		}
		if _, err := parseOrigin(st.Origin); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}

	if st.Op == OpFail {
		switch st.Mode {
		case FailBegin, FailExec, FailNone:
		default:
			return fmt.Errorf("steps[%d]: fail mode must be begin, exec or none, got %q", index, st.Mode)
		}
	} else if st.Mode != "" {
		return fmt.Errorf("steps[%d]: mode applies to fail only", index)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertBatchCount, AssertUpdateCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertUpdateContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for update_contains", index)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_code", index)
		}
	case AssertFinalState:
		if !knownStates[a.State] {
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func parseOrigin(s string) (audit.Origin, error) {
	switch s {
	case "", "unknown":
		return audit.OriginUnknown, nil
	case "rewrite":
		return audit.OriginRewrite, nil
	case "user":
		return audit.OriginUser, nil
	}
	return audit.OriginUnknown, fmt.Errorf("unknown origin %q", s)
}

// value builds the rdf.Value for e. Triple references must already be in
// values.
func (e EntityDef) value(values map[string]rdf.Value) rdf.Value {
	switch {
	case e.IRI != "":
		return rdf.IRI(e.IRI)
	case e.Literal != nil:
		switch {
		case e.Lang != "":
			return rdf.NewLangLiteral(*e.Literal, e.Lang)
		case e.Datatype != "":
			return rdf.NewTypedLiteral(*e.Literal, e.Datatype)
		default:
			return rdf.NewLiteral(*e.Literal)
		}
	case e.BNode != "":
		return rdf.BlankNode{ID: e.BNode}
	case e.Triple != nil:
		return rdf.NewTriple(values[e.Triple[0]], values[e.Triple[1]], values[e.Triple[2]])
	}
	return nil
}
