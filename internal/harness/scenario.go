package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bwaidelich/dcb-example-tree/internal/tree"
)

// Scenario is a scripted sequence of tree commands.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Final optionally asserts on the resulting tree.
	Final *FinalExpect `yaml:"final,omitempty"`
}

// Step is one command.
type Step struct {
	// Command is "add", "move" or "reset".
	Command string `yaml:"command"`

	// ID is the node to add or move.
	ID string `yaml:"id,omitempty"`

	// Parent is the parent for add, the new parent for move.
	Parent string `yaml:"parent,omitempty"`

	// Expect specifies the expected outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Outcome is one of tree.OutcomeOK, OutcomeConstraint, OutcomeConflict.
	Outcome string `yaml:"outcome"`

	// Code optionally pins the constraint code.
	Code tree.ConstraintErrorCode `yaml:"code,omitempty"`

	// Message optionally requires a substring of the error message.
	Message string `yaml:"message,omitempty"`
}

// FinalExpect asserts on the state after the last step.
type FinalExpect struct {
	// Parents is the exact parent id of every non-root node.
	Parents map[string]string `yaml:"parents,omitempty"`

	// Events is the exact number of events in the log.
	Events *int `yaml:"events,omitempty"`
}

// Step command constants.
const (
	CommandAdd   = "add"
	CommandMove  = "move"
	CommandReset = "reset"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Command {
		case CommandAdd, CommandMove:
			if step.ID == "" || step.Parent == "" {
				return fmt.Errorf("steps[%d]: %s requires id and parent", i, step.Command)
			}
		case CommandReset:
		case "":
			return fmt.Errorf("steps[%d]: command is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown command %q", i, step.Command)
		}

		if step.Expect == nil {
			continue
		}
		switch step.Expect.Outcome {
		case tree.OutcomeOK, tree.OutcomeConstraint, tree.OutcomeConflict:
		default:
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
		}
		if step.Expect.Code != "" && step.Expect.Outcome != tree.OutcomeConstraint {
			return fmt.Errorf("steps[%d].expect: code requires outcome %q", i, tree.OutcomeConstraint)
		}
	}
	return nil
}
