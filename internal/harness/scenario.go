package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stealth-startup/openexchange/internal/testutil"
)

// Scenario is one replay to run and check.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Assets is the init data available to create-asset instructions.
	Assets []AssetSpec `yaml:"assets"`

	// Blocks are appended to the chain in order.
	Blocks []BlockStep `yaml:"blocks"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// AssetSpec is one asset template. Addresses are derived from Name.
type AssetSpec struct {
	ID          int64            `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Holders     map[string]int64 `yaml:"holders"`
}

// BlockStep is one block of the scenario chain.
type BlockStep struct {
	// Fork, when set, builds this block on top of the block at that height.
	Fork int64 `yaml:"fork,omitempty"`

	Txs []testutil.TxSpec `yaml:"txs"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Request filters (request, request_count). Empty fields match anything.
	Kind    string `yaml:"kind,omitempty"`
	Asset   string `yaml:"asset,omitempty"`
	Sender  string `yaml:"sender,omitempty"`
	Status  string `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Kinds is the expected order (request_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of matches (request_count, rollback_count).
	Count int `yaml:"count,omitempty"`

	// User selects a user of Asset (final_state).
	User string `yaml:"user,omitempty"`

	// Expect holds expected field values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Address and Amount check payments (paid).
	Address string `yaml:"address,omitempty"`
	Amount  int64  `yaml:"amount,omitempty"`
}

// Assertion type constants.
const (
	AssertRequest       = "request"
	AssertRequestOrder  = "request_order"
	AssertRequestCount  = "request_count"
	AssertRollbackCount = "rollback_count"
	AssertFinalState    = "final_state"
	AssertPaid          = "paid"
	AssertHalted        = "halted"
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

// ParseScenario decodes and validates a scenario.
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Blocks) == 0 {
		return fmt.Errorf("blocks list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	ids := make(map[int64]bool)
	for i, a := range s.Assets {
		if a.ID <= 0 {
			return fmt.Errorf("assets[%d]: id must be positive", i)
		}
		if ids[a.ID] {
			return fmt.Errorf("assets[%d]: duplicate id %d", i, a.ID)
		}
		ids[a.ID] = true
		if a.Name == "" {
			return fmt.Errorf("assets[%d]: name is required", i)
		}
		if len(a.Holders) == 0 {
			return fmt.Errorf("assets[%d]: holders is required", i)
		}
	}

	for i, b := range s.Blocks {
		if b.Fork < 0 {
			return fmt.Errorf("blocks[%d]: fork must not be negative", i)
		}
		for j, tx := range b.Txs {
			if tx.Sender == "" || tx.To == "" {
				return fmt.Errorf("blocks[%d].txs[%d]: from and to are required", i, j)
			}
			if tx.Amount <= 0 {
				return fmt.Errorf("blocks[%d].txs[%d]: amount must be positive", i, j)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRequest:
		if a.Kind == "" && a.Sender == "" && a.Asset == "" {
			return fmt.Errorf("request needs kind, sender or asset")
		}
	case AssertRequestOrder:
		if len(a.Kinds) < 2 {
			return fmt.Errorf("request_order needs at least two kinds")
		}
	case AssertRequestCount:
		if a.Kind == "" {
			return fmt.Errorf("request_count needs kind")
		}
	case AssertRollbackCount:
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("final_state needs expect")
		}
		if a.User != "" && a.Asset == "" {
			return fmt.Errorf("final_state user needs asset")
		}
	case AssertPaid:
		if a.Address == "" {
			return fmt.Errorf("paid needs address")
		}
	case AssertHalted:
		if a.Message == "" {
			return fmt.Errorf("halted needs message")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
