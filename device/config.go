package device

import (
	"encoding/json"
	"fmt"
	"os"
)

// paramJSON is the on-disk form of a single timing parameter. A null field
// means the bound is absent.
type paramJSON struct {
	Cycles      *int     `json:"cycles"`
	Nanoseconds *float64 `json:"ns"`
}

// TimingsConfig is the on-disk form of a timing table override. Only the
// parameters present in the file replace the module defaults.
type TimingsConfig struct {
	// Params maps canonical parameter names (tRP, tRCD, ...) to overrides.
	Params map[string]paramJSON
}

// UnmarshalJSON reads the flat {"tRP": {"cycles": 2, "ns": 21}, ...} form.
func (c *TimingsConfig) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.Params)
}

// LoadTimingsConfig reads a timing override file.
func LoadTimingsConfig(path string) (*TimingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("device: reading timings config: %w", err)
	}

	var config TimingsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("device: parsing timings config: %w", err)
	}

	return &config, nil
}

// Apply returns a copy of the table with the overrides from the config
// applied. Unknown parameter names and malformed overrides are configuration
// errors.
func (c *TimingsConfig) Apply(t *Table) (*Table, error) {
	params := make(map[string]TimingParameter, len(t.params))
	for name, p := range t.params {
		params[name] = p
	}

	for name, override := range c.Params {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("device: unknown timing parameter %q", name)
		}

		p := TimingParameter{Name: name}
		if override.Cycles != nil {
			p.Cycles = *override.Cycles
			p.HasCycles = true
		}
		if override.Nanoseconds != nil {
			p.Nanoseconds = *override.Nanoseconds
			p.HasNanoseconds = true
		}
		if !p.Valid() {
			return nil, fmt.Errorf(
				"device: override for %s must carry cycles or ns and be non-negative",
				name)
		}
		params[name] = p
	}

	applied := &Table{family: t.family, params: params}

	for _, name := range mandatory {
		if !params[name].Valid() {
			return nil, fmt.Errorf(
				"device: override removed mandatory parameter %s", name)
		}
	}

	return applied, nil
}
