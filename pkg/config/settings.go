package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommissionRate is the fee schedule for one instrument. Rates are fractions of
// notional (price * volume * multiplier).
type CommissionRate struct {
	Open           float64 `yaml:"open"`
	CloseToday     float64 `yaml:"closeToday"`
	CloseYesterday float64 `yaml:"closeYesterday"`
	Multiplier     float64 `yaml:"multiplier"`
}

// CommissionTable holds the default schedule plus per-instrument overrides keyed
// by order book id.
type CommissionTable struct {
	Default     CommissionRate            `yaml:"default"`
	Instruments map[string]CommissionRate `yaml:"instruments"`
}

// Rate returns the schedule for an instrument, falling back to the default.
func (t CommissionTable) Rate(orderBookID string) CommissionRate {
	if r, ok := t.Instruments[strings.ToUpper(orderBookID)]; ok {
		return r
	}
	return t.Default
}

// Settings is the top-level YAML structure of the gateway settings file.
type Settings struct {
	Gateways   map[string]map[string]string `yaml:"gateways"`
	Commission CommissionTable              `yaml:"commission"`
}

// LoadSettings reads gateway connection settings and the commission table.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.Commission.Default.Multiplier == 0 {
		s.Commission.Default.Multiplier = 1
	}
	upper := make(map[string]CommissionRate, len(s.Commission.Instruments))
	for id, r := range s.Commission.Instruments {
		if r.Multiplier == 0 {
			r.Multiplier = 1
		}
		upper[strings.ToUpper(id)] = r
	}
	s.Commission.Instruments = upper
	return &s, nil
}

// Gateway returns the connection parameters for a gateway type. The returned map
// is a copy; a missing type yields an empty map.
func (s *Settings) Gateway(gatewayType string) map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for k, v := range s.Gateways[strings.ToUpper(gatewayType)] {
		out[k] = v
	}
	return out
}
