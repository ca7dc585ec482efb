package marketsession

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level YAML structure of a market table override.
type File struct {
	Markets []Market `yaml:"markets"`
}

// LoadFile reads a market table from a YAML file. Entries keep file order.
func LoadFile(path string) ([]Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML market table and validates each entry.
func Parse(data []byte) ([]Market, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	for i, m := range file.Markets {
		if m.Code == "" {
			return nil, fmt.Errorf("market %d: missing code", i)
		}
		if m.OpenHour < 0 || m.CloseHour > 24 || m.OpenHour >= m.CloseHour {
			return nil, fmt.Errorf("market %s: invalid hours %.2f-%.2f", m.Code, m.OpenHour, m.CloseHour)
		}
		if m.UTCOffset < -12 || m.UTCOffset > 14 {
			return nil, fmt.Errorf("market %s: invalid utc offset %.2f", m.Code, m.UTCOffset)
		}
	}
	return file.Markets, nil
}
