package agentconfig

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed universe.yaml
var defaultUniverseYAML []byte

// Sector is a named group of representative tickers.
type Sector struct {
	Name    string   `yaml:"name"`
	Symbols []string `yaml:"symbols"`
}

// Universe is the set of tradable tickers, grouped by sector in scan order,
// plus the broker security id of each ticker.
type Universe struct {
	TickerSuffix string            `yaml:"ticker_suffix"`
	Sectors      []Sector          `yaml:"sectors"`
	SecurityIDs  map[string]string `yaml:"security_ids"`
}

// DefaultUniverse returns the built-in NSE universe.
func DefaultUniverse() *Universe {
	u, err := ParseUniverse(defaultUniverseYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded universe is invalid: %v", err))
	}
	return u
}

// LoadUniverse reads a universe from a YAML file.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading universe file %s: %w", path, err)
	}
	return ParseUniverse(data)
}

// ParseUniverse decodes and validates a YAML universe.
func ParseUniverse(data []byte) (*Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decoding universe: %w", err)
	}
	if len(u.Sectors) == 0 {
		return nil, fmt.Errorf("universe has no sectors")
	}
	seen := make(map[string]bool, len(u.Sectors))
	for _, s := range u.Sectors {
		if s.Name == "" {
			return nil, fmt.Errorf("universe has a sector without a name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate sector %q", s.Name)
		}
		seen[s.Name] = true
	}
	if u.SecurityIDs == nil {
		u.SecurityIDs = map[string]string{}
	}
	return &u, nil
}

// SectorNames returns sector names in scan order.
func (u *Universe) SectorNames() []string {
	names := make([]string, 0, len(u.Sectors))
	for _, s := range u.Sectors {
		names = append(names, s.Name)
	}
	return names
}

// HasSector reports whether name is a known sector.
func (u *Universe) HasSector(name string) bool {
	for _, s := range u.Sectors {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Symbols returns the tickers of a sector, or nil if the sector is unknown.
func (u *Universe) Symbols(sector string) []string {
	for _, s := range u.Sectors {
		if s.Name == sector {
			return s.Symbols
		}
	}
	return nil
}

// AllTickers returns every ticker in scan order, without duplicates.
func (u *Universe) AllTickers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range u.Sectors {
		for _, t := range s.Symbols {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// SecurityID returns the broker id for a ticker.
func (u *Universe) SecurityID(ticker string) (string, bool) {
	id, ok := u.SecurityIDs[ticker]
	return id, ok && id != ""
}

// DisplaySymbol strips the exchange suffix, e.g. "RELIANCE.NS" -> "RELIANCE".
func (u *Universe) DisplaySymbol(ticker string) string {
	if u.TickerSuffix == "" {
		return ticker
	}
	return strings.TrimSuffix(ticker, u.TickerSuffix)
}
