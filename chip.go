package rvhal

import (
	_ "embed"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

//go:embed chips.yaml
var rawChips []byte

var chips []Chip

// Chip describes one silicon variant of the family. Addresses and widths
// are configuration; the core's behaviour does not depend on them.
type Chip struct {
	Name        string            `yaml:"name"`
	Arch        string            `yaml:"arch"`
	Lines       int               `yaml:"lines"`      // CPU interrupt lines, numbered from 1
	Priorities  int               `yaml:"priorities"` // highest usable priority level
	VectorAlign uint32            `yaml:"vectorAlign"`
	VectorBase  uint32            `yaml:"vectorBase"`
	ResetPC     ResetPC           `yaml:"resetPC"`
	Blocks      Blocks            `yaml:"blocks"`
	Features    []string          `yaml:"features"`
	Peripherals []string          `yaml:"peripherals"`
	Sources     map[string]Source `yaml:"sources"`
}

// ResetPC holds the first instruction fetched after reset, depending on
// whether a second stage loader ran first.
type ResetPC struct {
	Direct uint32 `yaml:"direct"`
	Loader uint32 `yaml:"loader"`
}

// Blocks holds the base addresses of the peripheral register blocks the
// core touches.
type Blocks struct {
	System   uint32 `yaml:"system"`
	Intc     uint32 `yaml:"intc"`
	Systimer uint32 `yaml:"systimer"`
}

// Chips returns every known chip variant.
func Chips() []Chip {
	return slices.Clone(chips)
}

// LookupChip finds a chip variant by name.
func LookupChip(name string) (Chip, error) {
	i := slices.IndexFunc(chips, func(c Chip) bool {
		return c.Name == strings.ToLower(name)
	})
	if i < 0 {
		return Chip{}, ErrUnknownChip
	}
	return chips[i], nil
}

// Has reports whether the variant supports the named feature.
func (c Chip) Has(feature string) bool {
	return slices.Contains(c.Features, feature)
}

// SourceNames returns the peripheral interrupt source names, sorted.
func (c Chip) SourceNames() []string {
	names := maps.Keys(c.Sources)
	slices.Sort(names)
	return names
}

func (c Chip) hasPeripheral(name string) bool {
	return slices.Contains(c.Peripherals, name)
}

func init() {
	var c struct {
		Chips []Chip `yaml:"chips"`
	}
	if err := yaml.Unmarshal(rawChips, &c); err != nil {
		panic(err)
	}
	chips = c.Chips
}
