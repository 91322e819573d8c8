// Package config provides fleet configuration for the fuel engine:
// standard checkpoint allocations, per-route budgets, and truck batch
// allowances. The engine consumes configuration read-only; editing it
// belongs to the back-office tooling, not to this service.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// FleetConfig is the complete fleet configuration. Liter quantities are
// plain YAML numbers; they are round human-entered values and convert
// exactly into decimals at lookup time.
type FleetConfig struct {
	// StandardAllocations maps checkpoint slot IDs to their standard
	// liters (e.g. darYard: 550).
	StandardAllocations map[string]float64 `yaml:"standard_allocations"`

	// Routes maps destinations to the total liters budget for a round
	// trip on that route.
	Routes map[string]float64 `yaml:"routes"`

	// TruckBatches lists extra-fuel allowances keyed by registration
	// suffix, with optional per-destination overrides.
	TruckBatches []TruckBatch `yaml:"truck_batches"`
}

// TruckBatch is one procurement batch of trucks sharing a registration
// suffix ("DVH" matches "T 872 DVH").
type TruckBatch struct {
	Suffix      string             `yaml:"suffix"`
	ExtraLiters float64            `yaml:"extra_liters"`
	Overrides   map[string]float64 `yaml:"overrides,omitempty"`
}

// Default returns the compiled-in fleet configuration: the corridor
// standards that apply until the fleet office ships a fleet.yaml.
func Default() *FleetConfig {
	return &FleetConfig{
		StandardAllocations: map[string]float64{
			string(fuel.SlotDarYard):         550,
			string(fuel.SlotTangaYard):       400,
			string(fuel.SlotGoingMorogoro):   250,
			string(fuel.SlotGoingSingida):    300,
			string(fuel.SlotGoingNyakanazi):  350,
			string(fuel.SlotGoingLake):       400,
			string(fuel.SlotGoingBorder):     450,
			string(fuel.SlotReturnBorder):    450,
			string(fuel.SlotReturnLake):      400,
			string(fuel.SlotReturnNyakanazi): 350,
			string(fuel.SlotReturnSingida):   300,
			string(fuel.SlotReturnMorogoro):  250,
		},
		Routes: map[string]float64{
			"KIGALI":    3000,
			"BUJUMBURA": 3200,
			"GOMA":      3600,
			"MWANZA":    1800,
		},
		TruckBatches: []TruckBatch{
			{Suffix: "DVH", ExtraLiters: 200, Overrides: map[string]float64{"GOMA": 250}},
			{Suffix: "DSV", ExtraLiters: 150},
			{Suffix: "DTZ", ExtraLiters: 180},
		},
	}
}

// Validate checks structural sanity: known slot IDs, non-negative
// quantities, unique upper-case batch suffixes.
func (c *FleetConfig) Validate() error {
	for slot, liters := range c.StandardAllocations {
		if _, err := fuel.ParseSlotID(slot); err != nil {
			return fmt.Errorf("standard_allocations: %w", err)
		}
		if liters < 0 {
			return fmt.Errorf("standard_allocations.%s: negative liters %v", slot, liters)
		}
	}
	for dest, liters := range c.Routes {
		if strings.TrimSpace(dest) == "" {
			return fmt.Errorf("routes: empty destination key")
		}
		if liters < 0 {
			return fmt.Errorf("routes.%s: negative liters %v", dest, liters)
		}
	}
	seen := make(map[string]bool, len(c.TruckBatches))
	for i, b := range c.TruckBatches {
		suffix := strings.ToUpper(strings.TrimSpace(b.Suffix))
		if suffix == "" {
			return fmt.Errorf("truck_batches[%d]: empty suffix", i)
		}
		if seen[suffix] {
			return fmt.Errorf("truck_batches[%d]: duplicate suffix %q", i, suffix)
		}
		seen[suffix] = true
		if b.ExtraLiters < 0 {
			return fmt.Errorf("truck_batches[%d]: negative extra_liters %v", i, b.ExtraLiters)
		}
		for dest, liters := range b.Overrides {
			if liters < 0 {
				return fmt.Errorf("truck_batches[%d].overrides.%s: negative liters %v", i, dest, liters)
			}
		}
	}
	return nil
}

// LoadFromFile parses a fleet.yaml.
func LoadFromFile(path string) (*FleetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet config: %w", err)
	}
	var c FleetConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse fleet config: %w", err)
	}
	return &c, nil
}

// Merge layers another configuration over this one. Allocation and
// route maps merge per key; a non-empty batch list replaces the batch
// list wholesale (partial batch edits are too easy to get wrong).
func (c *FleetConfig) Merge(other *FleetConfig) {
	if other == nil {
		return
	}
	for slot, liters := range other.StandardAllocations {
		if c.StandardAllocations == nil {
			c.StandardAllocations = make(map[string]float64)
		}
		c.StandardAllocations[slot] = liters
	}
	for dest, liters := range other.Routes {
		if c.Routes == nil {
			c.Routes = make(map[string]float64)
		}
		c.Routes[dest] = liters
	}
	if len(other.TruckBatches) > 0 {
		c.TruckBatches = other.TruckBatches
	}
}
