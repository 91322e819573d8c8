package config

import (
	"strings"

	"github.com/Zakuwantungsten/fuel-Order-sytem-sub005/fuel"
)

// Resolution is the outcome of looking a truck+destination pair up in
// the fleet configuration. Absent values are a normal, reportable state
// (the record gets locked), never an error.
type Resolution struct {
	TotalLiters fuel.Liters
	ExtraLiters fuel.Liters
	TotalFound  bool
	ExtraFound  bool
	BatchSuffix string // which batch matched; "" when none did
}

// Missing translates the resolution into the record lock reason.
// Both values present means no lock.
func (r Resolution) Missing() fuel.PendingConfigReason {
	switch {
	case !r.TotalFound && !r.ExtraFound:
		return fuel.PendingMissingBoth
	case !r.TotalFound:
		return fuel.PendingMissingTotal
	case !r.ExtraFound:
		return fuel.PendingMissingExtra
	default:
		return fuel.PendingNone
	}
}

// Resolve performs the two-level lookup:
//
//  1. totalLiters comes from the route budget for the destination.
//  2. extraLiters comes from the truck batch matching the registration
//     suffix, with the batch's per-destination override winning over
//     its default allowance.
//
// A configured value of zero still counts as found; only a missing
// route or an unmatched suffix leaves a side unresolved.
func (c *FleetConfig) Resolve(truck fuel.TruckNumber, destination string) Resolution {
	res := Resolution{}
	dest := canonDestination(destination)

	// Config keys are compared canonically too: "Kigali" in the file
	// matches "KIGALI" on the record.
	for route, liters := range c.Routes {
		if canonDestination(route) == dest {
			res.TotalLiters = fuel.NewLiters(liters)
			res.TotalFound = true
			break
		}
	}

	suffix := strings.ToUpper(truck.Suffix())
	if suffix != "" {
		for _, b := range c.TruckBatches {
			if strings.ToUpper(strings.TrimSpace(b.Suffix)) != suffix {
				continue
			}
			res.BatchSuffix = suffix
			res.ExtraFound = true
			res.ExtraLiters = fuel.NewLiters(b.ExtraLiters)
			for odest, override := range b.Overrides {
				if canonDestination(odest) == dest {
					res.ExtraLiters = fuel.NewLiters(override)
					break
				}
			}
			break
		}
	}
	return res
}

// StandardAllocation returns the standard liters for a checkpoint slot,
// zero when the slot has no configured standard.
func (c *FleetConfig) StandardAllocation(id fuel.SlotID) fuel.Liters {
	if liters, ok := c.StandardAllocations[string(id)]; ok {
		return fuel.NewLiters(liters)
	}
	return fuel.ZeroLiters()
}

func canonDestination(destination string) string {
	return strings.Join(strings.Fields(strings.ToUpper(destination)), " ")
}
