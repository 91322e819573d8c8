/*
balance.go - Balance computation

PURPOSE:
  One formula, one place:

    balance = (totalLiters + extraLiters) - sum over slots of |value|

  The sum runs over the full slot table in corridor order and takes the
  absolute value of every slot, so a slot that historical postings have
  driven negative still counts as consumption rather than credit.

TOLERANCE:
  BalanceEqual exists for verification tooling only. The reconciler
  itself stores exact decimal values; the 0.01 L tolerance is how the
  audit command decides whether a stored balance has drifted from a
  fresh recomputation.

SEE ALSO:
  - record.go: RecomputeBalance calls ComputeBalance on every mutation
  - ../cmd/fueld: The verify command reports drift beyond tolerance
*/
package fuel

import (
	"github.com/shopspring/decimal"
)

// balanceTolerance is 0.01 L, the verification comparison threshold.
var balanceTolerance = decimal.New(1, -2)

// ComputeBalance derives the remaining balance from the allocation and
// the current slot values. Pure and deterministic: same inputs, same
// decimal output, no matter how many times it runs.
func ComputeBalance(total, extra Liters, slots map[SlotID]Liters) Liters {
	consumed := ZeroLiters()
	for _, id := range SlotIDs() {
		consumed = consumed.Add(slots[id].Abs())
	}
	return total.Add(extra).Sub(consumed)
}

// BalanceEqual reports whether two balances agree within the 0.01 L
// verification tolerance.
func BalanceEqual(a, b Liters) bool {
	return a.Sub(b).Abs().Value.LessThanOrEqual(balanceTolerance)
}
