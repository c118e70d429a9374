// Package allocator issues equipment identifiers from a persisted counter.
//
// Identifiers start at 1 and increase by exactly one per call. The allocator
// does no locking of its own: uniqueness holds because the host runs
// transactions one at a time and discards the counter update of any
// transaction that fails.
package allocator

import (
	"fmt"

	"github.com/ruteri/equipment-registry/interfaces"
)

// CounterName is the host counter holding the next identifier to issue.
const CounterName = "equipment-id-counter"

// NextID returns the next identifier and advances the counter.
func NextID(env interfaces.Env) (interfaces.EquipmentID, error) {
	next, err := Peek(env)
	if err != nil {
		return 0, err
	}
	if err := env.SetCounter(CounterName, uint64(next)+1); err != nil {
		return 0, fmt.Errorf("advance %s: %w", CounterName, err)
	}
	return next, nil
}

// Peek returns the identifier the next NextID call would return.
func Peek(env interfaces.Env) (interfaces.EquipmentID, error) {
	v, ok, err := env.Counter(CounterName)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", CounterName, err)
	}
	if !ok {
		return 1, nil
	}
	return interfaces.EquipmentID(v), nil
}
