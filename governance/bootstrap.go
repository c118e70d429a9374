package governance

import (
	"errors"
	"fmt"

	"github.com/ruteri/equipment-registry/interfaces"
)

// Bootstrap deploys the registry to owner and authorizes the initial
// certifiers, unless it is already deployed. It must run with owner as the
// caller. Restarting with the same owner is a no-op, so certifiers removed
// after deployment stay removed; a different owner fails with
// ErrAlreadyDeployed.
func (l *Ledger) Bootstrap(env interfaces.Env, owner interfaces.Identity, certifiers []interfaces.Identity) (deployed bool, err error) {
	current, err := l.ContractOwner(env)
	switch {
	case err == nil:
		if current != owner {
			return false, fmt.Errorf("%w: owned by %s", interfaces.ErrAlreadyDeployed, current.Hex())
		}
		return false, nil
	case !errors.Is(err, interfaces.ErrNotDeployed):
		return false, err
	}

	if err := l.Deploy(env, owner); err != nil {
		return false, err
	}
	for _, c := range certifiers {
		if err := l.AddAuthorizedCertifier(env, c); err != nil {
			return false, fmt.Errorf("authorize certifier %s: %w", c.Hex(), err)
		}
	}
	return true, nil
}
