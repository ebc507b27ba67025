package chain

import (
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/google/uuid"
)

// applyValidatorRegistrationLocked processes a VALIDATOR transaction:
// requires stake >= min_stake, a unique address, and replays/expiry
// checks like any other transaction (spec §4.8: "Validator
// registration: requires stake >= 1.0, sufficient balance, unique
// address"). Caller holds l.mu.
func (l *Ledger) applyValidatorRegistrationLocked(t *tx.Transaction, height uint64, now time.Time) error {
	if err := l.replay.Process(t, now); err != nil {
		return err
	}
	if _, exists := l.validators[t.Sender]; exists {
		return ledgererr.NewConflictError("address is already a registered validator")
	}
	stake := l.stakes[t.Sender]
	if stake < l.params.MinStake {
		return ledgererr.NewInsufficientFundsError("stake below minimum required to register as validator")
	}
	l.validators[t.Sender] = &Validator{
		RegistrationID: uuid.NewString(),
		Address:        t.Sender,
		PublicKey:      t.SenderPublicKey,
		Stake:          stake,
		RegisteredAt:   now.Unix(),
		Status:         ValidatorActive,
		Reputation:     100,
	}
	return nil
}

// Validator returns a copy of the validator record for addr, if
// registered.
func (l *Ledger) Validator(addr string) (Validator, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.validators[addr]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// Validators returns a snapshot of the entire validator registry.
func (l *Ledger) Validators() []Validator {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Validator, 0, len(l.validators))
	for _, v := range l.validators {
		out = append(out, *v)
	}
	return out
}

// Stake returns addr's currently locked stake.
func (l *Ledger) Stake(addr string) amount.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes[addr]
}
