package chain

import (
	"encoding/json"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/block"
	"github.com/bt2c-network/bt2c-core/chaincfg"
	"github.com/bt2c-network/bt2c-core/doublespend"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/ledgermetrics"
	"github.com/bt2c-network/bt2c-core/mempool"
	"github.com/bt2c-network/bt2c-core/replay"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/bt2c-network/bt2c-core/ulog"
	"github.com/bt2c-network/bt2c-core/utxo"
)

// FinalityTier reports how deeply confirmed a transaction is (spec
// §4.8).
type FinalityTier int

const (
	FinalityPending FinalityTier = iota
	FinalityTentative
	FinalityProbable
	FinalityFinal
)

func (f FinalityTier) String() string {
	switch f {
	case FinalityPending:
		return "PENDING"
	case FinalityTentative:
		return "TENTATIVE"
	case FinalityProbable:
		return "PROBABLE"
	case FinalityFinal:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

func finalityForConfirmations(confs uint64) FinalityTier {
	switch {
	case confs >= 6:
		return FinalityFinal
	case confs >= 3:
		return FinalityProbable
	case confs >= 1:
		return FinalityTentative
	default:
		return FinalityPending
	}
}

// Balance returns addr's UTXO-tracker balance, the authoritative
// source per spec §4.4 (never a transaction fold).
func (l *Ledger) Balance(addr string) amount.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.utxo.Balance(addr)
}

// GetBlockByHash returns the block with the given hash, if known.
func (l *Ledger) GetBlockByHash(hash string) (*block.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.blockByHash[hash]
	return b, ok
}

// GetBlockByHeight returns the block at the given height, if known.
func (l *Ledger) GetBlockByHeight(height uint64) (*block.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.blockByHeight[height]
	return b, ok
}

// GetTransactionByHash searches confirmed blocks (and, if mp is
// given, the mempool) for hash, returning its finality tier.
func (l *Ledger) GetTransactionByHash(hash string, mp *mempool.Mempool) (*tx.Transaction, FinalityTier, bool) {
	l.mu.Lock()
	height := uint64(len(l.blocks) - 1)
	for h := len(l.blocks) - 1; h >= 0; h-- {
		b := l.blocks[h]
		for _, t := range b.Transactions {
			if t.Hash() == hash {
				confs := height - uint64(h) + 1
				l.mu.Unlock()
				return t, finalityForConfirmations(confs), true
			}
		}
	}
	l.mu.Unlock()
	if mp != nil {
		if e, ok := mp.Get(hash); ok {
			return e.Tx, FinalityPending, true
		}
	}
	return nil, FinalityPending, false
}

// Metrics reports a lightweight chain health snapshot, supplementing
// spec §6's get_metrics().
type Metrics struct {
	Height         uint64
	TotalBlocks    int
	ValidatorCount int
	TotalStaked    amount.Amount
}

func (l *Ledger) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	var staked amount.Amount
	for _, s := range l.stakes {
		staked += s
	}
	return Metrics{
		Height:         uint64(len(l.blocks) - 1),
		TotalBlocks:    len(l.blocks),
		ValidatorCount: len(l.validators),
		TotalStaked:    staked,
	}
}

// State is the structured, canonical-JSON-friendly snapshot exposed
// by export_state/import_state (spec §6): chain, validator set, nonce
// tracker, spent set, and tunable parameters. C4 (UTXO) is
// deliberately absent — it is recomputable from the chain and is
// always rebuilt on import (spec §3: "C4 and C3 are recomputable from
// the Chain and therefore secondary").
type State struct {
	Blocks      []json.RawMessage    `json:"blocks"`
	Validators  map[string]Validator `json:"validators"`
	Stakes      map[string]string    `json:"stakes"`
	Nonces      map[string]uint64    `json:"nonces"`
	Spent       []string             `json:"spent"`
	MaxSupply          string `json:"max_supply"`
	InitialBlockReward string `json:"initial_block_reward"`
	HalvingPeriodSeconds int64 `json:"halving_period_seconds"`
	MinReward          string `json:"min_reward"`
	DistributionBlocks uint64 `json:"distribution_blocks"`
	DistributionReward string `json:"distribution_reward"`
	DeveloperReward      string `json:"developer_reward"`
	EarlyValidatorReward string `json:"early_validator_reward"`
}

// ExportState snapshots the Ledger for persistence (spec §6).
func (l *Ledger) ExportState() (*State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocks := make([]json.RawMessage, 0, len(l.blocks))
	for _, b := range l.blocks {
		raw, err := b.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, raw)
	}
	validators := make(map[string]Validator, len(l.validators))
	for addr, v := range l.validators {
		validators[addr] = *v
	}
	stakes := make(map[string]string, len(l.stakes))
	for addr, s := range l.stakes {
		stakes[addr] = s.String()
	}
	nonces, spent := l.replay.Snapshot()

	return &State{
		Blocks:               blocks,
		Validators:           validators,
		Stakes:               stakes,
		Nonces:               nonces,
		Spent:                spent,
		MaxSupply:            amount.MaxSupply.String(),
		InitialBlockReward:   l.params.InitialBlockReward.String(),
		HalvingPeriodSeconds: int64(l.params.HalvingPeriod.Seconds()),
		MinReward:            l.params.MinReward.String(),
		DistributionBlocks:   l.params.DistributionBlocks,
		DistributionReward:   l.params.DistributionReward.String(),
		DeveloperReward:      l.params.DeveloperReward.String(),
		EarlyValidatorReward: l.params.EarlyValidatorReward.String(),
	}, nil
}

// ImportState rebuilds a Ledger from a State snapshot: blocks are
// parsed and replayed to rebuild C4, while C3 (nonce tracker, spent
// set) is restored directly from the snapshot rather than
// recomputed, matching spec §6's export/import contract.
func ImportState(params *chaincfg.Params, state *State, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		params:        params,
		blockByHash:   make(map[string]*block.Block),
		blockByHeight: make(map[uint64]*block.Block),
		validators:          make(map[string]*Validator),
		stakes:              make(map[string]amount.Amount),
		stakeLockedAtHeight: make(map[string]uint64),
		replay:              replay.New(),
		utxo:          utxo.New(),
		logger:        ulog.Nop(),
		metrics:       ledgermetrics.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}

	registered := make(map[string]bool)
	for _, raw := range state.Blocks {
		b, err := block.FromCanonical(raw)
		if err != nil {
			return nil, err
		}
		l.blocks = append(l.blocks, b)
		l.blockByHash[b.Hash()] = b
		l.blockByHeight[b.Index] = b
		for _, t := range b.Transactions {
			// Mirror applyTransactionLocked: VALIDATOR bypasses C4, UNSTAKE
			// only credits its synthetic output.
			switch t.Type {
			case tx.TypeValidator:
				registered[t.Sender] = true
				continue
			case tx.TypeUnstake:
				l.utxo.AddUTXO(t.Hash()+"_unstake", t.Amount, t.Sender, b.Index, t.Timestamp)
				continue
			}
			if err := l.utxo.Apply(t, b.Index, b.Validator); err != nil {
				return nil, ledgererr.NewStateCorruptionError("failed to rebuild UTXO state from imported chain", err)
			}
		}
		// Mirror registerEarlyValidatorLocked's one-time bonus output.
		if b.Index > 0 && b.Index < params.DistributionBlocks && !registered[b.Validator] {
			registered[b.Validator] = true
			l.utxo.AddUTXO(b.Validator+"_early_validator_bonus", params.EarlyValidatorReward, b.Validator, b.Index, b.Timestamp)
		}
	}
	l.utxo.UpdateConfirmations(uint64(len(l.blocks) - 1))

	for addr, v := range state.Validators {
		vCopy := v
		l.validators[addr] = &vCopy
	}
	for addr, s := range state.Stakes {
		amt, err := amount.Parse(s)
		if err != nil {
			return nil, err
		}
		l.stakes[addr] = amt
	}
	l.replay.Restore(state.Nonces, state.Spent)
	l.detector = doublespend.New(l.replay, l.utxo)
	return l, nil
}
