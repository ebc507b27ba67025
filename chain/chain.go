// Package chain implements the BT2C chain/ledger state machine of
// spec §4.8 (component C8): genesis construction, block append,
// reward schedule, validator registry, fork resolution, and state
// queries. It owns C3 (replay) and C4 (UTXO) and composes C5
// (double-spend) internally; the Mempool is handed a read-only view
// (see chainview.go) and never mutates chain state directly (spec §5).
//
// Grounded on the teacher's services/blockchain/Server.go for the
// single-writer-mutex shape and constructor-injected logger/metrics,
// adapted away from its gRPC/FSM/Kafka surface (the ledger core
// prescribes no transport, per spec §6).
package chain

import (
	"sync"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/block"
	"github.com/bt2c-network/bt2c-core/chaincfg"
	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/bt2c-network/bt2c-core/doublespend"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/ledgermetrics"
	"github.com/bt2c-network/bt2c-core/mempool"
	"github.com/bt2c-network/bt2c-core/replay"
	"github.com/bt2c-network/bt2c-core/tx"
	"github.com/bt2c-network/bt2c-core/ulog"
	"github.com/bt2c-network/bt2c-core/utxo"
)

// ValidatorStatus enumerates a registered validator's lifecycle state.
type ValidatorStatus int

const (
	ValidatorActive ValidatorStatus = iota
	ValidatorInactive
	ValidatorSlashed
)

// Validator is a registered block-producing address (spec §3, §4.8).
type Validator struct {
	RegistrationID string
	Address        string
	PublicKey      []byte
	Stake          amount.Amount
	RegisteredAt   int64
	Status         ValidatorStatus
	BlocksProduced uint64
	LastBlockTime  int64
	Reputation     float64
}

// Ledger is the BT2C chain state machine.
type Ledger struct {
	mu sync.Mutex

	params *chaincfg.Params

	blocks        []*block.Block
	blockByHash   map[string]*block.Block
	blockByHeight map[uint64]*block.Block

	validators map[string]*Validator

	stakes              map[string]amount.Amount
	stakeLockedAtHeight map[string]uint64

	replay   *replay.Tracker
	utxo     *utxo.Tracker
	detector *doublespend.Detector

	logger  ulog.Logger
	metrics ledgermetrics.Sink
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

func WithLogger(l ulog.Logger) Option        { return func(c *Ledger) { c.logger = l } }
func WithMetrics(s ledgermetrics.Sink) Option { return func(c *Ledger) { c.metrics = s } }

// maxTxPerBlock bounds how many mempool entries ProduceBlock draws,
// independent of mempool capacity.
const maxTxPerBlock = 5000

// NewGenesis constructs a fresh Ledger from params, seeding the
// developer address with the developer reward via a single coinbase
// DEVELOPER transaction (spec §4.8).
func NewGenesis(params *chaincfg.Params, opts ...Option) (*Ledger, error) {
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
	l.detector = doublespend.New(l.replay, l.utxo)

	devTx, err := tx.New(tx.NewParams{
		Sender:    tx.CoinbaseAddress,
		Recipient: params.DeveloperAddress,
		Amount:    params.DeveloperReward,
		Fee:       amount.MinUnit,
		Nonce:     0,
		Expiry:    maxExpiryForGenesis(),
		Network:   params.NetworkType,
		Type:      tx.TypeDeveloper,
	}, time.Unix(params.GenesisTimestamp, 0))
	if err != nil {
		return nil, err
	}

	genesis := block.New(0, block.ZeroHash, []*tx.Transaction{devTx}, "", params.GenesisNonce, params.GenesisTimestamp)
	genesis.Hash() // populate cached hash/merkle deterministically

	if err := l.replay.Process(devTx, time.Unix(params.GenesisTimestamp, 0)); err != nil {
		return nil, err
	}
	// Recorded at block_height 1, not 0: spec §3 reserves block_height==0
	// for future mempool-only UTXOs, so genesis's own coinbase output
	// uses the first "on-chain" height value to remain eligible for
	// confirmation accounting as the chain grows.
	l.utxo.AddUTXO(devTx.Hash(), devTx.Amount, devTx.Recipient, 1, params.GenesisTimestamp)

	l.blocks = append(l.blocks, genesis)
	l.blockByHash[genesis.Hash()] = genesis
	l.blockByHeight[0] = genesis

	l.logger.Infof("[Ledger] genesis constructed for network=%s hash=%s", params.NetworkType, genesis.Hash())
	return l, nil
}

func maxExpiryForGenesis() int64 { return 86400 }

// Height returns the current chain height (index of the tail block).
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.blocks) - 1)
}

// Tail returns the current chain tail block.
func (l *Ledger) Tail() *block.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks[len(l.blocks)-1]
}

// NewChainView wraps l as the mempool's read-only collaborator (spec
// §5): "the Mempool reads chain state ... through a read-only
// interface and never writes to it".
func (l *Ledger) NewChainView() mempool.ChainView { return (*chainView)(l) }

// ProduceBlock assembles a candidate block at the next height: it
// computes the reward owed to validatorAddr, prepends the
// corresponding REWARD transaction, draws up to maxTxPerBlock entries
// from mp by priority, and (if kp is non-nil) signs the result.
func (l *Ledger) ProduceBlock(validatorAddr string, kp *crypto.KeyPair, mp *mempool.Mempool, now time.Time) (*block.Block, error) {
	l.mu.Lock()
	height := uint64(len(l.blocks))
	tail := l.blocks[len(l.blocks)-1]
	reward, err := l.rewardForHeightLocked(height, validatorAddr)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rewardTx, err := tx.New(tx.NewParams{
		Sender:    tx.CoinbaseAddress,
		Recipient: validatorAddr,
		Amount:    reward,
		Fee:       amount.MinUnit,
		Nonce:     height,
		Expiry:    maxExpiryForGenesis(),
		Network:   l.params.NetworkType,
		Type:      tx.TypeReward,
	}, now)
	if err != nil {
		return nil, err
	}

	txs := []*tx.Transaction{rewardTx}
	if mp != nil {
		entries := mp.Top(maxTxPerBlock)
		for _, e := range entries {
			txs = append(txs, e.Tx)
		}
	}

	b := block.New(height, tail.Hash(), txs, validatorAddr, 0, now.Unix())
	b.Hash()
	if kp != nil {
		if err := b.Sign(kp); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// AddBlock validates and appends b, crediting validatorAddr (spec
// §4.8: "add_block(b, validator)").
//
// mp.Remove is deliberately called after l.mu is released: Add holds
// m.mu while it reaches into the ChainView (which takes l.mu), so
// calling back into mp while still holding l.mu here would invert that
// lock order and risk an ABBA deadlock against a concurrent Add.
func (l *Ledger) AddBlock(b *block.Block, validatorAddr string, now time.Time, mp *mempool.Mempool) error {
	l.mu.Lock()

	tail := l.blocks[len(l.blocks)-1]
	if b.PreviousHash != tail.Hash() {
		l.mu.Unlock()
		return ledgererr.NewConflictError("block does not extend current tail")
	}
	height := uint64(len(l.blocks))
	if b.Index != height {
		l.mu.Unlock()
		return ledgererr.NewInvalidFormatError("block index does not match chain height")
	}

	var validatorPub []byte
	if v, ok := l.validators[validatorAddr]; ok {
		validatorPub = v.PublicKey
	}
	if len(validatorPub) > 0 {
		if err := b.IsValid(validatorPub); err != nil {
			l.mu.Unlock()
			return err
		}
	} else {
		// No registered key yet (distribution-phase bootstrap validator):
		// still require every contained transaction to verify.
		for _, t := range b.Transactions {
			if !t.Verify() {
				l.mu.Unlock()
				return ledgererr.NewBadSignatureError("transaction failed signature verification")
			}
		}
	}

	reward, err := l.rewardForHeightLocked(height, validatorAddr)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if len(b.Transactions) == 0 {
		l.mu.Unlock()
		return ledgererr.NewInvalidFormatError("block must contain at least the reward transaction")
	}
	rewardTx := b.Transactions[0]
	if rewardTx.Type != tx.TypeReward || rewardTx.Sender != tx.CoinbaseAddress || rewardTx.Recipient != validatorAddr {
		l.mu.Unlock()
		return ledgererr.NewInvalidFormatError("block's first transaction is not the expected reward transaction")
	}
	if rewardTx.Amount != reward {
		l.mu.Unlock()
		return ledgererr.NewInvalidFormatError("block reward amount does not match schedule")
	}

	for _, t := range b.Transactions {
		if err := l.applyTransactionLocked(t, height, now, validatorAddr); err != nil {
			l.mu.Unlock()
			return err
		}
	}

	l.registerEarlyValidatorLocked(validatorAddr, height, now)
	l.creditValidatorRewardLocked(validatorAddr, reward, height, now)

	l.blocks = append(l.blocks, b)
	l.blockByHash[b.Hash()] = b
	l.blockByHeight[height] = b
	l.utxo.UpdateConfirmations(height)
	l.mu.Unlock()

	if mp != nil {
		for _, t := range b.Transactions {
			mp.Remove(t.Hash())
		}
	}

	l.metrics.IncCounter("chain_blocks_added_total", nil)
	l.metrics.SetGauge("chain_height", float64(height), nil)
	l.logger.Infof("[Ledger] block %d accepted hash=%s validator=%s reward=%s", height, b.Hash(), validatorAddr, reward)
	return nil
}

// applyTransactionLocked dispatches a single transaction to the
// correct subsystem by type. Caller holds l.mu.
func (l *Ledger) applyTransactionLocked(t *tx.Transaction, height uint64, now time.Time, validatorAddr string) error {
	switch t.Type {
	case tx.TypeTransfer, tx.TypeReward, tx.TypeDeveloper:
		return l.detector.Process(t, height, now, validatorAddr)
	case tx.TypeStake:
		if err := l.detector.Process(t, height, now, validatorAddr); err != nil {
			return err
		}
		l.stakes[t.Sender] += t.Amount
		l.stakeLockedAtHeight[t.Sender] = height
		return nil
	case tx.TypeUnstake:
		return l.applyUnstakeLocked(t, height, now)
	case tx.TypeValidator:
		return l.applyValidatorRegistrationLocked(t, height, now)
	default:
		return ledgererr.NewInvalidFormatError("unknown transaction type")
	}
}

func (l *Ledger) applyUnstakeLocked(t *tx.Transaction, height uint64, now time.Time) error {
	if err := l.replay.Process(t, now); err != nil {
		return err
	}
	lockedAt, ok := l.stakeLockedAtHeight[t.Sender]
	if !ok {
		return ledgererr.NewUnauthorizedError("address has no active stake")
	}
	if height-lockedAt < l.params.MinStakeLockBlocks {
		return ledgererr.NewUnauthorizedError("stake is still within its minimum lock duration")
	}
	if t.Amount > l.stakes[t.Sender] {
		return ledgererr.NewInsufficientFundsError("unstake amount exceeds locked stake")
	}
	l.stakes[t.Sender] -= t.Amount
	l.utxo.AddUTXO(t.Hash()+"_unstake", t.Amount, t.Sender, height, now.Unix())
	return nil
}
