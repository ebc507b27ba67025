// Package block implements the BT2C block model of spec §4.7
// (component C7): Merkle commitment, canonical hashing, validator
// signature, and the block validity predicate.
//
// Grounded on the teacher's model.Block (model/Block.go) for the
// header/body split and the sign/verify shape, adapted to a
// self-contained in-memory block (no Aerospike/blob-store backing)
// since the ledger core owns its own Chain state rather than a
// separate UTXO-store service.
package block

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/bt2c-network/bt2c-core/ledgererr"
	"github.com/bt2c-network/bt2c-core/tx"
)

// ZeroHash is the 64 zero-character sentinel used for genesis's
// previous_hash and for an empty block's merkle root.
const ZeroHash = crypto.CoinbaseAddress

// Block is a single BT2C block (spec §3).
type Block struct {
	Index        uint64             `json:"index"`
	PreviousHash string             `json:"previous_hash"`
	Timestamp    int64              `json:"timestamp"`
	Transactions []*tx.Transaction  `json:"transactions"`
	Validator    string             `json:"validator"`
	Nonce        uint64             `json:"nonce"`

	mu           sync.Mutex
	cachedMerkle string
	cachedHash   string
	signature    []byte
}

// canonicalHeader is declared in alphabetical field-tag order so its
// JSON marshaling is sorted-key by construction, matching tx's
// canonical-serialization idiom.
type canonicalHeader struct {
	Index        uint64   `json:"index"`
	MerkleRoot   string   `json:"merkle_root"`
	Nonce        uint64   `json:"nonce"`
	PreviousHash string   `json:"previous_hash"`
	Timestamp    int64    `json:"timestamp"`
	Validator    string   `json:"validator"`
}

// New builds an unsigned block over txs at height index extending
// previousHash.
func New(index uint64, previousHash string, txs []*tx.Transaction, validator string, nonce uint64, timestamp int64) *Block {
	return &Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
		Transactions: txs,
		Validator:    validator,
		Nonce:        nonce,
	}
}

// CalculateMerkleRoot hashes the concatenation of transaction hashes
// in order (spec §4.7); an empty block's root is the zero sentinel.
func (b *Block) CalculateMerkleRoot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calculateMerkleRootLocked()
}

func (b *Block) calculateMerkleRootLocked() string {
	if len(b.Transactions) == 0 {
		b.cachedMerkle = ZeroHash
		return b.cachedMerkle
	}
	var buf bytes.Buffer
	for _, t := range b.Transactions {
		buf.WriteString(t.Hash())
	}
	sum := sha256.Sum256(buf.Bytes())
	b.cachedMerkle = hex.EncodeToString(sum[:])
	return b.cachedMerkle
}

// CalculateHash hashes the canonical serialization of the header,
// including the computed merkle root (spec §4.7).
func (b *Block) CalculateHash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calculateHashLocked()
}

func (b *Block) calculateHashLocked() string {
	merkle := b.calculateMerkleRootLocked()
	hdr := canonicalHeader{
		Index:        b.Index,
		MerkleRoot:   merkle,
		Nonce:        b.Nonce,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Validator:    b.Validator,
	}
	raw, err := json.Marshal(hdr)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	b.cachedHash = hex.EncodeToString(sum[:])
	return b.cachedHash
}

// Hash returns the cached block hash, computing it if necessary.
func (b *Block) Hash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cachedHash == "" {
		return b.calculateHashLocked()
	}
	return b.cachedHash
}

// MerkleRoot returns the cached merkle root, computing it if necessary.
func (b *Block) MerkleRoot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cachedMerkle == "" {
		return b.calculateMerkleRootLocked()
	}
	return b.cachedMerkle
}

// Sign signs the block's hash with the validator's key pair.
func (b *Block) Sign(kp *crypto.KeyPair) error {
	if kp == nil {
		return ledgererr.NewInvalidFormatError("nil validator keypair")
	}
	h := b.Hash()
	digest, err := hex.DecodeString(h)
	if err != nil {
		return ledgererr.NewInvalidFormatError("failed to decode block hash", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signature = kp.Sign(digest)
	return nil
}

// Signature returns the block's signature bytes, if any.
func (b *Block) Signature() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signature
}

// VerifySignature verifies the block's signature against the given
// validator public key.
func (b *Block) VerifySignature(pub ed25519.PublicKey) bool {
	b.mu.Lock()
	sig := b.signature
	b.mu.Unlock()
	if len(sig) == 0 {
		return false
	}
	h := b.Hash()
	digest, err := hex.DecodeString(h)
	if err != nil {
		return false
	}
	return crypto.Verify(pub, digest, sig)
}

// IsValidGenesis reports whether b matches the network's hardcoded
// genesis hash (spec §4.7: "Genesis accepted iff it matches the
// network's hardcoded hash").
func (b *Block) IsValidGenesis(expectedHash string) bool {
	return b.Index == 0 && b.PreviousHash == ZeroHash && b.Hash() == expectedHash
}

// IsValid runs the non-genesis validity predicate of spec §4.7:
// recomputed merkle root and hash match the stored ones, every
// contained transaction individually verifies, and the validator
// signature verifies against validatorPub.
func (b *Block) IsValid(validatorPub ed25519.PublicKey) error {
	b.mu.Lock()
	storedMerkle := b.cachedMerkle
	storedHash := b.cachedHash
	b.mu.Unlock()

	recomputedMerkle := b.CalculateMerkleRoot()
	if storedMerkle != "" && recomputedMerkle != storedMerkle {
		return ledgererr.NewIntegrityFailureError("merkle root mismatch")
	}
	recomputedHash := b.CalculateHash()
	if storedHash != "" && recomputedHash != storedHash {
		return ledgererr.NewIntegrityFailureError("block hash mismatch")
	}
	for _, t := range b.Transactions {
		if !t.Verify() {
			return ledgererr.NewBadSignatureError("transaction " + t.Hash() + " failed signature verification")
		}
	}
	if !b.VerifySignature(validatorPub) {
		return ledgererr.NewBadSignatureError("validator signature failed verification")
	}
	return nil
}

// SizeBytes sums the canonical size of every contained transaction,
// used for block-size metrics. The header is not counted.
func (b *Block) SizeBytes() (int, error) {
	total := 0
	for _, t := range b.Transactions {
		n, err := t.SizeBytes()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// wireBlock is the canonical on-wire/export form (spec §6): header
// fields, transactions as their own canonical JSON, merkle_root/hash
// as hex, signature as base64.
type wireBlock struct {
	Index        uint64            `json:"index"`
	PreviousHash string            `json:"previous_hash"`
	Timestamp    int64             `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
	Validator    string            `json:"validator"`
	Nonce        uint64            `json:"nonce"`
	MerkleRoot   string            `json:"merkle_root"`
	Hash         string            `json:"hash"`
	Signature    string            `json:"signature,omitempty"`
}

// MarshalCanonical renders the block's full wire/export form.
func (b *Block) MarshalCanonical() ([]byte, error) {
	txRaws := make([]json.RawMessage, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		raw, err := t.MarshalCanonical()
		if err != nil {
			return nil, err
		}
		txRaws = append(txRaws, raw)
	}
	b.mu.Lock()
	sig := b.signature
	b.mu.Unlock()
	w := wireBlock{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Transactions: txRaws,
		Validator:    b.Validator,
		Nonce:        b.Nonce,
		MerkleRoot:   b.MerkleRoot(),
		Hash:         b.Hash(),
	}
	if len(sig) > 0 {
		w.Signature = base64.StdEncoding.EncodeToString(sig)
	}
	return json.Marshal(w)
}

// FromCanonical parses a block's wire/export form back into a Block.
func FromCanonical(raw []byte) (*Block, error) {
	var w wireBlock
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, ledgererr.NewInvalidFormatError("malformed block JSON", err)
	}
	txs := make([]*tx.Transaction, 0, len(w.Transactions))
	for _, txRaw := range w.Transactions {
		t, err := tx.FromCanonical(txRaw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	b := &Block{
		Index:        w.Index,
		PreviousHash: w.PreviousHash,
		Timestamp:    w.Timestamp,
		Transactions: txs,
		Validator:    w.Validator,
		Nonce:        w.Nonce,
	}
	if w.Signature != "" {
		sig, err := base64.StdEncoding.DecodeString(w.Signature)
		if err != nil {
			return nil, ledgererr.NewInvalidFormatError("malformed block signature", err)
		}
		b.signature = sig
	}
	merkle := b.CalculateMerkleRoot()
	if w.MerkleRoot != "" && merkle != w.MerkleRoot {
		return nil, ledgererr.NewIntegrityFailureError("merkle root mismatch on decode")
	}
	hash := b.CalculateHash()
	if w.Hash != "" && hash != w.Hash {
		return nil, ledgererr.NewIntegrityFailureError("block hash mismatch on decode")
	}
	return b, nil
}
