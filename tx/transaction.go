// Package tx implements the BT2C transaction model: canonical
// serialization, hashing, signing, and the validation and fee rules of
// spec §4.2 (component C2).
package tx

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bt2c-network/bt2c-core/amount"
	"github.com/bt2c-network/bt2c-core/crypto"
	"github.com/bt2c-network/bt2c-core/ledgererr"
)

// CoinbaseAddress re-exports crypto.CoinbaseAddress so callers need not
// import both packages for the single sentinel value.
const CoinbaseAddress = crypto.CoinbaseAddress

const (
	minFee          = amount.MinUnit
	maxFee          = amount.Scale * 1000
	minExpirySecs   = 300
	maxExpirySecs   = 86400
	minStakeAmount  = amount.Scale // 1.0 BT2C
	feeSizeDivisor  = 250
)

// Transaction is a single signed BT2C transaction (spec §3).
type Transaction struct {
	Sender          string                 `json:"sender"`
	Recipient       string                 `json:"recipient"`
	Amount          amount.Amount          `json:"amount"`
	Fee             amount.Amount          `json:"fee"`
	Nonce           uint64                 `json:"nonce"`
	Timestamp       int64                  `json:"timestamp"`
	Expiry          int64                  `json:"expiry"`
	Network         NetworkType            `json:"network"`
	Type            Type                   `json:"type"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	SenderPublicKey []byte                 `json:"sender_public_key,omitempty"`
	Signature       []byte                 `json:"signature,omitempty"`

	mu          sync.Mutex
	cachedHash  string
	verifiedOK  bool
	verifyKnown bool
}

// NewParams carries the fields a caller supplies to New; Timestamp and
// Hash are computed, not supplied.
type NewParams struct {
	Sender    string
	Recipient string
	Amount    amount.Amount
	Fee       amount.Amount
	Nonce     uint64
	Expiry    int64
	Network   NetworkType
	Type      Type
	Payload   map[string]interface{}
}

// New validates p's ranges, stamps the current time, and computes the
// transaction hash. The result is unsigned.
func New(p NewParams, now time.Time) (*Transaction, error) {
	t := &Transaction{
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Fee:       p.Fee,
		Nonce:     p.Nonce,
		Timestamp: now.Unix(),
		Expiry:    p.Expiry,
		Network:   p.Network,
		Type:      p.Type,
		Payload:   p.Payload,
	}
	if err := t.validateRanges(); err != nil {
		return nil, err
	}
	if err := t.validateTypeRules(); err != nil {
		return nil, err
	}
	t.Hash()
	return t, nil
}

func (t *Transaction) validateRanges() error {
	if t.Sender == "" || t.Recipient == "" {
		return ledgererr.NewInvalidFormatError("sender and recipient are required")
	}
	if t.Amount <= 0 {
		return ledgererr.NewInvalidFormatError("amount must be strictly positive")
	}
	if t.Amount > amount.MaxAmount {
		return ledgererr.NewInvalidFormatError("amount exceeds maximum")
	}
	if t.Fee < minFee {
		return ledgererr.NewInvalidFormatError("fee below minimum 1e-8")
	}
	if t.Fee > maxFee {
		return ledgererr.NewInvalidFormatError("fee exceeds maximum 1000")
	}
	if t.Expiry < minExpirySecs || t.Expiry > maxExpirySecs {
		return ledgererr.NewInvalidFormatError("expiry out of [300,86400] range")
	}
	if t.Network == NetworkUnknown {
		return ledgererr.NewInvalidFormatError("network is required")
	}
	if t.Type == TypeUnknown {
		return ledgererr.NewInvalidFormatError("transaction type is required")
	}
	return nil
}

// validateTypeRules enforces the per-type invariants of spec §4.2.
func (t *Transaction) validateTypeRules() error {
	switch t.Type {
	case TypeTransfer:
		if t.Amount <= 0 {
			return ledgererr.NewInvalidFormatError("transfer amount must be positive")
		}
	case TypeStake:
		if t.Amount < minStakeAmount {
			return ledgererr.NewInvalidFormatError("stake amount must be >= 1.0")
		}
		if t.Sender != t.Recipient {
			return ledgererr.NewInvalidFormatError("stake sender must equal recipient")
		}
	case TypeUnstake:
		if t.Payload == nil || t.Payload["stake_id"] == nil {
			return ledgererr.NewInvalidFormatError("unstake payload must contain stake_id")
		}
	case TypeValidator:
		if t.Payload == nil || t.Payload["validator"] == nil {
			return ledgererr.NewInvalidFormatError("validator payload must contain validator metadata")
		}
	case TypeReward, TypeDeveloper:
		// Admissibility outside chain-produced blocks is enforced by the
		// mempool/chain, not here; the shape itself is unconstrained.
	}
	return nil
}

// canonicalFields is the field order used for both the hash preimage
// (hash/signature excluded) and the full wire form. Declared in
// alphabetical key-name order so encoding/json's field-declaration-order
// output is, by construction, sorted-key JSON (spec §4.2: "JSON with
// sorted keys").
type canonicalFields struct {
	Amount          string                 `json:"amount"`
	Expiry          int64                  `json:"expiry"`
	Fee             string                 `json:"fee"`
	Network         string                 `json:"network"`
	Nonce           uint64                 `json:"nonce"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	Recipient       string                 `json:"recipient"`
	Sender          string                 `json:"sender"`
	SenderPublicKey string                 `json:"sender_public_key,omitempty"`
	Timestamp       int64                  `json:"timestamp"`
	Type            string                 `json:"type"`
}

func (t *Transaction) toCanonicalFields() canonicalFields {
	var pubB64 string
	if len(t.SenderPublicKey) > 0 {
		pubB64 = base64.StdEncoding.EncodeToString(t.SenderPublicKey)
	}
	return canonicalFields{
		Amount:          t.Amount.String(),
		Expiry:          t.Expiry,
		Fee:             t.Fee.String(),
		Network:         t.Network.String(),
		Nonce:           t.Nonce,
		Payload:         sortedPayload(t.Payload),
		Recipient:       t.Recipient,
		Sender:          t.Sender,
		SenderPublicKey: pubB64,
		Timestamp:       t.Timestamp,
		Type:            t.Type.String(),
	}
}

// sortedPayload is a no-op placeholder keeping payload emission
// explicit (map key order is handled by canonicalizeJSON below, which
// re-serializes every object's keys in sorted order, including nested
// payload maps).
func sortedPayload(p map[string]interface{}) map[string]interface{} { return p }

// CanonicalPreimage returns the exact byte sequence hashed to produce
// Hash(): canonical JSON of every field except hash and signature.
func (t *Transaction) CanonicalPreimage() ([]byte, error) {
	cf := t.toCanonicalFields()
	raw, err := json.Marshal(cf)
	if err != nil {
		return nil, ledgererr.NewInvalidFormatError("failed to marshal canonical preimage", err)
	}
	return canonicalizeJSON(raw)
}

// canonicalizeJSON re-encodes arbitrary JSON with object keys sorted at
// every nesting level, guaranteeing stable output regardless of the
// iteration order Go's map type would otherwise produce for nested
// payload objects.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// Hash computes (and caches) the transaction hash: sha256 hex of the
// canonical preimage. Safe to call repeatedly; deterministic given the
// current field values.
func (t *Transaction) Hash() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	preimage, err := t.CanonicalPreimage()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(preimage)
	t.cachedHash = hex.EncodeToString(sum[:])
	return t.cachedHash
}

// Sign computes the hash if missing, signs it with kp, and caches the
// signature and sender public key. Invalidates the cached verification
// result, per spec §4.2.
func (t *Transaction) Sign(kp *crypto.KeyPair) error {
	if kp == nil {
		return ledgererr.NewInvalidFormatError("nil keypair")
	}
	// The public key is part of the hash preimage, so it is set before
	// hashing; otherwise Verify would recompute a different hash.
	t.mu.Lock()
	t.SenderPublicKey = []byte(kp.Public)
	t.mu.Unlock()
	h := t.Hash()
	digest, err := hex.DecodeString(h)
	if err != nil {
		return ledgererr.NewInvalidFormatError("failed to decode hash", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Signature = kp.Sign(digest)
	t.verifyKnown = false
	return nil
}

// Verify reports whether the transaction's signature is valid. The
// coinbase sentinel always verifies (it has no key); otherwise the
// sender's declared public key must hash to the sender address and the
// signature must verify against the transaction hash. The result is
// cached after the first successful verification.
func (t *Transaction) Verify() bool {
	t.mu.Lock()
	if t.verifyKnown {
		ok := t.verifiedOK
		t.mu.Unlock()
		return ok
	}
	t.mu.Unlock()

	ok := t.verifyUncached()
	t.mu.Lock()
	if ok {
		t.verifiedOK = true
		t.verifyKnown = true
	}
	t.mu.Unlock()
	return ok
}

func (t *Transaction) verifyUncached() bool {
	if t.Sender == CoinbaseAddress {
		return true
	}
	if len(t.SenderPublicKey) != ed25519.PublicKeySize || len(t.Signature) == 0 {
		return false
	}
	pub, err := crypto.ImportPublicKey(t.SenderPublicKey)
	if err != nil {
		return false
	}
	if crypto.Address(pub) != t.Sender {
		return false
	}
	h := t.Hash()
	digest, err := hex.DecodeString(h)
	if err != nil {
		return false
	}
	return crypto.Verify(pub, digest, t.Signature)
}

// IsExpired reports whether now is past timestamp+expiry.
func (t *Transaction) IsExpired(now time.Time) bool {
	return now.Unix() > t.Timestamp+t.Expiry
}

// SizeBytes is the length of the transaction's full canonical
// serialization (hash + signature included), used for fee-per-byte and
// mempool capacity accounting.
func (t *Transaction) SizeBytes() (int, error) {
	full, err := t.MarshalCanonical()
	if err != nil {
		return 0, err
	}
	return len(full), nil
}

// MarshalCanonical returns the full canonical JSON form (preimage
// fields plus hash and signature), sorted-key, used for wire/file
// export (spec §6).
func (t *Transaction) MarshalCanonical() ([]byte, error) {
	if t.cachedHash == "" {
		t.Hash()
	}
	preimage, err := t.CanonicalPreimage()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(preimage))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	m["hash"] = t.cachedHash
	if len(t.Signature) > 0 {
		m["signature"] = base64.StdEncoding.EncodeToString(t.Signature)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return canonicalizeJSON(raw)
}

// CalculateFee implements spec §4.2's
// max(1e-8, round_down_8(1e-8 x size/250)). Amount's raw unit IS 1e-8
// BT2C, so "1e-8 x size/250" reduces to an integer floor division with
// no intermediate floating point.
func CalculateFee(sizeBytes int) amount.Amount {
	raw := amount.Amount(int64(sizeBytes) / feeSizeDivisor)
	if raw < amount.MinUnit {
		return amount.MinUnit
	}
	return raw
}

// wireForm mirrors canonicalFields but adds hash/signature for
// round-tripping the full wire representation produced by
// MarshalCanonical.
type wireForm struct {
	canonicalFields
	Hash      string `json:"hash"`
	Signature string `json:"signature,omitempty"`
}

// FromCanonical parses the full canonical JSON form (as produced by
// MarshalCanonical) back into a Transaction. Used for persistence
// import/export and for verifying canonical-serialize-then-deserialize
// is the identity (spec §8).
func FromCanonical(raw []byte) (*Transaction, error) {
	var w wireForm
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, ledgererr.NewInvalidFormatError("malformed transaction JSON", err)
	}
	amt, err := amount.Parse(w.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := amount.Parse(w.Fee)
	if err != nil {
		return nil, err
	}
	network, err := ParseNetworkType(w.Network)
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(w.Type)
	if err != nil {
		return nil, err
	}
	t := &Transaction{
		Sender:    w.Sender,
		Recipient: w.Recipient,
		Amount:    amt,
		Fee:       fee,
		Nonce:     w.Nonce,
		Timestamp: w.Timestamp,
		Expiry:    w.Expiry,
		Network:   network,
		Type:      typ,
		Payload:   w.Payload,
	}
	if w.SenderPublicKey != "" {
		pub, err := base64.StdEncoding.DecodeString(w.SenderPublicKey)
		if err != nil {
			return nil, ledgererr.NewInvalidFormatError("malformed sender_public_key", err)
		}
		t.SenderPublicKey = pub
	}
	if w.Signature != "" {
		sig, err := base64.StdEncoding.DecodeString(w.Signature)
		if err != nil {
			return nil, ledgererr.NewInvalidFormatError("malformed signature", err)
		}
		t.Signature = sig
	}
	computed := t.Hash()
	if w.Hash != "" && computed != w.Hash {
		return nil, ledgererr.NewIntegrityFailureError("transaction hash mismatch on decode")
	}
	return t, nil
}
