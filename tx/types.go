package tx

import (
	"encoding/json"
	"strings"

	"github.com/bt2c-network/bt2c-core/ledgererr"
)

// NetworkType selects which genesis/consensus parameters a transaction
// and the chain it belongs to are bound to.
type NetworkType int

const (
	NetworkUnknown NetworkType = iota
	NetworkMainnet
	NetworkTestnet
	NetworkDevnet
)

func (n NetworkType) String() string {
	switch n {
	case NetworkMainnet:
		return "mainnet"
	case NetworkTestnet:
		return "testnet"
	case NetworkDevnet:
		return "devnet"
	default:
		return "unknown"
	}
}

func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToLower(s) {
	case "mainnet":
		return NetworkMainnet, nil
	case "testnet":
		return NetworkTestnet, nil
	case "devnet":
		return NetworkDevnet, nil
	default:
		return NetworkUnknown, ledgererr.NewInvalidFormatError("unknown network " + s)
	}
}

func (n NetworkType) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *NetworkType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseNetworkType(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Type is the transaction kind (spec §3).
type Type int

const (
	TypeUnknown Type = iota
	TypeTransfer
	TypeStake
	TypeUnstake
	TypeValidator
	TypeReward
	TypeDeveloper
)

func (t Type) String() string {
	switch t {
	case TypeTransfer:
		return "transfer"
	case TypeStake:
		return "stake"
	case TypeUnstake:
		return "unstake"
	case TypeValidator:
		return "validator"
	case TypeReward:
		return "reward"
	case TypeDeveloper:
		return "developer"
	default:
		return "unknown"
	}
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "transfer":
		return TypeTransfer, nil
	case "stake":
		return TypeStake, nil
	case "unstake":
		return TypeUnstake, nil
	case "validator":
		return TypeValidator, nil
	case "reward":
		return TypeReward, nil
	case "developer":
		return TypeDeveloper, nil
	default:
		return TypeUnknown, ledgererr.NewInvalidFormatError("unknown transaction type " + s)
	}
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsSystemOnly reports whether transactions of this type are only
// admissible as part of a block the chain itself produces (spec §4.2:
// REWARD/DEVELOPER), never via external admission through the mempool.
func (t Type) IsSystemOnly() bool {
	return t == TypeReward || t == TypeDeveloper
}
