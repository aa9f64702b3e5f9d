package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"eventpass/internal/status"
)

// Well-known code hashes for the deprecated short address format.
const (
	secp256k1Blake160CodeHash = "0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8"
	multisigCodeHash          = "0x5c5069eb0857efc65e1bca0c07df34c31663b3622fd3876c876320fc9634e2a8"
)

// Address payload format bytes.
const (
	formatFull      = 0x00 // code_hash | hash_type | args, bech32m
	formatShort     = 0x01 // code_hash_index | args, deprecated
	formatFullData  = 0x02 // code_hash | args, hash_type data, deprecated
	formatFullType  = 0x04 // code_hash | args, hash_type type, deprecated
)

var fullHashTypes = map[byte]string{
	0x00: "data",
	0x01: "type",
	0x02: "data1",
	0x04: "data2",
}

// ParseAddress decodes a ledger address into its locking condition. hrp is
// the expected network prefix; empty accepts any. Failures are validation
// errors: an organizer payout address that does not parse can never be paid.
func ParseAddress(address, hrp string) (LockScript, error) {
	gotHRP, values, err := decodeBech32(strings.TrimSpace(address))
	if err != nil {
		return LockScript{}, fmt.Errorf("%w: address %q: %v", status.ErrValidation, address, err)
	}
	if hrp != "" && gotHRP != hrp {
		return LockScript{}, fmt.Errorf("%w: address prefix %q, want %q", status.ErrValidation, gotHRP, hrp)
	}

	payload, err := convertBits(values, 5, 8, false)
	if err != nil || len(payload) == 0 {
		return LockScript{}, fmt.Errorf("%w: malformed address payload", status.ErrValidation)
	}

	switch payload[0] {
	case formatFull:
		// 1 format + 32 code hash + 1 hash type + at least 1 args byte
		if len(payload) < 35 {
			return LockScript{}, fmt.Errorf("%w: full address payload too short", status.ErrValidation)
		}
		hashType, ok := fullHashTypes[payload[33]]
		if !ok {
			return LockScript{}, fmt.Errorf("%w: unknown hash type byte %#x", status.ErrValidation, payload[33])
		}
		return LockScript{
			CodeHash: hexPrefix(payload[1:33]),
			HashType: hashType,
			Args:     hexPrefix(payload[34:]),
		}, nil

	case formatShort:
		if len(payload) != 22 {
			return LockScript{}, fmt.Errorf("%w: short address payload must be 22 bytes", status.ErrValidation)
		}
		var codeHash string
		switch payload[1] {
		case 0x00:
			codeHash = secp256k1Blake160CodeHash
		case 0x01:
			codeHash = multisigCodeHash
		default:
			return LockScript{}, fmt.Errorf("%w: unknown short address index %#x", status.ErrValidation, payload[1])
		}
		return LockScript{
			CodeHash: codeHash,
			HashType: "type",
			Args:     hexPrefix(payload[2:]),
		}, nil

	case formatFullData, formatFullType:
		if len(payload) < 34 {
			return LockScript{}, fmt.Errorf("%w: full address payload too short", status.ErrValidation)
		}
		hashType := "data"
		if payload[0] == formatFullType {
			hashType = "type"
		}
		return LockScript{
			CodeHash: hexPrefix(payload[1:33]),
			HashType: hashType,
			Args:     hexPrefix(payload[33:]),
		}, nil

	default:
		return LockScript{}, fmt.Errorf("%w: unknown address format %#x", status.ErrValidation, payload[0])
	}
}

func hexPrefix(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
