package ledger

import (
	"strconv"
	"strings"
)

// LockScript is the canonical locking condition used everywhere outside the
// RPC boundary. All fields are lowercase 0x-prefixed hex.
type LockScript struct {
	CodeHash string `json:"code_hash"`
	HashType string `json:"hash_type"`
	Args     string `json:"args"`
}

// Equal is a structural comparison: every field must match exactly.
func (s LockScript) Equal(other LockScript) bool {
	return s.CodeHash == other.CodeHash &&
		s.HashType == other.HashType &&
		s.Args == other.Args
}

// rpcScript carries both casing conventions ledger nodes answer with.
type rpcScript struct {
	CodeHash      string `json:"code_hash"`
	CodeHashCamel string `json:"codeHash"`
	Args          string `json:"args"`
	HashType      string `json:"hash_type"`
	HashTypeCamel string `json:"hashType"`
}

// NormalizeScript collapses an RPC script shape into the canonical
// LockScript. Snake case wins when both casings are present; hex fields are
// lowercased and 0x-prefixed so structural equality is byte equality.
func normalizeScript(raw rpcScript) LockScript {
	codeHash := raw.CodeHash
	if codeHash == "" {
		codeHash = raw.CodeHashCamel
	}
	hashType := raw.HashType
	if hashType == "" {
		hashType = raw.HashTypeCamel
	}
	return LockScript{
		CodeHash: normalizeHex(codeHash),
		HashType: strings.ToLower(strings.TrimSpace(hashType)),
		Args:     normalizeHex(raw.Args),
	}
}

func normalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// parseCapacity parses an output capacity in the ledger's hex encoding.
// Returns ok=false for anything that does not parse as a non-negative
// 64-bit quantity.
func parseCapacity(capacity string) (uint64, bool) {
	capacity = strings.ToLower(strings.TrimSpace(capacity))
	capacity = strings.TrimPrefix(capacity, "0x")
	if capacity == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(capacity, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
