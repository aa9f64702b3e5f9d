package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// bech32 / bech32m decoding for ledger addresses. Full-format addresses are
// longer than the 90 characters BIP-173 decoders allow, so the checksum
// handling lives here instead of behind a Bitcoin-oriented dependency.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const (
	bech32Const  uint32 = 1
	bech32mConst uint32 = 0x2bc830a3
)

var bech32CharsetRev [128]int8

func init() {
	for i := range bech32CharsetRev {
		bech32CharsetRev[i] = -1
	}
	for i, c := range bech32Charset {
		bech32CharsetRev[c] = int8(i)
	}
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		b := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	expanded := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		expanded = append(expanded, byte(c)>>5)
	}
	expanded = append(expanded, 0)
	for _, c := range hrp {
		expanded = append(expanded, byte(c)&31)
	}
	return expanded
}

// decodeBech32 decodes a bech32 or bech32m string without a length limit and
// returns the human-readable part and the 5-bit data values, checksum
// stripped. Either checksum constant is accepted; the address payload byte
// determines the format, not the checksum flavor.
func decodeBech32(bech string) (string, []byte, error) {
	if strings.ToLower(bech) != bech && strings.ToUpper(bech) != bech {
		return "", nil, errors.New("mixed case string")
	}
	bech = strings.ToLower(bech)

	sep := strings.LastIndex(bech, "1")
	if sep < 1 || sep+7 > len(bech) {
		return "", nil, errors.New("invalid separator position")
	}
	hrp := bech[:sep]

	values := make([]byte, 0, len(bech)-sep-1)
	for _, c := range bech[sep+1:] {
		if c >= 128 || bech32CharsetRev[c] == -1 {
			return "", nil, fmt.Errorf("invalid character %q", c)
		}
		values = append(values, byte(bech32CharsetRev[c]))
	}

	chk := bech32Polymod(append(bech32HRPExpand(hrp), values...))
	if chk != bech32Const && chk != bech32mConst {
		return "", nil, errors.New("invalid checksum")
	}

	return hrp, values[:len(values)-6], nil
}

// convertBits regroups the data from fromBits-sized groups to toBits-sized
// groups, as defined by BIP-173.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	maxv := uint32(1)<<toBits - 1
	out := make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)

	for _, v := range data {
		if uint(v)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data value %d", v)
		}
		acc = acc<<fromBits | uint32(v)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}

	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, errors.New("invalid padding")
	}

	return out, nil
}
