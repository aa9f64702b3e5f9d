package ledger

import (
	"encoding/hex"
	"strings"
	"testing"

	"eventpass/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeBech32 is the test-side inverse of decodeBech32, used to build
// addresses from known payloads.
func encodeBech32(t *testing.T, hrp string, payload []byte, checksumConst uint32) string {
	t.Helper()

	values, err := convertBits(payload, 8, 5, true)
	require.NoError(t, err)

	chkInput := append(bech32HRPExpand(hrp), values...)
	chkInput = append(chkInput, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(chkInput) ^ checksumConst

	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, v := range values {
		sb.WriteByte(bech32Charset[v])
	}
	for i := 0; i < 6; i++ {
		sb.WriteByte(bech32Charset[polymod>>uint(5*(5-i))&31])
	}
	return sb.String()
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestParseAddress_FullFormat(t *testing.T) {
	codeHash := "9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8"
	args := "b39bbc0b3673c7d36450bc14cfcdad2d559c6c64"

	payload := []byte{formatFull}
	payload = append(payload, mustHex(t, codeHash)...)
	payload = append(payload, 0x01) // hash type "type"
	payload = append(payload, mustHex(t, args)...)

	address := encodeBech32(t, "ckb", payload, bech32mConst)

	script, err := ParseAddress(address, "ckb")
	require.NoError(t, err)
	assert.Equal(t, "0x"+codeHash, script.CodeHash)
	assert.Equal(t, "type", script.HashType)
	assert.Equal(t, "0x"+args, script.Args)
}

// Golden vector from the ledger's address format RFC.
func TestParseAddress_FullFormatGolden(t *testing.T) {
	script, err := ParseAddress(
		"ckb1qzda0cr08m85hc8jlnfp3zer7xulejywt49kt2rr0vthywaa50xwsqdnnw7qkdnnclfkg59uzn8umtfd2kwxceqxwquc4",
		"ckb",
	)
	require.NoError(t, err)
	assert.Equal(t, "0x9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8", script.CodeHash)
	assert.Equal(t, "type", script.HashType)
	assert.Equal(t, "0xb39bbc0b3673c7d36450bc14cfcdad2d559c6c64", script.Args)
}

func TestParseAddress_ShortFormat(t *testing.T) {
	args := "b39bbc0b3673c7d36450bc14cfcdad2d559c6c64"

	payload := []byte{formatShort, 0x00}
	payload = append(payload, mustHex(t, args)...)
	address := encodeBech32(t, "ckb", payload, bech32Const)

	script, err := ParseAddress(address, "ckb")
	require.NoError(t, err)
	assert.Equal(t, secp256k1Blake160CodeHash, script.CodeHash)
	assert.Equal(t, "type", script.HashType)
	assert.Equal(t, "0x"+args, script.Args)
}

func TestParseAddress_DeprecatedFullFormats(t *testing.T) {
	codeHash := mustHex(t, "9bd7e06f3ecf4be0f2fcd2188b23f1b9fcc88e5d4b65a8637b17723bbda3cce8")
	args := mustHex(t, "b39bbc0b3673c7d36450bc14cfcdad2d559c6c64")

	for format, wantHashType := range map[byte]string{
		formatFullData: "data",
		formatFullType: "type",
	} {
		payload := []byte{format}
		payload = append(payload, codeHash...)
		payload = append(payload, args...)
		address := encodeBech32(t, "ckb", payload, bech32Const)

		script, err := ParseAddress(address, "ckb")
		require.NoError(t, err)
		assert.Equal(t, wantHashType, script.HashType)
	}
}

func TestParseAddress_WrongNetworkPrefix(t *testing.T) {
	payload := append([]byte{formatShort, 0x00}, mustHex(t, "b39bbc0b3673c7d36450bc14cfcdad2d559c6c64")...)
	address := encodeBech32(t, "ckt", payload, bech32Const)

	_, err := ParseAddress(address, "ckb")
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestParseAddress_CorruptedChecksum(t *testing.T) {
	payload := append([]byte{formatShort, 0x00}, mustHex(t, "b39bbc0b3673c7d36450bc14cfcdad2d559c6c64")...)
	address := encodeBech32(t, "ckb", payload, bech32Const)

	// Flip the last data character.
	last := address[len(address)-1]
	replacement := byte('q')
	if last == 'q' {
		replacement = 'p'
	}
	corrupted := address[:len(address)-1] + string(replacement)

	_, err := ParseAddress(corrupted, "ckb")
	assert.ErrorIs(t, err, status.ErrValidation)
}

func TestParseAddress_Garbage(t *testing.T) {
	for _, input := range []string{"", "not-an-address", "ckb1", "1qqqqq"} {
		_, err := ParseAddress(input, "ckb")
		assert.ErrorIs(t, err, status.ErrValidation, "input %q", input)
	}
}
