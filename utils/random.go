package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TicketCodeLength is the length of a ticket code in characters. Codes are
// lowercase hex so they stay human-enterable at the door.
const TicketCodeLength = 12

// GenerateTicketCode returns a random lowercase hex code of TicketCodeLength
// characters from a cryptographically secure source.
func GenerateTicketCode() (string, error) {
	byt := make([]byte, TicketCodeLength/2)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return hex.EncodeToString(byt), nil
}
