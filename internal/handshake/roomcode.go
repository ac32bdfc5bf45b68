package handshake

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// roomCodeDigits is the room-code length the sender path generates
// (spec §4.6 "generate a 6-digit rendezvous code").
const roomCodeDigits = 6

// GenerateRoomCode produces a fresh 6-digit rendezvous code. Uses
// crypto/rand rather than math/rand: a guessable code would let an
// unrelated third party join the room before the intended peer does,
// which is the entirety of this system's access control.
func GenerateRoomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < roomCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", roomCodeDigits, n.Int64()), nil
}
