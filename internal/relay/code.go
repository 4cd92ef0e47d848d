package relay

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
)

// codeAlphabet excludes the visually ambiguous glyphs 0/O/1/I so codes can
// be read aloud or retyped from a screen without mistakes.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeLength is the fixed length of every room code.
const CodeLength = 6

// maxCodeAttempts bounds collision retries during code generation. With a
// 32^6 code space this is unreachable outside of a broken random source.
const maxCodeAttempts = 64

// ErrCodeSpaceExhausted is returned when code generation keeps colliding
// with live rooms past the retry bound.
var ErrCodeSpaceExhausted = errors.New("room code space exhausted")

// randomCode produces one candidate room code. Uniqueness against live
// rooms is the hub's job.
func randomCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[randomIndex(len(codeAlphabet))])
	}
	return b.String()
}

// randomIndex returns a cryptographically secure random index for a slice
// of the given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}

// NormalizeCode maps user input onto the canonical code form. Codes are
// generated upper-case; joins are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
