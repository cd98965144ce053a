/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import (
	"crypto/rand"
	"fmt"
)

const (
	codeAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
	codeLength      = 5
	maxCodeAttempts = 64
)

// CodeGenerator returns a candidate room code. The registry is responsible
// for rejecting codes that collide with a live room.
type CodeGenerator func() (string, error)

// Bytes at or above this are rejected so every alphabet symbol is equally
// likely. 252 is the largest multiple of 36 that fits in a byte.
const codeByteLimit = 256 - 256%len(codeAlphabet)

// RandomCode returns codeLength characters drawn uniformly from [0-9a-z] via
// crypto/rand.
func RandomCode() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)

	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}

		out = appendCodeSymbols(out, buf)
	}

	return string(out), nil
}

// appendCodeSymbols maps each byte of src below codeByteLimit onto the
// alphabet until dst holds codeLength symbols.
func appendCodeSymbols(dst, src []byte) []byte {
	for _, b := range src {
		if len(dst) == codeLength {
			break
		}
		if int(b) >= codeByteLimit {
			continue
		}

		dst = append(dst, codeAlphabet[int(b)%len(codeAlphabet)])
	}

	return dst
}
