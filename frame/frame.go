// Copyright (C) 2026 The weft authors. All Rights Reserved.

// Package frame provides the wire encoding shared by all weft links: the
// preamble word that marks the start of a frame, the header word carrying the
// port and payload length, and bit-packed payload layouts.
package frame

import (
	"encoding/binary"
	"fmt"
)

// A Word is one transfer unit of the physical link. Links configure a word
// width in whole bytes; only the low width bits of a Word are meaningful.
type Word uint64

// Preamble is the magic word that begins every frame. A receiver searching
// for a frame boundary discards words until it sees this value.
const Preamble Word = 0x5AA55AA5

// MinWordBytes is the smallest word width a link may be configured with.
// The preamble and the port/length header are packed into single words, so a
// word must be at least 32 bits wide.
const MinWordBytes = 4

// MaxLength is the largest payload size in bytes a frame header can carry.
const MaxLength = 1<<16 - 1

// Header encodes a frame header word: the port in bits 0-7 and the payload
// length in bytes in bits 8-23. The remaining bits are reserved and zero.
func Header(port uint8, length uint16) Word {
	return Word(length)<<8 | Word(port)
}

// ParseHeader decodes the port and payload length from a header word.
// Reserved bits are ignored.
func ParseHeader(w Word) (port uint8, length uint16) {
	return uint8(w), uint16(w >> 8)
}

// AppendWord appends the low size bytes of w to buf in big-endian order and
// returns the updated slice. It panics if size is not in 1..8.
func AppendWord(buf []byte, w Word, size int) []byte {
	if size < 1 || size > 8 {
		panic(fmt.Sprintf("invalid word size %d", size))
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(w))
	return append(buf, tmp[8-size:]...)
}

// ParseWord decodes a big-endian word of the given size from the front of
// buf. It panics if size is not in 1..8 or buf is shorter than size.
func ParseWord(buf []byte, size int) Word {
	if size < 1 || size > 8 {
		panic(fmt.Sprintf("invalid word size %d", size))
	}
	var w Word
	for _, b := range buf[:size] {
		w = w<<8 | Word(b)
	}
	return w
}
