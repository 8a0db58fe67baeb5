// Copyright 2014 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"bytes"
	"encoding/hex"

	"github.com/holiman/uint256"
)

// HashLength is the expected length of a content hash in bytes (a blake2b
// digest, per the consensus decider's VRF/state-hash comparisons).
const HashLength = 32

// Hash represents a 32-byte content hash: a state hash, a snarked-ledger
// hash, or a staged-ledger hash. It is comparable and usable as a map key.
type Hash [HashLength]byte

// BytesToHash truncates or zero-extends b on the left to fit Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// Bytes returns a copy of h as a slice.
func (h Hash) Bytes() []byte { return h[:] }

// Hex renders h as a 0x-prefixed lowercase hex string.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// Cmp performs a lexicographic (big-endian) comparison, used directly by
// the consensus decider's state-hash tie-break.
func (h Hash) Cmp(other Hash) int { return bytes.Compare(h[:], other[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// PeerIDLength is the length of a peer's public-key-derived identity.
const PeerIDLength = 32

// PeerID identifies a peer by its public-key-derived id.
type PeerID [PeerIDLength]byte

func (p PeerID) Bytes() []byte { return p[:] }
func (p PeerID) Hex() string   { return "0x" + hex.EncodeToString(p[:]) }
func (p PeerID) String() string { return p.Hex() }

// VrfOutput is the 256-bit big-endian blake2b digest of a block's VRF
// output, compared as an unsigned 256-bit integer during short-range fork
// choice.
type VrfOutput [32]byte

// Cmp performs the big-endian 256-bit comparison the consensus decider's
// "BiggerVrf" tie-break relies on. Decoded through uint256 rather than
// compared byte-for-byte: the digest is an unsigned 256-bit integer,
// and uint256 avoids the allocation a math/big.Int comparison would cost
// on every candidate block.
func (v VrfOutput) Cmp(other VrfOutput) int {
	a := new(uint256.Int).SetBytes(v[:])
	b := new(uint256.Int).SetBytes(other[:])
	return a.Cmp(b)
}
