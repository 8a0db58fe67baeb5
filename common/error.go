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

import "errors"

// Sentinel errors for the taxonomy in the error-handling design: protocol
// errors, verification failures, transport errors, service errors and
// resource-limit errors are all represented as plain values rather than a
// hierarchy of custom types, matching the rest of this package.
var (
	// ErrIndexOutOfBounds is returned for a Merkle address outside the
	// tree's configured depth.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrUnknownRpcID is returned by the RPC correlator when asked to
	// respond to an id it has no pending responder for.
	ErrUnknownRpcID = errors.New("unknown rpc id")

	// ErrUnexpectedResponseType is returned when a reply arrives for a
	// pending rpc id but does not match the responder variant registered
	// for it.
	ErrUnexpectedResponseType = errors.New("unexpected response type")

	// ErrPeerNotFound indicates an operation referenced a peer id the
	// directory has no record of.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrMaxPeersReached is the resource-limit error for peer admission.
	ErrMaxPeersReached = errors.New("max peers reached")

	// ErrPoolFull is the resource-limit error for pool admission.
	ErrPoolFull = errors.New("pool full")

	// ErrLedgerHashMismatch indicates fetched ledger data does not hash to
	// the value the sync target committed to.
	ErrLedgerHashMismatch = errors.New("ledger hash mismatch")

	// ErrBlockAlreadyApplied indicates a duplicate block application was
	// rejected as a no-op (idempotence).
	ErrBlockAlreadyApplied = errors.New("block already applied")
)
