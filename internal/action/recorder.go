// Copyright 2015 The go-probeum Authors
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

package action

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/crypto/blake2b"
)

// checksumSize is the trailing blake2b-256 digest appended to every
// actions_N.bin frame so a replay tool can detect a segment truncated or
// corrupted by a crash mid-write, rather than silently decoding garbage.
const checksumSize = 32

func checksum(payload []byte) [checksumSize]byte {
	return blake2b.Sum256(payload)
}

// DefaultSegmentBytes is the rolling size of an actions_N.bin segment
// before the recorder opens the next one.
const DefaultSegmentBytes = 64 << 20 // 64 MiB

// ActionRecord is the unit appended to an actions_N.bin segment: the action
// (gob-encoded through the Action interface; concrete variants must be
// registered with gob.Register by the embedding program) plus its Meta.
type ActionRecord struct {
	Action Action
	Meta   Meta
}

// initialStateRecord is the payload of recorder/initial_state.bin.
type initialStateRecord struct {
	Seed  uint64
	State []byte // gob-encoded snapshot of the embedding Global state
}

// Recorder persists the initial state and every action the kernel admits
// (root inputs and their follow-ups) to a directory of length-prefixed segment files, per the persisted state
// layout in the external-interfaces contract. It also keeps a small
// goleveldb index (segment file -> first/last action id) so a replay tool
// can seek near an id without scanning every prior segment from scratch.
type Recorder struct {
	mu          sync.Mutex
	dir         string
	maxSegBytes int64

	segIndex  int
	curFile   *os.File
	curSize   int64
	index     *leveldb.DB
	firstID   uint64
	haveFirst bool
}

// NewRecorder creates (or opens) a recorder rooted at dir. dir is created
// if it does not exist.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("action: create recorder dir: %w", err)
	}
	idx, err := leveldb.OpenFile(filepath.Join(dir, "segment_index"), nil)
	if err != nil {
		return nil, fmt.Errorf("action: open segment index: %w", err)
	}
	r := &Recorder{dir: dir, maxSegBytes: DefaultSegmentBytes, segIndex: 1, index: idx}
	return r, nil
}

// Close releases the recorder's open file handles.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.curFile != nil {
		err = r.curFile.Close()
	}
	if idxErr := r.index.Close(); idxErr != nil && err == nil {
		err = idxErr
	}
	return err
}

// RecordInitialState writes recorder/initial_state.bin: the 64-bit RNG
// seed plus a gob-encoded snapshot of the initial state. It must be called
// exactly once, before any RecordAction call.
func (r *Recorder) RecordInitialState(seed uint64, state interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stateBuf bytes.Buffer
	if err := gob.NewEncoder(&stateBuf).Encode(state); err != nil {
		return fmt.Errorf("action: encode initial state: %w", err)
	}
	rec := initialStateRecord{Seed: seed, State: stateBuf.Bytes()}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("action: encode initial state record: %w", err)
	}
	return writeLengthPrefixed(filepath.Join(r.dir, "initial_state.bin"), buf.Bytes())
}

// RecordAction appends a into the current rolling segment, opening a new
// actions_N.bin file when the current one would exceed maxSegBytes.
func (r *Recorder) RecordAction(a Action, meta Meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ActionRecord{Action: a, Meta: meta}); err != nil {
		return fmt.Errorf("action: encode action record: %w", err)
	}
	payload := buf.Bytes()
	frameSize := int64(8 + len(payload) + checksumSize)

	if r.curFile == nil || r.curSize+frameSize > r.maxSegBytes {
		if err := r.rollSegment(); err != nil {
			return err
		}
	}
	if !r.haveFirst {
		r.firstID = meta.ID
		r.haveFirst = true
	}

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := r.curFile.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := r.curFile.Write(payload); err != nil {
		return err
	}
	sum := checksum(payload)
	if _, err := r.curFile.Write(sum[:]); err != nil {
		return err
	}
	r.curSize += frameSize

	key := []byte(fmt.Sprintf("seg:%020d", r.segIndex))
	val := []byte(fmt.Sprintf("%020d:%020d", r.firstID, meta.ID))
	return r.index.Put(key, val, nil)
}

func (r *Recorder) rollSegment() error {
	if r.curFile != nil {
		if err := r.curFile.Close(); err != nil {
			return err
		}
		r.segIndex++
	}
	path := filepath.Join(r.dir, fmt.Sprintf("actions_%d.bin", r.segIndex))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("action: open segment %s: %w", path, err)
	}
	r.curFile = f
	r.curSize = 0
	r.haveFirst = false
	return nil
}

func writeLengthPrefixed(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = f.Write(payload)
	return err
}
