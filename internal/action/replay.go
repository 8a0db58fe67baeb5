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
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// errChecksumMismatch is returned by replaySegment when a record's trailing
// blake2b-256 digest does not match its payload, signalling a segment file
// truncated or corrupted by a crash mid-write rather than a decodable log.
var errChecksumMismatch = fmt.Errorf("action: segment record checksum mismatch")

// ReadInitialState reads recorder/initial_state.bin and decodes the seed
// plus the gob-encoded state snapshot into state (a pointer).
//
// state must already hold a freshly-constructed Global (e.g. the same
// constructor the recording process called before RecordInitialState), not
// a zero value: component sub-states expose no exported fields for gob to
// populate, by design, so their entries survive a decode only because
// RecordInitialState is required to run before any action is recorded and
// therefore always snapshots them empty. Decoding reuses whatever the
// caller's constructor already allocated for those pointers/maps; decoding
// into a zero value leaves them nil.
func ReadInitialState(dir string, state interface{}) (seed uint64, err error) {
	payload, err := readLengthPrefixed(filepath.Join(dir, "initial_state.bin"))
	if err != nil {
		return 0, err
	}
	var rec initialStateRecord
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return 0, fmt.Errorf("action: decode initial state record: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(rec.State)).Decode(state); err != nil {
		return 0, fmt.Errorf("action: decode initial state: %w", err)
	}
	return rec.Seed, nil
}

func readLengthPrefixed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("action: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, fmt.Errorf("action: read payload: %w", err)
	}
	return payload, nil
}

// segmentFiles returns dir's actions_N.bin files sorted by N ascending.
func segmentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type seg struct {
		n    int
		path string
	}
	var segs []seg
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "actions_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "actions_"), ".bin")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		segs = append(segs, seg{n, filepath.Join(dir, name)})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].n < segs[j].n })
	paths := make([]string, len(segs))
	for i, s := range segs {
		paths[i] = s.path
	}
	return paths, nil
}

// ReplayActions walks every actions_N.bin segment in dir in order, decoding
// each ActionRecord and invoking visit. Replaying the log against the
// recorded initial state must reproduce byte-identical state at every
// checkpoint the caller chooses to compare.
func ReplayActions(dir string, visit func(ActionRecord) error) error {
	paths, err := segmentFiles(dir)
	if err != nil {
		return fmt.Errorf("action: list segments: %w", err)
	}
	for _, path := range paths {
		if err := replaySegment(path, visit); err != nil {
			return fmt.Errorf("action: replay %s: %w", path, err)
		}
	}
	return nil
}

func replaySegment(path string, visit func(ActionRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		var lenBuf [8]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		n := binary.BigEndian.Uint64(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(f, payload); err != nil {
			return err
		}
		var wantSum [checksumSize]byte
		if _, err := io.ReadFull(f, wantSum[:]); err != nil {
			return fmt.Errorf("action: read record checksum: %w", err)
		}
		if checksum(payload) != wantSum {
			return errChecksumMismatch
		}
		var rec ActionRecord
		if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if err := visit(rec); err != nil {
			return err
		}
	}
}
