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

// Package nodeconfig defines the node's TOML-loadable configuration,
// decoded with naoina/toml keeping Go field names as TOML keys verbatim.
package nodeconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to Go struct field names, same
// convention the rest of the ecosystem's naoina/toml users follow.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Timeouts is the set of per-request-kind deadlines the timeout driver
// enforces.
type Timeouts struct {
	P2pRpc             time.Duration
	StagedLedgerParts  time.Duration
	SnarkedLedgerQuery time.Duration
	SnarkVerify        time.Duration
	BlockApply         time.Duration
}

// DefaultTimeouts holds the default per-request deadlines.
var DefaultTimeouts = Timeouts{
	P2pRpc:             30 * time.Second,
	StagedLedgerParts:  10 * time.Second,
	SnarkedLedgerQuery: 5 * time.Second,
	SnarkVerify:        120 * time.Second,
	BlockApply:         60 * time.Second,
}

// Rebroadcast mirrors internal/pool.RebroadcastPolicy in TOML-friendly
// form.
type Rebroadcast struct {
	Interval time.Duration
	Max      int
}

// DefaultRebroadcast re-announces every 10 minutes, up to 5 times.
var DefaultRebroadcast = Rebroadcast{Interval: 10 * time.Minute, Max: 5}

// SnarkerStrategy selects how the local snarker picks jobs to work.
type SnarkerStrategy string

const (
	SnarkerStrategySequential SnarkerStrategy = "sequential"
	SnarkerStrategyRandom     SnarkerStrategy = "random"
)

// RecordMode selects if the action recorder is active.
type RecordMode string

const (
	RecordNone                   RecordMode = "none"
	RecordStateWithInputActions  RecordMode = "state-with-input-actions"
)

// Network selects the chain parameters to run against.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkMainnet Network = "mainnet"
)

// Config is the complete node configuration, covering every enumerated
// setting plus the CLI surface that backs it.
type Config struct {
	WorkDir           string
	Port              int
	Libp2pPort        int
	P2pSecretKeyFile  string
	Peers             []string
	PeerListFile      string
	PeerListURL       string
	Seed              uint64

	MaxPeers          int
	MinPeers          int
	K                 uint32
	LedgerDepth       uint8
	StablePeerDuration time.Duration

	Timeouts    Timeouts
	Rebroadcast Rebroadcast

	RunSnarker      bool
	ProducerKey     string
	SnarkerFee      uint64
	SnarkerStrategy SnarkerStrategy

	Record  RecordMode
	Network Network
}

// Defaults returns a Config populated with every default.
func Defaults() Config {
	return Config{
		Port:               8302,
		Libp2pPort:         8303,
		MaxPeers:           100,
		MinPeers:           0, // derived by MinPeersOrDefault
		K:                  290,
		LedgerDepth:        35,
		StablePeerDuration: 90 * time.Second,
		Timeouts:           DefaultTimeouts,
		Rebroadcast:        DefaultRebroadcast,
		SnarkerStrategy:    SnarkerStrategySequential,
		Record:             RecordNone,
		Network:            NetworkDevnet,
	}
}

// Load decodes file into cfg over Defaults(): field names are taken
// verbatim as TOML keys, and a line number in a decode error gets the
// file name prefixed.
func Load(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// MinPeersOrDefault returns cfg.MinPeers if set, else max(3, MaxPeers/2).
func (c Config) MinPeersOrDefault() int {
	if c.MinPeers > 0 {
		return c.MinPeers
	}
	min := c.MaxPeers / 2
	if min < 3 {
		min = 3
	}
	return min
}
