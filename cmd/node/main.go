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

// node is the command that runs a single Mina-protocol consensus/sync
// node: it loads configuration, builds the initial state-machine State,
// and drives its action kernel from an input loop fed by the p2p, ledger
// and SNARK-verifier collaborator services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/mina-core/common"
	"github.com/probeum/mina-core/internal/action"
	"github.com/probeum/mina-core/internal/consensus"
	"github.com/probeum/mina-core/internal/nodeconfig"
	"github.com/probeum/mina-core/internal/p2pdir"
	"github.com/probeum/mina-core/internal/runner"
	"github.com/probeum/mina-core/internal/service"
	"github.com/probeum/mina-core/internal/statemachine"
	"github.com/probeum/mina-core/internal/timeoutdriver"
)

var (
	workDirFlag = cli.StringFlag{
		Name:  "work-dir",
		Usage: "Data directory for the node's action log and persisted ledger state",
	}
	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "Network listening port for the node's own RPC/gossip transport",
		Value: 8302,
	}
	libp2pPortFlag = cli.IntFlag{
		Name:  "libp2p-port",
		Usage: "Network listening port for the libp2p transport",
		Value: 8303,
	}
	p2pSecretKeyFileFlag = cli.StringFlag{
		Name:  "p2p-secret-key",
		Usage: "File containing the node's libp2p identity secret key",
	}
	peerFlag = cli.StringSliceFlag{
		Name:  "peer",
		Usage: "Peer multiaddr to dial at startup (repeatable)",
	}
	peerListFileFlag = cli.StringFlag{
		Name:  "peer-list-file",
		Usage: "File listing peer multiaddrs to dial at startup",
	}
	peerListURLFlag = cli.StringFlag{
		Name:  "peer-list-url",
		Usage: "URL serving a peer list to dial at startup",
	}
	seedFlag = cli.Uint64Flag{
		Name:  "seed",
		Usage: "Seed for the node's deterministic RNG collaborator",
	}
	runSnarkerFlag = cli.BoolFlag{
		Name:  "run-snarker",
		Usage: "Run the local SNARK worker against the snark pool",
	}
	producerKeyFlag = cli.StringFlag{
		Name:  "producer-key",
		Usage: "Block producer key file, enables block production when set",
	}
	snarkerFeeFlag = cli.Uint64Flag{
		Name:  "snarker-fee",
		Usage: "Fee the local snarker attaches to work it completes",
	}
	snarkerStrategyFlag = cli.StringFlag{
		Name:  "snarker-strategy",
		Usage: "Snark work selection strategy: sequential or random",
		Value: string(nodeconfig.SnarkerStrategySequential),
	}
	recordFlag = cli.StringFlag{
		Name:  "record",
		Usage: "Action recorder mode: none or state-with-input-actions",
		Value: string(nodeconfig.RecordNone),
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file; individual flags override its values",
	}
	networkFlag = cli.StringFlag{
		Name:  "network",
		Usage: "Network parameters to run against: devnet or mainnet",
		Value: string(nodeconfig.NetworkDevnet),
	}
)

var nodeFlags = []cli.Flag{
	workDirFlag,
	portFlag,
	libp2pPortFlag,
	p2pSecretKeyFileFlag,
	peerFlag,
	peerListFileFlag,
	peerListURLFlag,
	seedFlag,
	runSnarkerFlag,
	producerKeyFlag,
	snarkerFeeFlag,
	snarkerStrategyFlag,
	recordFlag,
	configFileFlag,
	networkFlag,
}

func main() {
	app := cli.NewApp()
	app.Name = "node"
	app.Usage = "run a Mina-protocol consensus and synchronization node"
	app.Flags = nodeFlags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig resolves a nodeconfig.Config from defaults, an optional TOML
// file, then CLI flags, in that priority order.
func buildConfig(ctx *cli.Context) (nodeconfig.Config, error) {
	cfg := nodeconfig.Defaults()

	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		if err := nodeconfig.Load(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := ctx.GlobalString(workDirFlag.Name); v != "" {
		cfg.WorkDir = v
	}
	if ctx.GlobalIsSet(portFlag.Name) {
		cfg.Port = ctx.GlobalInt(portFlag.Name)
	}
	if ctx.GlobalIsSet(libp2pPortFlag.Name) {
		cfg.Libp2pPort = ctx.GlobalInt(libp2pPortFlag.Name)
	}
	if v := ctx.GlobalString(p2pSecretKeyFileFlag.Name); v != "" {
		cfg.P2pSecretKeyFile = v
	}
	if peers := ctx.GlobalStringSlice(peerFlag.Name); len(peers) > 0 {
		cfg.Peers = peers
	}
	if v := ctx.GlobalString(peerListFileFlag.Name); v != "" {
		cfg.PeerListFile = v
	}
	if v := ctx.GlobalString(peerListURLFlag.Name); v != "" {
		cfg.PeerListURL = v
	}
	if ctx.GlobalIsSet(seedFlag.Name) {
		cfg.Seed = ctx.GlobalUint64(seedFlag.Name)
	}
	if ctx.GlobalIsSet(runSnarkerFlag.Name) {
		cfg.RunSnarker = ctx.GlobalBool(runSnarkerFlag.Name)
	}
	if v := ctx.GlobalString(producerKeyFlag.Name); v != "" {
		cfg.ProducerKey = v
	}
	if ctx.GlobalIsSet(snarkerFeeFlag.Name) {
		cfg.SnarkerFee = ctx.GlobalUint64(snarkerFeeFlag.Name)
	}
	if v := ctx.GlobalString(snarkerStrategyFlag.Name); v != "" {
		cfg.SnarkerStrategy = nodeconfig.SnarkerStrategy(v)
	}
	if v := ctx.GlobalString(recordFlag.Name); v != "" {
		cfg.Record = nodeconfig.RecordMode(v)
	}
	if v := ctx.GlobalString(networkFlag.Name); v != "" {
		cfg.Network = nodeconfig.Network(v)
	}
	return cfg, nil
}

// peerIDFromAddr derives a stable placeholder identity for a configured
// peer address; the transport replaces it with the public-key-derived id
// once the handshake reveals one.
func peerIDFromAddr(addr string) common.PeerID {
	return common.PeerID(blake2b.Sum256([]byte(addr)))
}

func run(cliCtx *cli.Context) error {
	cfg, err := buildConfig(cliCtx)
	if err != nil {
		return err
	}

	timeouts := map[timeoutdriver.RequestKind]time.Duration{
		timeoutdriver.KindP2pRpc:            cfg.Timeouts.P2pRpc,
		timeoutdriver.KindLedgerQuery:       cfg.Timeouts.SnarkedLedgerQuery,
		timeoutdriver.KindStagedLedgerParts: cfg.Timeouts.StagedLedgerParts,
		timeoutdriver.KindSnarkVerify:       cfg.Timeouts.SnarkVerify,
		timeoutdriver.KindBlockApply:        cfg.Timeouts.BlockApply,
		timeoutdriver.KindSnarkCommitment:   cfg.Timeouts.SnarkVerify,
	}

	state := statemachine.New(consensus.Params{K: cfg.K, LedgerDepth: cfg.LedgerDepth}, timeouts)
	state.SetLimits(statemachine.Limits{MaxPeers: cfg.MaxPeers, MinPeers: cfg.MinPeersOrDefault()})

	// Until a real transport/ledger deployment is attached, the in-process
	// loopback hub plays every collaborator role: service calls round-trip
	// through the event queue the same way remote replies would.
	hub := service.NewLoopback(256)
	env := statemachine.Env{P2p: hub, Ledger: hub, Verifier: hub}

	kernel := action.NewKernel[statemachine.State]()
	statemachine.Register(kernel, env)

	if cfg.Record == nodeconfig.RecordStateWithInputActions {
		rec, err := action.NewRecorder(cfg.WorkDir)
		if err != nil {
			return err
		}
		defer rec.Close()
		if err := rec.RecordInitialState(cfg.Seed, state); err != nil {
			return err
		}
		kernel.SetRecorder(rec)
	}

	// runID is a fresh identifier per process launch, used only to tag this
	// run's log lines; it never enters the kernel's recorded state, so it
	// has no bearing on replay equivalence.
	runID := uuid.New().String()
	fmt.Printf("node started: run=%s network=%s port=%d libp2p-port=%d min-peers=%d max-peers=%d\n",
		runID, cfg.Network, cfg.Port, cfg.Libp2pPort, cfg.MinPeersOrDefault(), cfg.MaxPeers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	r := runner.New(kernel, state, hub, service.SystemClock{})
	for _, addr := range cfg.Peers {
		r.Inject(statemachine.PeerAdd{
			ID:        peerIDFromAddr(addr),
			Addrs:     []string{addr},
			Direction: p2pdir.DirOutgoing,
		})
	}
	return r.Run(ctx)
}
