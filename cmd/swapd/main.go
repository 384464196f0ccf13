// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package main provides the entrypoint of swapd, the daemon that runs one
// node's side of Bitcoin/Monero atomic swaps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	logging "github.com/ipfs/go-log"
	"github.com/urfave/cli/v2"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/cliutil"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/monero"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/protocol/backend"
	"github.com/athanorlabs/atomic-swap/protocol/executor"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
	"github.com/athanorlabs/atomic-swap/rpc"
)

const (
	flagDataDir      = "data-dir"
	flagEnv          = "env"
	flagRPCPort      = "rpc-port"
	flagP2PPort      = "p2p-port"
	flagBootnodes    = "bootnodes"
	flagMoneroDaemon = "monero-daemon-address"
	flagBitcoinNode  = "bitcoin-node-endpoint"
	flagBitcoinUser  = "bitcoin-node-username"
	flagBitcoinPass  = "bitcoin-node-password"
	flagLogLevel     = "log-level"

	defaultP2PPort = 9934
)

var log = logging.Logger("cmd")

func main() {
	app := &cli.App{
		Name:                 "swapd",
		Usage:                "A Bitcoin-Monero atomic swap daemon",
		Version:              cliutil.GetVersion(),
		EnableBashCompletion: true,
		Action:               runDaemon,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagDataDir,
				Usage: "Path to the swapd data directory",
			},
			&cli.StringFlag{
				Name:  flagEnv,
				Usage: "Environment to use: mainnet, stagenet, testnet, or dev",
				Value: "dev",
			},
			&cli.UintFlag{
				Name:  flagRPCPort,
				Usage: "Port for the JSON-RPC and websocket server",
				Value: common.DefaultSwapdPort,
			},
			&cli.UintFlag{
				Name:  flagP2PPort,
				Usage: "Port for the libp2p host",
				Value: defaultP2PPort,
			},
			&cli.StringSliceFlag{
				Name:  flagBootnodes,
				Usage: "libp2p multiaddresses of peers to bootstrap from",
			},
			&cli.StringFlag{
				Name:  flagMoneroDaemon,
				Usage: "monero-wallet-rpc endpoint",
				Value: "http://127.0.0.1:18083/json_rpc",
			},
			&cli.StringFlag{
				Name:  flagBitcoinNode,
				Usage: "bitcoind JSON-RPC endpoint",
				Value: "127.0.0.1:18443",
			},
			&cli.StringFlag{
				Name:  flagBitcoinUser,
				Usage: "bitcoind JSON-RPC username",
			},
			&cli.StringFlag{
				Name:  flagBitcoinPass,
				Usage: "bitcoind JSON-RPC password",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "Set log level: error, warn, info, debug",
				Value: "info",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(c *cli.Context) error {
	if err := logging.SetLogLevel("*", c.String(flagLogLevel)); err != nil {
		return err
	}

	env, err := common.NewEnvironment(c.String(flagEnv))
	if err != nil {
		return err
	}

	dataDir := c.String(flagDataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dataDir = filepath.Join(home, ".swapd", env.String())
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.NewDatabase(filepath.Join(dataDir, "db"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	swapManager, err := swap.NewManager(database)
	if err != nil {
		return fmt.Errorf("constructing swap manager: %w", err)
	}

	host, err := net.NewHost(&net.Config{
		Ctx:       ctx,
		ListenIP:  "0.0.0.0",
		Port:      uint16(c.Uint(flagP2PPort)),
		KeyFile:   filepath.Join(dataDir, "net.key"),
		Bootnodes: c.StringSlice(flagBootnodes),
	})
	if err != nil {
		return fmt.Errorf("constructing libp2p host: %w", err)
	}
	if err := host.Start(c.StringSlice(flagBootnodes)); err != nil {
		return fmt.Errorf("starting libp2p host: %w", err)
	}
	defer host.Stop() //nolint:errcheck

	xmrClient := monero.NewClient(c.String(flagMoneroDaemon), env)

	btcNode, err := bitcoin.NewNodeClient(&bitcoin.NodeConfig{
		Endpoint: c.String(flagBitcoinNode),
		User:     c.String(flagBitcoinUser),
		Password: c.String(flagBitcoinPass),
	})
	if err != nil {
		return fmt.Errorf("connecting to bitcoin node: %w", err)
	}

	b := backend.NewBackend(&backend.Config{
		Ctx:           ctx,
		Env:           env,
		BitcoinParams: bitcoinParamsForEnv(env),
		SwapTimeout:   time.Hour,
		SwapManager:   swapManager,
		RecoveryDB:    database,
		XMRClient:     xmrClient,
		Broadcaster:   btcNode,
		Host:          host,
	})

	walletDir := filepath.Join(dataDir, "wallets")
	if err := os.MkdirAll(walletDir, 0o700); err != nil {
		return fmt.Errorf("creating wallet dir: %w", err)
	}

	ex := executor.New(b, walletDir)
	ex.RegisterHandlers(host)
	if err := ex.ResumeAll(); err != nil {
		return fmt.Errorf("resuming ongoing swaps: %w", err)
	}

	server, err := rpc.NewServer(&rpc.Config{
		Ctx:            ctx,
		Address:        fmt.Sprintf("127.0.0.1:%d", c.Uint(flagRPCPort)),
		Net:            host,
		SwapManager:    swapManager,
		RecoveryDB:     database,
		Executor:       ex,
		Namespaces:     rpc.AllNamespaces(),
		IsBootnodeOnly: false,
	})
	if err != nil {
		return fmt.Errorf("constructing RPC server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received interrupt, shutting down")
		cancel()
	}()

	log.Infof("swapd started: env=%s peerID=%s", env, host.PeerID())
	return server.Start()
}

func bitcoinParamsForEnv(env common.Environment) *chaincfg.Params {
	switch env {
	case common.Mainnet:
		return &chaincfg.MainNetParams
	case common.Testnet, common.Stagenet:
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.RegressionNetParams
	}
}
