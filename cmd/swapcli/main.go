// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package main provides the entrypoint of swapcli, an executable for
// interacting with a local swapd instance from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"

	"github.com/athanorlabs/atomic-swap/cliutil"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
	"github.com/athanorlabs/atomic-swap/rpcclient"
	"github.com/athanorlabs/atomic-swap/rpcclient/wsclient"
)

const (
	flagSwapdPort = "swapd-port"
	flagOfferID   = "offer-id"
	flagQRCode    = "qrcode"

	defaultSwapdPort = 5000
)

var swapdPortFlag = &cli.IntFlag{
	Name:    flagSwapdPort,
	Aliases: []string{"p"},
	Usage:   "RPC port of swapd",
	Value:   defaultSwapdPort,
}

func cliApp() *cli.App {
	return &cli.App{
		Name:                 "swapcli",
		Usage:                "Client for swapd",
		Version:              cliutil.GetVersion(),
		EnableBashCompletion: true,
		Suggest:              true,
		Commands: []*cli.Command{
			{
				Name:    "addresses",
				Aliases: []string{"a"},
				Usage:   "List our daemon's libp2p listening addresses",
				Action:  runAddresses,
				Flags:   []cli.Flag{swapdPortFlag},
			},
			{
				Name:   "peer-id",
				Usage:  "Print our daemon's libp2p peer ID",
				Action: runPeerID,
				Flags: []cli.Flag{
					swapdPortFlag,
					&cli.BoolFlag{
						Name:  flagQRCode,
						Usage: "Also print the peer ID as a QR code",
					},
				},
			},
			{
				Name:    "ongoing",
				Aliases: []string{"o"},
				Usage:   "List swaps currently in progress",
				Action:  runOngoing,
				Flags:   []cli.Flag{swapdPortFlag},
			},
			{
				Name:    "past",
				Aliases: []string{"l"},
				Usage:   "List IDs of swaps that have reached a final status",
				Action:  runPast,
				Flags:   []cli.Flag{swapdPortFlag},
			},
			{
				Name:   "status",
				Usage:  "Get a single swap's current or final status",
				Action: runStatus,
				Flags: []cli.Flag{
					swapdPortFlag,
					&cli.StringFlag{
						Name:     flagOfferID,
						Aliases:  []string{"id"},
						Required: true,
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Subscribe to a swap's status over the websocket endpoint until it completes",
				Action: runWatch,
				Flags: []cli.Flag{
					swapdPortFlag,
					&cli.StringFlag{
						Name:     flagOfferID,
						Aliases:  []string{"id"},
						Required: true,
					},
				},
			},
			{
				Name:  "recovery",
				Usage: "Manual recovery subcommands",
				Subcommands: []*cli.Command{
					{
						Name:   "get-recovery-info",
						Usage:  "Dump the persisted Bitcoin-side recovery record for a swap",
						Action: runGetRecoveryInfo,
						Flags: []cli.Flag{
							swapdPortFlag,
							&cli.StringFlag{
								Name:     flagOfferID,
								Aliases:  []string{"id"},
								Required: true,
							},
						},
					},
					{
						Name:   "get-swap-secret",
						Usage:  "Dump this node's own adaptor-signing scalar for a swap",
						Action: runGetSwapSecret,
						Flags: []cli.Flag{
							swapdPortFlag,
							&cli.StringFlag{
								Name:     flagOfferID,
								Aliases:  []string{"id"},
								Required: true,
							},
						},
					},
					{
						Name:   "claim",
						Usage:  "Resume driving a swap whose executor session is no longer running",
						Action: runClaim,
						Flags: []cli.Flag{
							swapdPortFlag,
							&cli.StringFlag{
								Name:     flagOfferID,
								Aliases:  []string{"id"},
								Required: true,
							},
						},
					},
					{
						Name:   "refund",
						Usage:  "Request an early refund for a swap waiting on the maker's Monero lock",
						Action: runRefund,
						Flags: []cli.Flag{
							swapdPortFlag,
							&cli.StringFlag{
								Name:     flagOfferID,
								Aliases:  []string{"id"},
								Required: true,
							},
						},
					},
				},
			},
			{
				Name:   "shutdown",
				Usage:  "Gracefully shut down our swapd instance",
				Action: runShutdown,
				Flags:  []cli.Flag{swapdPortFlag},
			},
			{
				Name:   "version",
				Usage:  "Print our swapd instance's version",
				Action: runVersion,
				Flags:  []cli.Flag{swapdPortFlag},
			},
		},
	}
}

func endpointFromCtx(ctx *cli.Context) string {
	return fmt.Sprintf("http://127.0.0.1:%d", ctx.Int(flagSwapdPort))
}

func wsEndpointFromCtx(ctx *cli.Context) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/ws", ctx.Int(flagSwapdPort))
}

func runAddresses(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	addrs, err := client.Addresses()
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

func runPeerID(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	id, err := client.PeerID()
	if err != nil {
		return err
	}
	fmt.Println(id)

	if ctx.Bool(flagQRCode) {
		qr, err := qrcode.New(id, qrcode.Medium)
		if err != nil {
			return err
		}
		fmt.Println(qr.ToSmallString(false))
	}
	return nil
}

func runOngoing(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	swaps, err := client.GetOngoingSwaps()
	if err != nil {
		return err
	}
	for _, s := range swaps {
		fmt.Printf("%s: %s (%s)\n", s.ID, colorStatus(s.Status), s.Role)
	}
	return nil
}

func runPast(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	ids, err := client.GetPastSwapIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runStatus(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	status, err := client.GetStatus(id)
	if err != nil {
		return err
	}
	fmt.Println(colorStatusString(status))
	return nil
}

func runWatch(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	ws, err := wsclient.Dial(wsEndpointFromCtx(ctx))
	if err != nil {
		return err
	}
	defer ws.Close() //nolint:errcheck

	return ws.SubscribeSwapStatus(id, func(status string) {
		fmt.Println(colorStatusString(status))
	})
}

func runGetRecoveryInfo(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	info, err := client.GetRecoveryInfo(id)
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", info)
	return nil
}

func runGetSwapSecret(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	secret, err := client.GetSwapSecret(id)
	if err != nil {
		return err
	}
	fmt.Println(secret)
	return nil
}

func runClaim(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	if err := client.Claim(id); err != nil {
		return err
	}
	fmt.Println("resumed swap", id)
	return nil
}

func runRefund(ctx *cli.Context) error {
	id, err := common.SwapIDFromString(ctx.String(flagOfferID))
	if err != nil {
		return err
	}
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	if err := client.Refund(id); err != nil {
		return err
	}
	fmt.Println("requested early refund for swap", id)
	return nil
}

func runShutdown(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	return client.Shutdown()
}

func runVersion(ctx *cli.Context) error {
	client := rpcclient.NewClient(endpointFromCtx(ctx))
	v, err := client.Version()
	if err != nil {
		return err
	}
	fmt.Printf("swapd: %s\n", v)
	fmt.Printf("swapcli: %s\n", cliutil.GetVersion())
	return nil
}

func colorStatus(s types.Status) string {
	return colorStatusString(s.String())
}

func colorStatusString(s string) string {
	switch s {
	case types.CompletedSuccess.String():
		return color.GreenString(s)
	case types.CompletedRefund.String():
		return color.YellowString(s)
	case types.CompletedPunished.String(), types.CompletedAbort.String():
		return color.RedString(s)
	default:
		return s
	}
}

func main() {
	app := cliApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
