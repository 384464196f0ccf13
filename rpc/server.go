// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package rpc provides the HTTP server for incoming JSON-RPC and websocket
// requests to swapd from the local host. The answers to these queries come
// from 5 namespaces: daemon, database, net, swap and recovery.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	logging "github.com/ipfs/go-log"

	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/protocol/executor"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

// RPC namespaces, each registered as a gorilla/rpc service.
const (
	DaemonNamespace   = "daemon"   //nolint:revive
	DatabaseNamespace = "database" //nolint:revive
	NetNamespace      = "net"      //nolint:revive
	SwapNamespace     = "swap"     //nolint:revive
	RecoveryNamespace = "recovery" //nolint:revive
)

var log = logging.Logger("rpc")

// Server represents the JSON-RPC server.
type Server struct {
	ctx        context.Context
	listener   net.Listener
	httpServer *http.Server
}

// Config holds the dependencies NewServer wires into the namespaces enabled
// by Namespaces.
type Config struct {
	Ctx            context.Context
	Address        string // "IP:port"
	Net            Net
	SwapManager    swap.Manager
	RecoveryDB     *db.Database
	Executor       *executor.Executor
	Namespaces     map[string]struct{}
	IsBootnodeOnly bool
}

// AllNamespaces returns a map with all RPC namespaces set for usage in the config.
func AllNamespaces() map[string]struct{} {
	return map[string]struct{}{
		DaemonNamespace:   {},
		DatabaseNamespace: {},
		NetNamespace:      {},
		SwapNamespace:     {},
		RecoveryNamespace: {},
	}
}

// NewServer constructs the HTTP server for cfg.Namespaces, shares a single
// cancelable context across every registered service, and opens the
// listener immediately so the returned Server is ready for Start.
func NewServer(cfg *Config) (*Server, error) {
	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(NewCodec(), "application/json")

	serverCtx, serverCancel := context.WithCancel(cfg.Ctx)
	err := rpcServer.RegisterService(NewDaemonService(serverCancel), DaemonNamespace)
	if err != nil {
		return nil, err
	}

	var netService *NetService
	for ns := range cfg.Namespaces {
		switch ns {
		case DaemonNamespace:
			continue
		case DatabaseNamespace:
			err = rpcServer.RegisterService(NewDatabaseService(cfg.RecoveryDB), DatabaseNamespace)
		case NetNamespace:
			netService = NewNetService(cfg.Net, cfg.IsBootnodeOnly)
			err = rpcServer.RegisterService(netService, NetNamespace)
		case SwapNamespace:
			err = rpcServer.RegisterService(NewSwapService(cfg.SwapManager), SwapNamespace)
		case RecoveryNamespace:
			err = rpcServer.RegisterService(NewRecoveryService(cfg.RecoveryDB, cfg.Executor), RecoveryNamespace)
		default:
			err = fmt.Errorf("unknown namespace %s", ns)
		}
		if err != nil {
			break
		}
	}
	if err != nil {
		serverCancel()
		return nil, err
	}

	wsServer := newWsServer(serverCtx, cfg.SwapManager)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(serverCtx, "tcp", cfg.Address)
	if err != nil {
		serverCancel()
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/", rpcServer)
	r.Handle("/ws", wsServer)

	headersOk := handlers.AllowedHeaders([]string{"content-type", "username", "password"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "OPTIONS"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	server := &http.Server{
		Addr:              ln.Addr().String(),
		ReadHeaderTimeout: time.Second,
		Handler:           handlers.CORS(headersOk, methodsOk, originsOk)(r),
		BaseContext: func(net.Listener) context.Context {
			return serverCtx
		},
	}

	return &Server{
		ctx:        serverCtx,
		listener:   ln,
		httpServer: server,
	}, nil
}

// HttpURL returns the URL used for HTTP requests.
func (s *Server) HttpURL() string { //nolint:revive
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}

// WsURL returns the URL used for websocket requests.
func (s *Server) WsURL() string {
	return fmt.Sprintf("ws://%s/ws", s.httpServer.Addr)
}

// Start starts the JSON-RPC and websocket server.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	log.Infof("Starting RPC server on %s", s.HttpURL())
	log.Infof("Starting websockets server on %s", s.WsURL())

	serverErr := make(chan error, 1)
	go func() {
		// Serve never returns nil. It returns http.ErrServerClosed if
		// it was terminated by Shutdown.
		serverErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-s.ctx.Done():
		err := s.httpServer.Shutdown(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("http server shutdown errored: %s", err)
		}
		return s.ctx.Err()
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("RPC server failed: %s", err)
		} else {
			log.Info("RPC server shut down")
		}
		return err
	}
}

// Stop the JSON-RPC and websockets server. If the server's context is not
// cancelled, a graceful shutdown happens where existing connections are
// serviced until disconnected. If the context is cancelled, the shutdown is
// immediate.
func (s *Server) Stop() error {
	return s.httpServer.Shutdown(s.ctx)
}

// SwapManager is an alias kept for callers outside this package that
// construct a Config without importing protocol/swap directly.
type SwapManager = swap.Manager
