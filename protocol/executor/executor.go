// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package executor drives individual swaps to completion. It owns the
// per-swap goroutine that inspects persisted state, races chain-watcher and
// network events, computes the next state, and persists before
// acknowledging, per spec.md §4.5. It is the only package that installs
// libp2p stream handlers for the swap protocols and the only one that
// decides which of xmrmaker's or xmrtaker's state machines handles an
// inbound message.
package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/net/message"
	"github.com/athanorlabs/atomic-swap/protocol/backend"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
	"github.com/athanorlabs/atomic-swap/protocol/xmrmaker"
	"github.com/athanorlabs/atomic-swap/protocol/xmrtaker"
)

var log = logging.Logger("executor")

// SetupTimeout is the wall-clock budget spec.md §5 allows the setup
// handshake: if a swap is still in KeysExchanged (no TxLock observed) when
// this elapses, it is abandoned with no funds locked.
const SetupTimeout = 120 * time.Second

// cancelPollInterval is how often a session re-checks the chain tip against
// its swap's cancel/punish timelocks while waiting on a counterparty.
const cancelPollInterval = 15 * time.Second

var (
	errUnknownSwap       = errors.New("no active session for swap")
	errUnroutableMessage = errors.New("message cannot be routed to a session")
	errSwapRunning       = errors.New("swap already has a running session")
)

// inboundMsg is one request delivered to a running session by the Host's
// synchronous per-stream Handler callback; reply carries the handler's
// synchronous response back out.
type inboundMsg struct {
	msg   message.Message
	reply chan replyResult
}

type replyResult struct {
	msg message.Message
	err error
}

// session is the executor's handle on one running swap's goroutine.
type session struct {
	id          common.SwapID
	peerID      peer.ID
	inbox       chan inboundMsg
	done        chan struct{}
	earlyRefund chan struct{}
}

func newSession(id common.SwapID, peerID peer.ID) *session {
	return &session{
		id:          id,
		peerID:      peerID,
		inbox:       make(chan inboundMsg),
		done:        make(chan struct{}),
		earlyRefund: make(chan struct{}, 1),
	}
}

// deliver hands msg to the session's loop and blocks for its reply, or
// returns an error if the session has already exited.
func (s *session) deliver(msg message.Message) (message.Message, error) {
	reply := make(chan replyResult, 1)
	select {
	case s.inbox <- inboundMsg{msg: msg, reply: reply}:
	case <-s.done:
		return nil, errUnknownSwap
	}
	select {
	case r := <-reply:
		return r.msg, r.err
	case <-s.done:
		return nil, errUnknownSwap
	}
}

// Executor tracks every in-flight swap's session and dispatches inbound
// protocol messages to the right one.
type Executor struct {
	backend   backend.Backend
	walletDir string

	mu       sync.Mutex
	byPeer   map[peer.ID]*session // keyed for messages carrying no SwapID
	bySwapID map[common.SwapID]*session
}

// New constructs an Executor bound to b, using walletDir as the parent
// directory for the per-swap joint Monero wallets it creates while
// sweeping a redeem, refund, or cooperative redeem. Call RegisterHandlers
// to start accepting inbound swaps, and ResumeAll to re-enter observation
// of any swap left non-terminal by a previous run.
func New(b backend.Backend, walletDir string) *Executor {
	return &Executor{
		backend:   b,
		walletDir: walletDir,
		byPeer:    make(map[peer.ID]*session),
		bySwapID:  make(map[common.SwapID]*session),
	}
}

// RegisterHandlers installs the executor as the handler for every protocol
// ID a swap peer must answer, per spec.md §6's wire protocol table.
func (ex *Executor) RegisterHandlers(host *net.Host) {
	for _, pid := range net.ProtocolIDs() {
		host.SetHandler(pid, ex.handle)
	}
}

// handle is installed as the net.Host Handler for all five swap protocols.
// A SendKeysMessage starts a new maker session (handleSendKeys).
// NotifyBtcLock, NotifyXMRLock, and NotifyTransferProof carry no SwapID,
// so they are routed by the remote peer ID on the
// assumption of one active swap per counterparty connection; every other
// message type carries its own SwapID and is routed directly.
func (ex *Executor) handle(peerID peer.ID, msg message.Message) (message.Message, error) {
	switch m := msg.(type) {
	case *message.QueryResponse:
		// Offer advertisement is out of this executor's scope; answer with
		// an empty offer list rather than leaving the protocol unhandled.
		return &message.QueryResponse{}, nil
	case *message.SendKeysMessage:
		return ex.handleSendKeys(peerID, m)
	case *message.NotifyBtcLock, *message.NotifyXMRLock, *message.NotifyTransferProof:
		return ex.routeByPeer(peerID, msg)
	default:
		return ex.routeBySwapID(msg)
	}
}

func (ex *Executor) routeByPeer(peerID peer.ID, msg message.Message) (message.Message, error) {
	ex.mu.Lock()
	sess, ok := ex.byPeer[peerID]
	ex.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: from peer %s", errUnroutableMessage, peerID)
	}
	return sess.deliver(msg)
}

func (ex *Executor) routeBySwapID(msg message.Message) (message.Message, error) {
	id, ok := swapIDOf(msg)
	if !ok {
		return nil, fmt.Errorf("%w: type %s carries no swap ID", errUnroutableMessage, msg.Type())
	}
	ex.mu.Lock()
	sess, ok := ex.bySwapID[id]
	ex.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownSwap, id)
	}
	return sess.deliver(msg)
}

func swapIDOf(msg message.Message) (common.SwapID, bool) {
	switch m := msg.(type) {
	case *message.NotifyEncryptedSignature:
		return m.SwapID, true
	case *message.NotifyCooperativeRedeem:
		return m.SwapID, true
	case *message.NotifyRecoveryAbort:
		return m.SwapID, true
	case *message.NotifyAuxSignatures:
		return m.SwapID, true
	case *message.NotifyRefundAdaptorSignature:
		return m.SwapID, true
	default:
		return common.SwapID{}, false
	}
}

// handleSendKeys answers an inbound M2 SendKeysMessage by starting a new
// maker-side session: it generates this node's own keys, verifies the
// taker's DLEQ proof, and replies with M3 synchronously, all within the
// single request/response round trip the Host's stream contract provides.
func (ex *Executor) handleSendKeys(peerID peer.ID, msg *message.SendKeysMessage) (message.Message, error) {
	sw, err := xmrmaker.NewSwapStateFromStart(
		ex.backend,
		common.NewSwapID(),
		peerID,
		msg.OfferID,
		msg.ProvidedAmount,
		nil,
		DefaultCancelTimelock,
		DefaultPunishTimelock,
		ex.walletDir,
	)
	if err != nil {
		return nil, fmt.Errorf("starting maker swap: %w", err)
	}
	if err := sw.HandleSendKeysMessage(msg); err != nil {
		_ = sw.Exit()
		return nil, err
	}

	sess := newSession(sw.ID(), peerID)
	ex.register(sess)
	go ex.runMaker(sess, sw)

	return sw.SendKeysMessage(), nil
}

// StartTaker registers and begins driving an already-constructed taker-side
// swap: the caller (the RPC method that takes an offer, which already
// performed the M2/M3 handshake over a single SendRequest round trip and
// called HandleSendKeysMessage on the reply) hands the resulting state
// machine off to the executor to observe through to completion.
func (ex *Executor) StartTaker(sw takerSwap) {
	sess := newSession(sw.ID(), sw.PeerID())
	ex.register(sess)
	go ex.runTaker(sess, sw)
}

// RequestEarlyRefund asks the running taker-side session for id to abandon
// the swap via TxEarlyRefund if it is currently in a state that allows it.
// It is the hook the recovery CLI's refund subcommand calls. At most one
// request is held per session, and it is acted on only if and when the
// session waits in BtcEarlyRefundable; a swap that never reaches that state
// never acts on it.
func (ex *Executor) RequestEarlyRefund(id common.SwapID) error {
	ex.mu.Lock()
	sess, ok := ex.bySwapID[id]
	ex.mu.Unlock()
	if !ok {
		return errUnknownSwap
	}
	select {
	case sess.earlyRefund <- struct{}{}:
	default:
	}
	return nil
}

// ResumeSwap forces a resume-replay of a single swap, reconstructing its
// state machine from recovery info and re-entering observation exactly as
// ResumeAll would on startup. It is the hook the recovery CLI's claim
// subcommand calls. It only finds swaps the swap manager still lists as
// ongoing: a session that ended with an error has already been marked
// CompletedAbort and completed by Exit, so such a swap is not resumed and
// an error is returned. Calling it on a swap that already has a running
// session returns errSwapRunning.
func (ex *Executor) ResumeSwap(id common.SwapID) error {
	ex.mu.Lock()
	_, running := ex.bySwapID[id]
	ex.mu.Unlock()
	if running {
		return errSwapRunning
	}

	info, err := ex.backend.SwapManager().GetOngoingSwap(id)
	if err != nil {
		return fmt.Errorf("loading swap: %w", err)
	}
	return ex.resumeOne(&info)
}

func (ex *Executor) register(sess *session) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.byPeer[sess.peerID] = sess
	ex.bySwapID[sess.id] = sess
}

func (ex *Executor) unregister(sess *session) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	close(sess.done)
	if ex.byPeer[sess.peerID] == sess {
		delete(ex.byPeer, sess.peerID)
	}
	delete(ex.bySwapID, sess.id)
}

// ResumeAll re-instantiates a state machine and re-enters observation for
// every non-terminal swap the swap manager knows about, so a restarted
// swapd picks a crashed swap back up instead of abandoning it. It is
// idempotent: each resumed session begins from the persisted status and
// re-runs whatever wait its state implies, rather than re-performing any
// already-completed, non-idempotent action.
func (ex *Executor) ResumeAll() error {
	ongoing, err := ex.backend.SwapManager().GetOngoingSwaps()
	if err != nil {
		return fmt.Errorf("listing ongoing swaps: %w", err)
	}

	for _, info := range ongoing {
		if !info.Status.IsOngoing() {
			continue
		}
		if err := ex.resumeOne(info); err != nil {
			log.Warnf("failed to resume swap %s: %s", info.ID, err)
		}
	}
	return nil
}

func (ex *Executor) resumeOne(info *pswap.Info) error {
	recovery, err := ex.backend.RecoveryDB().GetRecoveryInfo(info.ID)
	if err != nil {
		return fmt.Errorf("loading recovery info: %w", err)
	}

	peerID, err := peer.Decode(recovery.PeerID)
	if err != nil {
		return fmt.Errorf("decoding peer ID: %w", err)
	}

	switch info.Role {
	case pswap.RoleMaker:
		sw, err := xmrmaker.NewSwapStateFromRecovery(ex.backend, info, recovery)
		if err != nil {
			return fmt.Errorf("reconstructing maker state: %w", err)
		}
		sess := newSession(info.ID, peerID)
		ex.register(sess)
		go ex.runMaker(sess, sw)
	case pswap.RoleTaker:
		sw, err := xmrtaker.NewSwapStateFromRecovery(ex.backend, info, recovery)
		if err != nil {
			return fmt.Errorf("reconstructing taker state: %w", err)
		}
		sess := newSession(info.ID, peerID)
		ex.register(sess)
		go ex.runTaker(sess, sw)
	default:
		return fmt.Errorf("unknown swap role %d for swap %s", info.Role, info.ID)
	}
	return nil
}

