package core

import (
	"fmt"
	"time"

	"github.com/jabolina/go-artery/pkg/artery/types"
)

// HandshakeTimeoutError is returned by an outbound loop when the remote
// UID promise stays unfulfilled past config.HandshakeTimeout (spec §4.6).
type HandshakeTimeoutError struct {
	Remote types.Address
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("artery: handshake with %s timed out", e.Remote)
}

// handshakeInjector resends HandshakeReq on the control stream every
// InjectHandshakeInterval until the association's handshake completes.
type handshakeInjector struct {
	assoc *Association
}

func newHandshakeInjector(a *Association) *handshakeInjector {
	return &handshakeInjector{assoc: a}
}

func (h *handshakeInjector) run(kill *KillSwitch) {
	ticker := time.NewTicker(h.assoc.config.InjectHandshakeInterval)
	defer ticker.Stop()
	h.send()
	for {
		select {
		case <-kill.Done():
			return
		case <-ticker.C:
			if h.assoc.state.Load().RemoteAddr.fulfilled {
				continue
			}
			h.send()
		}
	}
}

func (h *handshakeInjector) send() {
	req := types.HandshakeReq{From: h.assoc.local, To: h.assoc.remote, Version: h.assoc.config.ProtocolVersion}
	select {
	case h.assoc.controlQ <- req:
	default:
	}
}

// HandleHandshakeReq is the inbound-side reaction of spec §4.6 step 2:
// if req.To matches this node, register the peer's UID and reply.
func HandleHandshakeReq(local types.UniqueAddress, localVersion string, req types.HandshakeReq, registry *AssociationRegistry) {
	if req.To.String() != local.Address.String() {
		return
	}
	assoc := registry.SetUID(req.From)
	assoc.SendControl(types.HandshakeRsp{From: local, Version: localVersion})
}

// HandleHandshakeRsp completes the outbound handshake for the peer that
// sent it.
func HandleHandshakeRsp(rsp types.HandshakeRsp, registry *AssociationRegistry) {
	assoc := registry.Association(rsp.From.Address)
	assoc.CompleteHandshake(rsp.From)
}
