package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"p2prpc/controller"
	"p2prpc/message"
	"p2prpc/service"
)

// promptFailureTimeout is the timeout armed for a pending entry whose
// connect attempt failed outright, so its completion fires almost
// immediately with TIMEOUT rather than the caller waiting out the full
// request timeout for a request that was never sent.
const promptFailureTimeout = time.Millisecond

// Channel is either a client-side handle bound to a remote peer
// (constructed via NewClient) used to place calls, or a server-side handle
// bound to a service.Descriptor (constructed via NewServer, then
// SetService) used to answer them. A single manager may register many
// Channels, one per service name.
type Channel struct {
	manager *Manager

	remoteIP   string
	remotePort uint16
	rvIP       string
	rvPort     uint16
	hasTarget  bool

	svc *service.Descriptor
}

// NewClient builds a client-side Channel bound to a remote peer, directly
// reachable at (remoteIP, remotePort) or, if rvIP is non-empty, via
// rendezvous hole punching through (rvIP, rvPort).
func NewClient(m *Manager, remoteIP string, remotePort uint16, rvIP string, rvPort uint16) *Channel {
	return &Channel{
		manager:    m,
		remoteIP:   remoteIP,
		remotePort: remotePort,
		rvIP:       rvIP,
		rvPort:     rvPort,
		hasTarget:  true,
	}
}

// NewServer builds a manager-only Channel for server-side service binding
// via SetService.
func NewServer(m *Manager) *Channel {
	return &Channel{manager: m}
}

// SetService binds the Descriptor this channel dispatches inbound
// requests to. Call RegisterChannel on the manager afterward (or before —
// order does not matter, only that both have happened before traffic
// arrives) to make it reachable under its service name.
func (c *Channel) SetService(svc *service.Descriptor) { c.svc = svc }

// splitMethod extracts (service, method) from a fully qualified name,
// e.g. "fully.qualified.Service.Method" -> ("Service", "Method"): the
// service name is the penultimate dotted component.
func splitMethod(fullName string) (svc, method string, err error) {
	parts := strings.Split(fullName, ".")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownService, fullName)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// CallMethod places a client-side RPC call. fullMethod is
// a dotted name such as "pkg.Arith.Add"; request is serialized via the
// manager's payload codec into the envelope's args, and response is
// decoded into in place once the reply arrives. done is invoked exactly
// once, with a non-nil error on timeout, cancellation, transport failure,
// or a service-reported error, and nil on success.
func (c *Channel) CallMethod(ctx context.Context, fullMethod string, ctrl *controller.Controller, request, response any, done func(error)) error {
	if !c.hasTarget {
		return fmt.Errorf("channel: %w", ErrUnknownService)
	}
	if ctrl == nil {
		ctrl = controller.New()
	}

	svcName, methodName, err := splitMethod(fullMethod)
	if err != nil {
		return err
	}

	args, err := c.manager.codec.Encode(request)
	if err != nil {
		return fmt.Errorf("channel: encode request: %w", err)
	}

	id := c.manager.newID()
	ctrl.SetRequestID(id)

	tm := &message.TransportMessage{RpcMsg: &message.RPCMessage{
		MessageID: id,
		Type:      message.RpcTypeRequest,
		Service:   svcName,
		Method:    methodName,
		Args:      args,
	}}

	connID, connErr := c.manager.transport.ConnectToSend(ctx, c.remoteIP, c.remotePort, c.rvIP, c.rvPort, true)
	if connErr != nil {
		p := &pendingReq{response: response, done: done, controller: ctrl, sentAt: time.Now()}
		p.timeoutID = c.manager.armTimeout(id, promptFailureTimeout)
		c.manager.addPending(id, p)
		return nil
	}

	timeout := ctrl.Timeout()
	p := &pendingReq{response: response, done: done, connID: connID, controller: ctrl, sentAt: time.Now()}
	p.timeoutID = c.manager.armTimeout(id, timeout)
	c.manager.addPending(id, p)

	if err := c.manager.transport.Send(connID, tm); err != nil {
		c.manager.deletePending(id)
		return fmt.Errorf("channel: send request: %w", err)
	}
	return nil
}

// Cancel cancels a call in flight by its controller's request id — the
// caller-facing entry point onto Manager.deletePending.
func (c *Channel) Cancel(ctrl *controller.Controller) bool {
	ctrl.StartCancel()
	return c.manager.deletePending(ctrl.RequestID())
}

// dispatch is invoked by the manager's inbound handler (by way of any
// configured middleware chain, see Manager.SetInboundMiddleware) when an
// inbound REQUEST names this channel's service. It parses
// args via the service's prototypes, invokes the handler asynchronously,
// and hands the resulting response envelope to respond — it never sends
// on the wire itself, so middleware wrapping this dispatch can inspect,
// delay, retry, or rate-limit it before a response is ever framed.
func (c *Channel) dispatch(msg *message.RPCMessage, respond func(*message.RPCMessage)) error {
	if c.svc == nil || !c.svc.HasMethod(msg.Method) {
		return fmt.Errorf("channel: no handler for method %q", msg.Method)
	}

	args, err := c.svc.NewArgs(msg.Method)
	if err != nil {
		return err
	}
	reply, err := c.svc.NewReply(msg.Method)
	if err != nil {
		return err
	}
	if err := c.manager.codec.Decode(msg.Args, args); err != nil {
		return fmt.Errorf("channel: decode request args: %w", err)
	}

	ctrl := controller.New()
	ctrl.SetRequestID(msg.MessageID)

	completion := func(handlerErr error) {
		resp := &message.RPCMessage{
			MessageID: msg.MessageID,
			Type:      message.RpcTypeResponse,
			Service:   msg.Service,
			Method:    msg.Method,
		}
		if handlerErr != nil {
			resp.Error = handlerErr.Error()
		} else {
			body, encErr := c.manager.codec.Encode(reply)
			if encErr != nil {
				resp.Error = encErr.Error()
			} else {
				resp.Args = body
			}
		}
		respond(resp)
	}

	return c.svc.Call(msg.Method, ctrl, args, reply, completion)
}
