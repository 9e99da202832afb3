// Package channel implements named method channels: the request/response bridge
// between platform code and an application layer.
//
// A Messenger owns channels by name. Each MethodChannel has at most one
// handler, which answers a MethodCall through a Result exactly once with
// Success, Error or NotImplemented. Calls on unknown channels, or on channels
// without a handler, are answered with NotImplemented.
//
// Two transports carry envelopes to a Messenger: a JSON line stream
// (ServeStream, typically stdio) and HTTP (Handler).
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roaddetection/identitybridge/internal/logging"
)

// Status is the kind of reply a call received.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusNotImplemented Status = "notImplemented"
)

// Error codes produced by the channel machinery itself.
const (
	CodeNoReply      = "no-reply"
	CodeHandlerPanic = "handler-panic"
	CodeBadEnvelope  = "bad-envelope"
)

// MethodCall is a method identifier plus optional JSON arguments.
type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ErrorPayload describes an error reply.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Reply is the outcome of one call.
type Reply struct {
	Status Status
	Result any
	Error  *ErrorPayload
}

// Result receives a handler's answer. Only the first answer counts.
type Result interface {
	Success(result any)
	Error(code, message string, details any)
	NotImplemented()
}

// Handler answers method calls on a channel.
type Handler func(ctx context.Context, call MethodCall, result Result)

// MethodChannel is a named channel with one handler.
type MethodChannel struct {
	name    string
	mu      sync.RWMutex
	handler Handler
	logger  logging.Logger
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// SetMethodCallHandler installs h, replacing any previous handler. A nil h
// removes the handler.
func (c *MethodChannel) SetMethodCallHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Invoke runs the handler for call and returns its reply.
func (c *MethodChannel) Invoke(ctx context.Context, call MethodCall) (reply Reply) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()

	if h == nil {
		return Reply{Status: StatusNotImplemented}
	}

	res := &replyOnce{}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("method handler panicked", "channel", c.name, "method", call.Method, "panic", r)
			res.Error(CodeHandlerPanic, fmt.Sprintf("handler for %s panicked", call.Method), nil)
			reply = res.reply()
		}
	}()

	h(ctx, call, res)

	if !res.done {
		c.logger.Warn("method handler returned without a reply", "channel", c.name, "method", call.Method)
		res.Error(CodeNoReply, fmt.Sprintf("handler for %s returned without a reply", call.Method), nil)
	}
	return res.reply()
}

// replyOnce records the first answer. Handlers reply synchronously, so no
// locking is needed.
type replyOnce struct {
	done bool
	r    Reply
}

func (o *replyOnce) Success(result any) {
	if o.done {
		return
	}
	o.done = true
	o.r = Reply{Status: StatusSuccess, Result: result}
}

func (o *replyOnce) Error(code, message string, details any) {
	if o.done {
		return
	}
	o.done = true
	o.r = Reply{Status: StatusError, Error: &ErrorPayload{Code: code, Message: message, Details: details}}
}

func (o *replyOnce) NotImplemented() {
	if o.done {
		return
	}
	o.done = true
	o.r = Reply{Status: StatusNotImplemented}
}

func (o *replyOnce) reply() Reply {
	return o.r
}

// Messenger routes calls to channels by name.
type Messenger struct {
	mu       sync.RWMutex
	channels map[string]*MethodChannel
	logger   logging.Logger
}

// NewMessenger creates an empty Messenger.
func NewMessenger() *Messenger {
	return &Messenger{
		channels: make(map[string]*MethodChannel),
		logger:   logging.Nop(),
	}
}

// WithLogger sets the logger and returns the messenger.
func (m *Messenger) WithLogger(logger logging.Logger) *Messenger {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Channel returns the channel with the given name, creating it if needed.
func (m *Messenger) Channel(name string) *MethodChannel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.channels[name]; ok {
		return c
	}
	c := &MethodChannel{name: name, logger: m.logger}
	m.channels[name] = c
	return c
}

// Send delivers call to the named channel.
func (m *Messenger) Send(ctx context.Context, channel string, call MethodCall) Reply {
	m.mu.RLock()
	c, ok := m.channels[channel]
	m.mu.RUnlock()

	if !ok {
		m.logger.Debug("call on unknown channel", "channel", channel, "method", call.Method)
		return Reply{Status: StatusNotImplemented}
	}

	reply := c.Invoke(ctx, call)
	m.logger.Debug("method call answered", "channel", channel, "method", call.Method, "status", reply.Status)
	return reply
}
