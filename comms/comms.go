// Package comms implements point-to-point messaging between a frame and
// its direct child iframes. The only primitive available between frame
// contexts is the window's asynchronous Post; everything else — command
// dispatch, request/response correlation, error translation — is built
// on top of the envelope defined in envelope.go.
//
// One Communicator runs per frame context, attached to that frame's own
// window. Sends are fire-and-forget: a caller may register an OnResponse
// callback, but nothing ever blocks waiting for a reply, and a reply
// that never arrives simply expires from the pending table.
package comms

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/idgen"
)

// Responder acknowledges an incoming message, optionally with a payload.
// Handlers may call it synchronously or later; calling it more than once
// delivers only the first reply.
type Responder func(payload any)

// Handler processes one incoming command. payload is the raw envelope
// payload; errContent is non-nil when the remote side reported a failure
// instead of data.
type Handler func(payload json.RawMessage, errContent *ErrorContent, respond Responder)

// ResponseCallback receives the reply to a sent message.
type ResponseCallback func(payload json.RawMessage, errContent *ErrorContent)

// MessageRequest is an outbound envelope naming the target iframe.
type MessageRequest struct {
	Command string
	Frame   dom.FrameElement
	Message any

	// OnResponse, when set, is invoked once if the recipient replies
	// before the response timeout. Never blocks the sender.
	OnResponse ResponseCallback
}

// Options tunes a Communicator.
type Options struct {
	// ResponseTimeout bounds how long a pending OnResponse callback is
	// retained. Default: 30s.
	ResponseTimeout time.Duration
	// IDs overrides the message id generator. Default: idgen.Default.
	IDs idgen.Generator
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = 30 * time.Second
	}
	if o.IDs == nil {
		o.IDs = idgen.Default
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Communicator delivers typed commands between this frame and its direct
// child iframes. Safe for concurrent use.
type Communicator struct {
	win  dom.Window
	opts Options

	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]pendingEntry
}

type pendingEntry struct {
	cb    ResponseCallback
	timer *time.Timer
}

// New creates a Communicator bound to the frame's own window and starts
// receiving. win must be the current frame's window, not a child's.
func New(win dom.Window, opts Options) *Communicator {
	opts.defaults()
	c := &Communicator{
		win:      win,
		opts:     opts,
		handlers: make(map[string]Handler),
		pending:  make(map[string]pendingEntry),
	}
	win.OnMessage(c.receive)
	return c
}

// Subscribe registers the handler for a command. A command has exactly
// one handler; re-subscribing replaces the previous one (and logs it)
// rather than delivering twice.
func (c *Communicator) Subscribe(command string, h Handler) {
	c.mu.Lock()
	if _, exists := c.handlers[command]; exists {
		c.opts.Logger.Warn("comms: handler replaced", "command", command)
	}
	c.handlers[command] = h
	c.mu.Unlock()
}

// SendMessage serializes the request and posts it to the target iframe's
// content window. A detached frame (nil content window) is a silent
// no-op: frames are removed asynchronously between enumeration and send,
// and that is not an error.
func (c *Communicator) SendMessage(req MessageRequest) {
	target := req.Frame.ContentWindow()
	if target == nil {
		c.opts.Logger.Debug("comms: send skipped, frame detached",
			"command", req.Command, "frame", req.Frame.Selector())
		return
	}

	env := envelope{
		MessageID: c.opts.IDs(),
		Command:   req.Command,
		Source:    messageSource,
		Version:   messageVersion,
	}
	if req.Message != nil {
		payload, err := json.Marshal(req.Message)
		if err != nil {
			c.opts.Logger.Error("comms: marshal payload",
				"command", req.Command, "error", err)
			return
		}
		env.Payload = payload
	}

	if req.OnResponse != nil {
		c.trackPending(env.MessageID, req.OnResponse)
	}

	data, err := json.Marshal(env)
	if err != nil {
		c.opts.Logger.Error("comms: marshal envelope",
			"command", req.Command, "error", err)
		c.dropPending(env.MessageID)
		return
	}
	target.Post(data, c.win)
}

func (c *Communicator) trackPending(messageID string, cb ResponseCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[messageID] = pendingEntry{
		cb: cb,
		timer: time.AfterFunc(c.opts.ResponseTimeout, func() {
			c.dropPending(messageID)
		}),
	}
}

func (c *Communicator) dropPending(messageID string) {
	c.mu.Lock()
	entry, ok := c.pending[messageID]
	if ok {
		delete(c.pending, messageID)
	}
	c.mu.Unlock()
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
}

// takePending removes and returns the callback for a reply, if any.
func (c *Communicator) takePending(messageID string) (ResponseCallback, bool) {
	c.mu.Lock()
	entry, ok := c.pending[messageID]
	if ok {
		delete(c.pending, messageID)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.cb, true
}

// receive is the window's message callback: parse, validate, dispatch.
// Foreign messages on the shared channel are ignored; handler panics are
// translated into an ErrorContent reply instead of crossing the frame
// boundary.
func (c *Communicator) receive(data []byte, source dom.Window) {
	env, ok := parseEnvelope(data)
	if !ok {
		return
	}

	if env.IsReply {
		cb, ok := c.takePending(env.MessageID)
		if !ok {
			return
		}
		cb(env.Payload, env.Error)
		return
	}

	c.mu.Lock()
	h := c.handlers[env.Command]
	c.mu.Unlock()
	if h == nil {
		return
	}

	respond := c.responder(env, source)
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.opts.Logger.Error("comms: handler panicked",
					"command", env.Command, "panic", r)
				c.reply(env, source, nil, &ErrorContent{
					Message: fmt.Sprint(r),
				})
			}
		}()
		h(env.Payload, env.Error, respond)
	}()
}

// responder builds the reply closure handed to a handler. Only the first
// invocation sends; a handler that never responds leaves the sender's
// pending entry to expire on its own.
func (c *Communicator) responder(env envelope, source dom.Window) Responder {
	var once sync.Once
	return func(payload any) {
		once.Do(func() {
			var raw json.RawMessage
			if payload != nil {
				data, err := json.Marshal(payload)
				if err != nil {
					c.opts.Logger.Error("comms: marshal response",
						"command", env.Command, "error", err)
					c.reply(env, source, nil, &ErrorContent{Message: err.Error()})
					return
				}
				raw = data
			}
			c.reply(env, source, raw, nil)
		})
	}
}

func (c *Communicator) reply(env envelope, source dom.Window, payload json.RawMessage, errContent *ErrorContent) {
	if source == nil {
		return
	}
	out := envelope{
		MessageID: env.MessageID,
		Command:   env.Command,
		Source:    messageSource,
		Version:   messageVersion,
		IsReply:   true,
		Payload:   payload,
		Error:     errContent,
	}
	data, err := json.Marshal(out)
	if err != nil {
		c.opts.Logger.Error("comms: marshal reply", "command", env.Command, "error", err)
		return
	}
	source.Post(data, c.win)
}
