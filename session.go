package irc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SASLMechanism selects the SASL mechanism negotiated during CAP/SASL.
type SASLMechanism int

const (
	SASLNone SASLMechanism = iota
	SASLPlain
	SASLExternal
)

// SASLConfig carries the credentials for SASL PLAIN; it is unused for
// SASLExternal, which authenticates via the TLS client certificate.
type SASLConfig struct {
	Mechanism SASLMechanism
	User      string
	Pass      string
}

// SessionConfig is immutable once passed to NewEngine, per spec.md §3.
// Fields left at their zero value take the documented defaults.
type SessionConfig struct {
	Server  string
	Port    int
	UseTLS  bool
	Nick    string

	// Username defaults to Nick; Realname defaults to Nick.
	Username string
	Realname string

	// Password is the optional server-level PASS.
	Password string

	SASL SASLConfig

	// RequestedCaps is the set of IRCv3 capability names to request.
	RequestedCaps []string

	// PingTimeout is the keepalive deadline; defaults to 120s.
	PingTimeout time.Duration

	// RateLimit bounds outbound lines; defaults to 5 lines per 2 seconds.
	RateLimit RateLimit

	// ErrorLog receives noteworthy but non-fatal errors (lines that fail
	// to parse, messages that fail to marshal); aggregator timeouts are
	// returned to the caller, not logged. Falls back to the stdlib log package,
	// mirroring teacher's Client.ErrorLog.
	ErrorLog *log.Logger

	// Transport overrides the default TLS/TCP transport, e.g. for tests
	// with irctest.MockTransport. When nil, a TCPTransport dialing
	// Server:Port is used.
	Transport Transport
}

func (c *SessionConfig) normalize() {
	if c.Port == 0 {
		c.Port = 6697
		c.UseTLS = true
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.Realname == "" {
		c.Realname = c.Nick
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 120 * time.Second
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit = defaultRateLimit
	}
}

// SessionState is the engine's connection lifecycle state. Only the
// engine itself ever mutates it (spec.md §3 invariant 3).
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateRegistering
	StateRegistered
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	default:
		return "disconnected"
	}
}

// capState tracks IRCv3 capability negotiation, per spec.md §3.
type capState struct {
	available   map[string]bool
	enabled     map[string]bool
	lsComplete  bool
	saslOK      bool
	saslActive  bool
	lsAccum     map[string]bool
	registrationDelayed bool
}

func newCapState() *capState {
	return &capState{
		available: make(map[string]bool),
		enabled:   make(map[string]bool),
		lsAccum:   make(map[string]bool),
	}
}

// Engine is the single owner of mutable session state: the state
// machine, CAP/SASL orchestration, message routing, event emission, and
// liveness tracking (spec.md §2 component 5). It generalizes teacher's
// Client.ConnectAndRun/mainLoop/startReading/exit (context +
// sync.WaitGroup + single buffered error channel) into the full
// registration/CAP/SASL/keepalive/cleanup state machine SPEC_FULL.md
// names.
type Engine struct {
	cfg SessionConfig

	transport Transport
	limiter   *rateLimiter

	// mu guards every field below; the engine's three background
	// activities (reader, writer, keepalive) and any caller-facing
	// method may touch them, so unlike teacher (which relied on a
	// single mainLoop goroutine owning clientState), this engine has an
	// explicit writer goroutine and needs real mutual exclusion.
	mu           sync.Mutex
	state        SessionState
	currentNick  string
	cap          *capState
	aggregations map[AggKey]aggregator
	lastPongAt   time.Time
	lastPingAt   time.Time

	outbound chan *Message
	events   chan Event

	registeredCh chan struct{}
	registeredErr error

	cancel context.CancelFunc
	errC   chan error
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewEngine constructs an Engine from cfg but does not connect.
func NewEngine(cfg SessionConfig) *Engine {
	cfg.normalize()
	e := &Engine{
		cfg:          cfg,
		cap:          newCapState(),
		aggregations: make(map[AggKey]aggregator),
		outbound:     make(chan *Message, 64),
		events:       make(chan Event, 64),
		registeredCh: make(chan struct{}),
		currentNick:  cfg.Nick,
		limiter:      newRateLimiter(cfg.RateLimit),
	}
	return e
}

// Events returns the channel every protocol event is emitted on.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the engine's current SessionState.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentNick returns the nickname most recently confirmed by the
// server (RPL_WELCOME or a NICK change), per spec.md §3 invariant 4.
// Before registration it is the nickname last sent, including a retry
// after ERR_NICKNAMEINUSE.
func (e *Engine) CurrentNick() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentNick
}

func (e *Engine) setState(s SessionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.cfg.ErrorLog == nil {
		log.Printf(format, args...)
		return
	}
	e.cfg.ErrorLog.Printf(format, args...)
}

// Connect opens the transport and starts the reader, writer, and
// keepalive activities. It returns once the transport is open and the
// handshake has been enqueued; it does not wait for registration (use
// AwaitRegistered), matching spec.md §5's "connect returns as soon as
// background activities have started" rule.
func (e *Engine) Connect() error {
	if e.transport != nil {
		return newSessionError(ErrInvalidData, "engine already connected", nil)
	}

	e.setState(StateConnecting)

	t := e.cfg.Transport
	if t == nil {
		t = NewTCPTransport(fmt.Sprintf("%s:%d", e.cfg.Server, e.cfg.Port), e.cfg.UseTLS)
	}
	if err := t.Open(); err != nil {
		e.setState(StateDisconnected)
		return err
	}
	e.transport = t

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.errC = make(chan error, 1)

	go func() {
		err := <-e.errC
		e.cleanup(err)
	}()

	e.wg.Add(1)
	go e.readLoop(ctx)

	e.wg.Add(1)
	go e.writeLoop(ctx)

	e.wg.Add(1)
	go e.keepaliveLoop(ctx)

	e.setState(StateConnected)
	e.emit(Event{Kind: EventConnected})
	e.handshake()
	e.setState(StateRegistering)

	return nil
}

// exit requests cleanup with err; only the first call has effect,
// mirroring teacher's Client.exit.
func (e *Engine) exit(err error) {
	select {
	case e.errC <- err:
	default:
	}
}

func (e *Engine) handshake() {
	hasCaps := len(e.cfg.RequestedCaps) > 0
	if hasCaps {
		e.enqueue(NewMessage(CmdCap, "LS", "302"))
	}
	if e.cfg.Password != "" {
		e.enqueue(Pass(e.cfg.Password).toMessage())
	}

	saslActive := e.cfg.SASL.Mechanism != SASLNone && containsFold(e.cfg.RequestedCaps, "sasl")
	e.mu.Lock()
	e.cap.saslActive = saslActive
	e.cap.registrationDelayed = saslActive
	e.mu.Unlock()

	if !saslActive {
		e.enqueueRegistration()
	}
}

func (e *Engine) enqueueRegistration() {
	e.enqueue(Nick(e.currentNickLocked()).toMessage())
	e.enqueue(User(e.cfg.Username, e.cfg.Realname).toMessage())
}

func (e *Engine) currentNickLocked() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentNick
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// enqueue places m on the outbound queue for the writer to send. It is
// non-blocking from the caller's perspective except when the queue
// itself is full, matching spec.md §5's "no explicit bound... shaped by
// the rate limiter" note (the channel buffer stands in for an unbounded
// queue at a size generous enough not to matter in practice).
func (e *Engine) enqueue(m *Message) {
	select {
	case e.outbound <- m:
	default:
		// queue momentarily full: block until there's room, since
		// dropping an outbound protocol line silently would violate
		// ordering guarantees.
		e.outbound <- m
	}
}

// awaitReady gates every façade entry point except the handshake
// primitives (PASS/NICK/USER/CAP/AUTHENTICATE, which the engine enqueues
// directly and never through Send): it returns ErrNotConnected
// synchronously when Connect has never been called, otherwise it blocks
// until registration completes, per spec.md §4.6.
func (e *Engine) awaitReady() error {
	if e.transport == nil {
		return newSessionError(ErrNotConnected, "", nil)
	}
	return e.AwaitRegistered(context.Background())
}

// Send enqueues a typed Command, waiting for registration first (unless
// the engine was never connected, in which case it fails immediately
// with ErrNotConnected).
func (e *Engine) Send(cmd Command) error {
	if err := e.awaitReady(); err != nil {
		return err
	}
	e.enqueue(cmd.toMessage())
	return nil
}

// SendRaw parses s as a single IRC line and enqueues it verbatim, subject
// to the same registration gate as Send.
func (e *Engine) SendRaw(s string) error {
	if err := e.awaitReady(); err != nil {
		return err
	}
	m := new(Message)
	if err := m.UnmarshalText([]byte(s)); err != nil {
		return err
	}
	e.enqueue(m)
	return nil
}

// Join joins channel, optionally with a key.
func (e *Engine) Join(channel, key string) error { return e.Send(Join(channel, key)) }

// Part leaves channel, optionally with a reason.
func (e *Engine) Part(channel, reason string) error { return e.Send(Part(channel, reason)) }

// Privmsg sends text to target (a nick or channel).
func (e *Engine) Privmsg(target, text string) error { return e.Send(Privmsg(target, text)) }

// Notice sends text to target via NOTICE.
func (e *Engine) Notice(target, text string) error { return e.Send(Notice(target, text)) }

// SetNick requests a nickname change.
func (e *Engine) SetNick(nick string) error { return e.Send(Nick(nick)) }

// SetTopic sets channel's topic.
func (e *Engine) SetTopic(channel, topic string) error { return e.Send(Topic(channel, topic, true)) }

// GetTopic requests channel's current topic; the reply arrives as events,
// not a return value.
func (e *Engine) GetTopic(channel string) error { return e.Send(Topic(channel, "", false)) }

// Kick removes nick from channel, optionally with a reason.
func (e *Engine) Kick(channel, nick, reason string) error {
	return e.Send(Kick(channel, nick, reason))
}

// Invite invites nick to channel.
func (e *Engine) Invite(nick, channel string) error { return e.Send(Invite(nick, channel)) }

// SetMode applies modes to target (a nick or channel).
func (e *Engine) SetMode(target string, modes ...string) error { return e.Send(Mode(target, modes...)) }

// Away sets (message non-empty) or clears (message empty) away status.
func (e *Engine) Away(message string) error { return e.Send(Away(message)) }

// AwaitRegistered blocks until the engine reaches StateRegistered or
// ctx is done, whichever comes first. If the engine disconnects before
// registering, it returns ErrDisconnected.
func (e *Engine) AwaitRegistered(ctx context.Context) error {
	select {
	case <-e.registeredCh:
		return e.registeredErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) resolveRegistered(err error) {
	e.mu.Lock()
	select {
	case <-e.registeredCh:
		e.mu.Unlock()
		return
	default:
	}
	e.registeredErr = err
	close(e.registeredCh)
	e.mu.Unlock()
}

// Disconnect requests a graceful shutdown: a best-effort QUIT (with
// reason, once the engine is Connected or later) followed by cleanup. It is
// idempotent, per spec.md §5.
func (e *Engine) Disconnect(reason string) {
	if e.State() >= StateRegistering || e.State() == StateConnected {
		e.enqueue(Quit(reason).toMessage())
	}
	e.exit(nil)
}

func (e *Engine) readLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		line, err := e.transport.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.exit(nil)
			} else {
				e.exit(err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		m := new(Message)
		if err := m.UnmarshalText(line); err != nil {
			e.logf("parse error: %v", err)
			continue
		}
		m.includeSource = true
		e.handle(m)
	}
}

func (e *Engine) writeLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-e.outbound:
			e.limiter.acquire()
			b, err := m.MarshalText()
			if err != nil {
				e.logf("marshal error: %v", err)
				continue
			}
			if err := e.transport.WriteLine(b); err != nil {
				e.exit(err)
				return
			}
		}
	}
}

func (e *Engine) keepaliveLoop(ctx context.Context) {
	defer e.wg.Done()
	interval := e.cfg.PingTimeout / 2
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.mu.Lock()
			registered := e.state == StateRegistered
			last := e.lastPongAt
			e.mu.Unlock()
			if registered && !last.IsZero() && now.Sub(last) > e.cfg.PingTimeout {
				e.emit(errorEvent(newSessionError(ErrPingTimeout, "", nil)))
				e.exit(newSessionError(ErrPingTimeout, "", nil))
				return
			}
			token := strconv.FormatInt(now.UnixNano(), 10)
			e.enqueue(Ping(token).toMessage())
			e.mu.Lock()
			e.lastPingAt = now
			e.mu.Unlock()
		}
	}
}

// cleanup runs exactly once: it cancels the background activities,
// closes the transport, resets CAP/SASL state, fails every pending
// aggregator, waits for the reader, writer, and keepalive to return,
// emits disconnected(cause), and closes the event channel, per spec.md
// §4.5.
func (e *Engine) cleanup(cause error) {
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		if e.transport != nil {
			_ = e.transport.Close()
		}

		e.mu.Lock()
		e.cap = newCapState()
		pending := e.aggregations
		e.aggregations = make(map[AggKey]aggregator)
		e.state = StateDisconnected
		e.mu.Unlock()

		for _, agg := range pending {
			agg.fail(newSessionError(ErrDisconnected, "", cause))
		}

		e.resolveRegistered(newSessionError(ErrDisconnected, "", cause))

		e.wg.Wait()
		e.emit(disconnectedEvent(cause))
		close(e.events)
	})
}

// emit sends ev on the event channel, blocking if the consumer is slow,
// per spec.md §5's explicit backpressure policy.
func (e *Engine) emit(ev Event) {
	e.events <- ev
}

// handle processes one parsed inbound message: CAP/SASL/registration
// state transitions, aggregator routing, then specific/raw event
// emission, in the order spec.md §4.5 specifies.
func (e *Engine) handle(m *Message) {
	e.handleRegistration(m)
	e.handleCap(m)
	e.handleSASL(m)

	e.routeAggregators(m)
	e.routeEvent(m)
}

func (e *Engine) handleRegistration(m *Message) {
	if code, ok := m.NumericCode(); ok {
		switch code {
		case RplWelcome:
			e.mu.Lock()
			e.currentNick = m.Params.Get(1)
			e.lastPongAt = time.Now()
			e.mu.Unlock()
			e.setState(StateRegistered)
			e.resolveRegistered(nil)
			e.emit(Event{Kind: EventRegistered})
		case RplErrNicknameInUse:
			if e.State() == StateRegistering {
				e.mu.Lock()
				e.currentNick = e.currentNick + "_"
				next := e.currentNick
				e.mu.Unlock()
				e.enqueue(Nick(next).toMessage())
			}
		}
		return
	}

	switch {
	case m.Command.is(CmdNick):
		old := m.Source.Nick.String()
		e.mu.Lock()
		if e.currentNick == old {
			e.currentNick = m.Params.Get(1)
		}
		e.mu.Unlock()
	case m.Command.is(CmdPing):
		e.enqueue(Pong(m.Text()).toMessage())
	case m.Command.is(CmdPong):
		e.mu.Lock()
		e.lastPongAt = time.Now()
		e.mu.Unlock()
	}
}

func (e *Engine) handleCap(m *Message) {
	if !m.Command.is(CmdCap) {
		return
	}
	sub := strings.ToUpper(m.Params.Get(2))
	switch sub {
	case "LS":
		e.handleCapLS(m)
	case "ACK":
		e.handleCapACK(m)
	case "NAK":
		e.mu.Lock()
		e.cap.lsComplete = true
		delayed := e.cap.registrationDelayed
		e.cap.registrationDelayed = false
		e.mu.Unlock()
		e.enqueue(CapEnd().toMessage())
		if delayed {
			e.enqueueRegistration()
		}
	}
}

func (e *Engine) handleCapLS(m *Message) {
	continuation := len(m.Params) >= 4 && m.Params.Get(3) == "*"
	var names string
	if continuation {
		names = m.Params.Get(4)
	} else {
		names = m.Text()
	}

	e.mu.Lock()
	for _, name := range strings.Fields(names) {
		e.cap.lsAccum[strings.ToLower(strings.SplitN(name, "=", 2)[0])] = true
	}
	if continuation {
		e.mu.Unlock()
		return
	}
	for name := range e.cap.lsAccum {
		e.cap.available[name] = true
	}
	e.cap.lsAccum = make(map[string]bool)

	var req []string
	for _, want := range e.cfg.RequestedCaps {
		if e.cap.available[strings.ToLower(want)] {
			req = append(req, want)
		}
	}
	delayed := e.cap.registrationDelayed
	e.mu.Unlock()

	if len(req) > 0 {
		e.enqueue(newTrailingMessage(CmdCap, "REQ", strings.Join(req, " ")))
		return
	}
	e.mu.Lock()
	e.cap.lsComplete = true
	e.cap.registrationDelayed = false
	e.mu.Unlock()
	e.enqueue(CapEnd().toMessage())
	if delayed {
		e.enqueueRegistration()
	}
}

func (e *Engine) handleCapACK(m *Message) {
	names := m.Text()
	e.mu.Lock()
	for _, name := range strings.Fields(names) {
		e.cap.enabled[strings.ToLower(name)] = true
	}
	saslRequested := e.cap.enabled["sasl"] && e.cfg.SASL.Mechanism != SASLNone && !e.cap.saslOK
	delayed := e.cap.registrationDelayed
	e.mu.Unlock()

	if saslRequested {
		switch e.cfg.SASL.Mechanism {
		case SASLPlain:
			e.enqueue(Authenticate("PLAIN").toMessage())
		case SASLExternal:
			e.enqueue(Authenticate("EXTERNAL").toMessage())
			e.enqueue(Authenticate("+").toMessage())
		}
		return
	}

	e.mu.Lock()
	e.cap.registrationDelayed = false
	e.mu.Unlock()
	e.enqueue(CapEnd().toMessage())
	if delayed {
		e.enqueueRegistration()
	}
}

func (e *Engine) handleSASL(m *Message) {
	if m.Command.is(CmdAuthenticate) && m.Text() == "+" && e.cfg.SASL.Mechanism == SASLPlain {
		e.enqueue(authenticatePlainResponse(e.cfg.SASL.User, e.cfg.SASL.Pass).toMessage())
		return
	}

	code, ok := m.NumericCode()
	if !ok {
		return
	}
	switch code {
	case RplSaslSuccess:
		e.mu.Lock()
		e.cap.saslOK = true
		delayed := e.cap.registrationDelayed
		e.cap.registrationDelayed = false
		e.mu.Unlock()
		e.enqueue(CapEnd().toMessage())
		if delayed {
			e.enqueueRegistration()
		}
	case RplSaslFail, RplSaslTooLong, RplSaslAborted:
		e.emit(errorEvent(newSessionError(ErrSASLFailed, m.Raw(), nil)))
		e.mu.Lock()
		delayed := e.cap.registrationDelayed
		e.cap.registrationDelayed = false
		e.mu.Unlock()
		e.enqueue(CapEnd().toMessage())
		if delayed {
			e.enqueueRegistration()
		}
	}
}

func (e *Engine) routeAggregators(m *Message) {
	type outcome struct {
		agg aggregator
		err error
	}
	e.mu.Lock()
	var done []AggKey
	errs := make(map[AggKey]error)
	for key, agg := range e.aggregations {
		if ok, err := agg.feed(m); ok {
			done = append(done, key)
			errs[key] = err
		}
	}
	var finished []outcome
	for _, key := range done {
		finished = append(finished, outcome{agg: e.aggregations[key], err: errs[key]})
		delete(e.aggregations, key)
	}
	e.mu.Unlock()

	for _, o := range finished {
		if o.err != nil {
			o.agg.fail(o.err)
			continue
		}
		o.agg.complete()
	}
}

func (e *Engine) routeEvent(m *Message) {
	switch {
	case m.Command.is(CmdPrivmsg):
		if target, sender, text := m.Target(), m.Source.Nick.String(), m.Text(); target != "" && sender != "" {
			e.emit(Event{Kind: EventPrivmsg, Message: m, Privmsg: &PrivmsgEvent{Target: target, Sender: sender, Text: text, Raw: m}})
		}
	case m.Command.is(CmdNotice):
		if target, sender, text := m.Target(), m.Source.Nick.String(), m.Text(); target != "" && sender != "" {
			e.emit(Event{Kind: EventNotice, Message: m, Notice: &NoticeEvent{Target: target, Sender: sender, Text: text, Raw: m}})
		}
	case m.Command.is(CmdJoin):
		e.emit(Event{Kind: EventJoin, Message: m, Join: &JoinEvent{Channel: m.Params.Get(1), Nick: m.Source.Nick.String(), Raw: m}})
	case m.Command.is(CmdPart):
		e.emit(Event{Kind: EventPart, Message: m, Part: &PartEvent{Channel: m.Params.Get(1), Nick: m.Source.Nick.String(), Reason: m.Params.Get(2), Raw: m}})
	case m.Command.is(CmdQuit):
		e.emit(Event{Kind: EventQuit, Message: m, Quit: &QuitEvent{Nick: m.Source.Nick.String(), Reason: m.Params.Get(1), Raw: m}})
	case m.Command.is(CmdKick):
		if len(m.Params) >= 2 {
			e.emit(Event{Kind: EventKick, Message: m, Kick: &KickEvent{Channel: m.Params.Get(1), Kicked: m.Params.Get(2), By: m.Source.Nick.String(), Reason: m.Params.Get(3), Raw: m}})
		}
	case m.Command.is(CmdNick):
		e.emit(Event{Kind: EventNick, Message: m, Nick: &NickEvent{Old: m.Source.Nick.String(), New: m.Params.Get(1), Raw: m}})
	case m.Command.is(CmdTopic):
		e.emit(Event{Kind: EventTopic, Message: m, Topic: &TopicEvent{Channel: m.Params.Get(1), NewTopic: m.Params.Get(2), HasTopic: len(m.Params) >= 2, Raw: m}})
	case m.Command.is(CmdMode):
		rest := ""
		if len(m.Params) > 1 {
			rest = strings.Join(m.Params[1:], " ")
		}
		e.emit(Event{Kind: EventMode, Message: m, Mode: &ModeEvent{Target: m.Params.Get(1), ModesJoined: rest, Raw: m}})
	}

	e.emit(messageEvent(m))
}

func (e *Engine) registerAggregator(key AggKey, agg aggregator) error {
	e.mu.Lock()
	if _, busy := e.aggregations[key]; busy {
		e.mu.Unlock()
		return newSessionError(ErrBusyDuplicate, "", nil)
	}
	e.aggregations[key] = agg
	e.mu.Unlock()
	return nil
}

func (e *Engine) unregisterAggregator(key AggKey) {
	e.mu.Lock()
	delete(e.aggregations, key)
	e.mu.Unlock()
}

// Whois issues a WHOIS query and waits for its aggregated reply, or a
// BusyDuplicate error if one is already in flight for nick.
func (e *Engine) Whois(ctx context.Context, nick string) (WhoisResult, error) {
	key := AggKey{Kind: AggWhois, Arg: strings.ToLower(nick)}
	agg, out := newWhoisAggregator(nick)
	if err := e.registerAggregator(key, agg); err != nil {
		return WhoisResult{}, err
	}
	if err := e.Send(WhoIs(nick)); err != nil {
		e.unregisterAggregator(key)
		return WhoisResult{}, err
	}
	return waitAgg(ctx, e, key, out)
}

// Names issues a NAMES query for channel.
func (e *Engine) Names(ctx context.Context, channel string) (NamesResult, error) {
	key := AggKey{Kind: AggNames, Arg: strings.ToLower(channel)}
	agg, out := newNamesAggregator(channel)
	if err := e.registerAggregator(key, agg); err != nil {
		return NamesResult{}, err
	}
	if err := e.Send(Names(channel)); err != nil {
		e.unregisterAggregator(key)
		return NamesResult{}, err
	}
	return waitAgg(ctx, e, key, out)
}

// Who issues a WHO query for mask.
func (e *Engine) Who(ctx context.Context, mask string, operatorsOnly bool) (WhoResult, error) {
	key := AggKey{Kind: AggWho, Arg: strings.ToLower(mask)}
	agg, out := newWhoAggregator(mask)
	if err := e.registerAggregator(key, agg); err != nil {
		return WhoResult{}, err
	}
	if err := e.Send(Who(mask, operatorsOnly)); err != nil {
		e.unregisterAggregator(key)
		return WhoResult{}, err
	}
	return waitAgg(ctx, e, key, out)
}

// List issues a LIST query over every channel.
func (e *Engine) List(ctx context.Context) (ListResult, error) {
	key := AggKey{Kind: AggList}
	agg, out := newListAggregator()
	if err := e.registerAggregator(key, agg); err != nil {
		return ListResult{}, err
	}
	if err := e.Send(List("")); err != nil {
		e.unregisterAggregator(key)
		return ListResult{}, err
	}
	return waitAgg(ctx, e, key, out)
}

// MOTD issues a MOTD query.
func (e *Engine) MOTD(ctx context.Context) (MOTDResult, error) {
	key := AggKey{Kind: AggMOTD}
	agg, out := newMOTDAggregator()
	if err := e.registerAggregator(key, agg); err != nil {
		return MOTDResult{}, err
	}
	if err := e.Send(MOTD()); err != nil {
		e.unregisterAggregator(key)
		return MOTDResult{}, err
	}
	return waitAgg(ctx, e, key, out)
}

// waitAgg blocks for an aggregator's outcome, the aggregator's own 30s
// default deadline, or ctx, whichever is first; on any non-success path
// it removes the pending entry so a later call can retry.
func waitAgg[T any](ctx context.Context, e *Engine, key AggKey, out chan aggOutcome[T]) (T, error) {
	var zero T
	timer := time.NewTimer(aggDefaultTimeout)
	defer timer.Stop()
	select {
	case o := <-out:
		return o.value, o.err
	case <-timer.C:
		e.unregisterAggregator(key)
		return zero, newSessionError(ErrAggTimeout, "", nil)
	case <-ctx.Done():
		e.unregisterAggregator(key)
		return zero, ctx.Err()
	}
}
