package irc_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ircsession/irc"
	"github.com/ircsession/irc/irctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog drains an Engine's event channel into a slice that can be
// inspected safely from the test goroutine.
type eventLog struct {
	mu     sync.Mutex
	events []irc.Event
}

func (l *eventLog) run(ch <-chan irc.Event) {
	for ev := range ch {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) snapshot() []irc.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]irc.Event(nil), l.events...)
}

func newTestEngine(t *testing.T, cfg irc.SessionConfig) (*irc.Engine, *irctest.MockTransport, *eventLog) {
	t.Helper()
	transport := irctest.NewMockTransport()
	cfg.Transport = transport
	if cfg.RateLimit.Capacity == 0 {
		cfg.RateLimit = irc.RateLimit{Capacity: 50, Window: time.Minute}
	}
	e := irc.NewEngine(cfg)
	require.NoError(t, e.Connect())
	log := &eventLog{}
	go log.run(e.Events())
	t.Cleanup(func() { e.Disconnect("") })
	return e, transport, log
}

func waitForLines(t *testing.T, tr *irctest.MockTransport, n int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		lines := tr.WrittenLines()
		if len(lines) >= n {
			return lines
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d written lines; got %d: %v", n, len(lines), lines)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitForState(t *testing.T, e *irc.Engine, want irc.SessionState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if got := e.State(); got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %v; got %v", want, e.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_BasicRegistrationNoCaps(t *testing.T) {
	e, tr, _ := newTestEngine(t, irc.SessionConfig{Nick: "WiZ"})

	lines := waitForLines(t, tr, 2, time.Second)
	assert.Equal(t, "NICK WiZ", lines[0])
	assert.Equal(t, "USER WiZ 0 * :WiZ", lines[1])

	tr.QueueRead(":irc.example.com 001 WiZ :Welcome to the IRC Network")
	waitForState(t, e, irc.StateRegistered, time.Second)
	assert.Equal(t, "WiZ", e.CurrentNick())
}

func TestEngine_PassBeforeNickUser(t *testing.T) {
	_, tr, _ := newTestEngine(t, irc.SessionConfig{Nick: "WiZ", Password: "hunter2"})

	lines := waitForLines(t, tr, 3, time.Second)
	if lines[0] != "PASS hunter2" {
		t.Errorf("expected first line to be PASS hunter2; got %q", lines[0])
	}
	if lines[1] != "NICK WiZ" {
		t.Errorf("expected PASS to precede NICK; got %q", lines[1])
	}
	if lines[2] != "USER WiZ 0 * :WiZ" {
		t.Errorf("expected USER after NICK; got %q", lines[2])
	}
}

func TestEngine_CapSaslPlainSuccess(t *testing.T) {
	e, tr, _ := newTestEngine(t, irc.SessionConfig{
		Nick:          "WiZ",
		RequestedCaps: []string{"sasl"},
		SASL:          irc.SASLConfig{Mechanism: irc.SASLPlain, User: "WiZ", Pass: "hunter2"},
	})

	lines := waitForLines(t, tr, 1, time.Second)
	if lines[0] != "CAP LS 302" {
		t.Fatalf("expected CAP LS 302; got %q", lines[0])
	}

	tr.QueueRead(":irc.example.com CAP * LS :sasl=PLAIN,EXTERNAL multi-prefix")
	lines = waitForLines(t, tr, 2, time.Second)
	if lines[1] != "CAP REQ :sasl" {
		t.Fatalf("expected CAP REQ :sasl; got %q", lines[1])
	}

	tr.QueueRead(":irc.example.com CAP WiZ ACK :sasl")
	lines = waitForLines(t, tr, 3, time.Second)
	if lines[2] != "AUTHENTICATE PLAIN" {
		t.Fatalf("expected AUTHENTICATE PLAIN; got %q", lines[2])
	}

	tr.QueueRead("AUTHENTICATE +")
	lines = waitForLines(t, tr, 4, time.Second)
	wantBlob := "AUTHENTICATE " + base64.StdEncoding.EncodeToString([]byte("\x00WiZ\x00hunter2"))
	if lines[3] != wantBlob {
		t.Fatalf("expected SASL PLAIN response %q; got %q", wantBlob, lines[3])
	}

	tr.QueueRead(":irc.example.com 903 WiZ :SASL authentication successful")
	lines = waitForLines(t, tr, 7, time.Second)
	if lines[4] != "CAP END" {
		t.Errorf("expected CAP END after SASL success; got %q", lines[4])
	}
	if lines[5] != "NICK WiZ" {
		t.Errorf("expected NICK after CAP END; got %q", lines[5])
	}
	if lines[6] != "USER WiZ 0 * :WiZ" {
		t.Errorf("expected USER after NICK; got %q", lines[6])
	}

	tr.QueueRead(":irc.example.com 001 WiZ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)
}

func TestEngine_SaslFailureStillRegisters(t *testing.T) {
	e, tr, log := newTestEngine(t, irc.SessionConfig{
		Nick:          "WiZ",
		RequestedCaps: []string{"sasl"},
		SASL:          irc.SASLConfig{Mechanism: irc.SASLPlain, User: "WiZ", Pass: "wrong"},
	})

	waitForLines(t, tr, 1, time.Second) // CAP LS 302
	tr.QueueRead(":irc.example.com CAP * LS :sasl")
	waitForLines(t, tr, 2, time.Second) // CAP REQ :sasl
	tr.QueueRead(":irc.example.com CAP WiZ ACK :sasl")
	waitForLines(t, tr, 3, time.Second) // AUTHENTICATE PLAIN

	tr.QueueRead(":irc.example.com 904 WiZ :SASL authentication failed")
	lines := waitForLines(t, tr, 5, time.Second)
	if lines[3] != "CAP END" {
		t.Errorf("expected CAP END after SASL failure; got %q", lines[3])
	}
	if lines[4] != "NICK WiZ" {
		t.Errorf("expected registration to proceed after SASL failure; got %q", lines[4])
	}

	tr.QueueRead(":irc.example.com 001 WiZ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)

	deadline := time.Now().Add(time.Second)
	var sawSASLError bool
	for time.Now().Before(deadline) {
		for _, ev := range log.snapshot() {
			if ev.Kind == irc.EventError && errors.Is(ev.Error, &irc.SessionError{Kind: irc.ErrSASLFailed}) {
				sawSASLError = true
			}
		}
		if sawSASLError {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !sawSASLError {
		t.Errorf("expected an EventError with ErrSASLFailed")
	}
}

func TestEngine_NicknameInUseRecovery(t *testing.T) {
	e, tr, _ := newTestEngine(t, irc.SessionConfig{Nick: "TakenNick"})

	waitForLines(t, tr, 2, time.Second)
	tr.QueueRead(":irc.example.com 433 * TakenNick :Nickname is already in use")
	lines := waitForLines(t, tr, 3, time.Second)
	if lines[2] != "NICK TakenNick_" {
		t.Fatalf("expected retried nickname NICK TakenNick_; got %q", lines[2])
	}

	tr.QueueRead(":irc.example.com 001 TakenNick_ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)
	if e.CurrentNick() != "TakenNick_" {
		t.Errorf("expected CurrentNick to be TakenNick_; got %q", e.CurrentNick())
	}
}

func TestEngine_WhoisBusyDuplicate(t *testing.T) {
	e, tr, _ := newTestEngine(t, irc.SessionConfig{Nick: "WiZ"})
	waitForLines(t, tr, 2, time.Second)
	tr.QueueRead(":irc.example.com 001 WiZ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)

	ctx := context.Background()
	result := make(chan error, 1)
	go func() {
		_, err := e.Whois(ctx, "Bob")
		result <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the first WHOIS register its aggregator

	_, err := e.Whois(ctx, "Bob")
	if !errors.Is(err, &irc.SessionError{Kind: irc.ErrBusyDuplicate}) {
		t.Errorf("expected BusyDuplicate error for a concurrent WHOIS; got %v", err)
	}

	tr.QueueRead(":irc.example.com 318 WiZ Bob :End of /WHOIS list.")
	if err := <-result; err != nil {
		t.Errorf("expected the first WHOIS to complete without error; got %v", err)
	}
}

func TestEngine_WhoisAggregation(t *testing.T) {
	e, tr, _ := newTestEngine(t, irc.SessionConfig{Nick: "WiZ"})
	waitForLines(t, tr, 2, time.Second)
	tr.QueueRead(":irc.example.com 001 WiZ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)

	go func() {
		time.Sleep(10 * time.Millisecond)
		tr.QueueRead(":irc.example.com 311 WiZ Bob ~bob bob.example.com * :Bob Loblaw")
		tr.QueueRead(":irc.example.com 312 WiZ Bob irc.example.com :Example IRC Server")
		tr.QueueRead(":irc.example.com 317 WiZ Bob 42 1600000000 :seconds idle, signon time")
		tr.QueueRead(":irc.example.com 318 WiZ Bob :End of /WHOIS list.")
	}()

	res, err := e.Whois(context.Background(), "Bob")
	require.NoError(t, err)
	assert.Equal(t, "~bob", res.User)
	assert.Equal(t, "bob.example.com", res.Host)
	assert.Equal(t, "Bob Loblaw", res.Realname)
	assert.Equal(t, "irc.example.com", res.Server)
	assert.Equal(t, 42, res.Idle)
}

func TestEngine_PrivmsgEvent(t *testing.T) {
	e, tr, log := newTestEngine(t, irc.SessionConfig{Nick: "WiZ"})
	waitForLines(t, tr, 2, time.Second)
	tr.QueueRead(":irc.example.com 001 WiZ :Welcome")
	waitForState(t, e, irc.StateRegistered, time.Second)

	tr.QueueRead(":nick!user@host PRIVMSG #world :hello there")

	deadline := time.Now().Add(time.Second)
	var found *irc.PrivmsgEvent
	for time.Now().Before(deadline) && found == nil {
		for _, ev := range log.snapshot() {
			if ev.Kind == irc.EventPrivmsg && strings.EqualFold(ev.Privmsg.Sender, "nick") {
				found = ev.Privmsg
				break
			}
		}
		if found == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if found == nil {
		t.Fatalf("expected a PRIVMSG event for #world")
	}
	if found.Target != "#world" || found.Text != "hello there" {
		t.Errorf("unexpected PrivmsgEvent: %+v", found)
	}
}
