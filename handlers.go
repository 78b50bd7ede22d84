package irc

import "regexp"

// EventHandler responds to a single Event pulled from Engine.Events().
// Handlers should treat the Event (and its nested Message *Message) as
// read-only.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts an ordinary function to EventHandler, the
// same pattern teacher's HandlerFunc used for http.HandlerFunc-style
// adaptation, retargeted at Event instead of (MessageWriter, *Message).
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }

// Middleware wraps an EventHandler to produce another, letting code run
// before/after dispatch (logging, filtering) without touching Router's
// route list.
type Middleware func(EventHandler) EventHandler

func wrapEvent(h EventHandler, mw ...Middleware) EventHandler {
	if len(mw) == 0 {
		return h
	}
	wrapped := h
	for i := len(mw) - 1; i >= 0; i-- {
		wrapped = mw[i](wrapped)
	}
	return wrapped
}

var noopEventHandler EventHandler = EventHandlerFunc(func(Event) {})

var ctcpRegex = regexp.MustCompile("^\x01([^ \x01]+) ?(.*?)\x01?$")

// ctcpQuery splits a PRIVMSG/NOTICE text body formatted as a CTCP
// query/reply (surrounded by \x01) into its subcommand and remaining
// body. ok is false for an ordinary, non-CTCP message body. Grounded on
// teacher's ctcpHandler, adapted to operate on an already-extracted
// text string rather than mutating *Message in place.
func ctcpQuery(text string) (subcommand, body string, ok bool) {
	if len(text) == 0 || text[0] != 0x01 {
		return "", "", false
	}
	parts := ctcpRegex.FindStringSubmatch(text)
	if parts == nil {
		return "", "", false
	}
	return parts[1], parts[2], true
}
