package irc

import (
	"regexp"
	"strings"
)

// Router dispatches Events from Engine.Events() to registered route
// handlers, adapted from teacher's Router (which dispatched raw
// *Message values from a synchronous read loop) to dispatch the
// Engine's Event variant instead. Routes are tested in the order they
// were added; only the first match's handler runs, plus every global
// middleware.
type Router struct {
	routes      []*route
	middlewares []Middleware
}

// Use appends global middleware, run against every event regardless of
// whether a route matched.
func (r *Router) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

// Dispatch routes one Event to the first matching route's handler
// (wrapped in the router's global middleware), or to a no-op handler
// (still wrapped in middleware) when nothing matches.
func (r *Router) Dispatch(ev Event) {
	for _, rt := range r.routes {
		if rt.matches(ev) {
			wrapEvent(rt.h, r.middlewares...).HandleEvent(ev)
			return
		}
	}
	wrapEvent(noopEventHandler, r.middlewares...).HandleEvent(ev)
}

// Run reads events from ch until it closes, dispatching each in turn.
// It is meant to be run in its own goroutine against Engine.Events().
func (r *Router) Run(ch <-chan Event) {
	for ev := range ch {
		r.Dispatch(ev)
	}
}

// Handle appends h as a route for the given EventKind.
func (r *Router) Handle(kind EventKind, h EventHandler) *route {
	rt := &route{h: h, matchers: []matcher{kindMatch{kind}}}
	r.routes = append(r.routes, rt)
	return rt
}

// HandleFunc is Handle for a plain function.
func (r *Router) HandleFunc(kind EventKind, f EventHandlerFunc) *route {
	return r.Handle(kind, f)
}

// OnConnect attaches a handler called once the engine registers
// (RPL_WELCOME), mirroring teacher's OnConnect semantics.
func (r *Router) OnConnect(h EventHandlerFunc) *route {
	return r.Handle(EventRegistered, h)
}

// OnDisconnect attaches a handler called on disconnection.
func (r *Router) OnDisconnect(h EventHandlerFunc) *route {
	return r.Handle(EventDisconnected, h)
}

// OnText attaches a handler for PRIVMSG events whose text matches a
// wildcard pattern: `*` matches any text, `&` matches any single word,
// `?` matches a single character, and a bare pattern requires an exact
// match. Kept nearly verbatim from teacher's OnText/wildtext.
func (r *Router) OnText(wildtext string, h EventHandlerFunc) *route {
	return r.HandleFunc(EventPrivmsg, h).wildtext(wildtext)
}

// OnTextRE attaches a handler for PRIVMSG events whose text matches the
// Go regular expression expr.
func (r *Router) OnTextRE(expr string, h EventHandlerFunc) *route {
	return r.HandleFunc(EventPrivmsg, h).textRE(expr)
}

// OnNotice mirrors OnText for NOTICE events sent by a non-server source.
func (r *Router) OnNotice(wildtext string, h EventHandlerFunc) *route {
	return r.HandleFunc(EventNotice, h).
		wildtext(wildtext).
		MatchFunc(func(ev Event) bool {
			return ev.Message != nil && !ev.Message.Source.IsServer()
		})
}

// OnCTCP attaches a handler that matches a CTCP query of type
// subcommand, tunneled through PRIVMSG per the CTCP convention.
func (r *Router) OnCTCP(subcommand string, h EventHandlerFunc) *route {
	return r.HandleFunc(EventPrivmsg, h).MatchFunc(func(ev Event) bool {
		if ev.Privmsg == nil {
			return false
		}
		sub, _, ok := ctcpQuery(ev.Privmsg.Text)
		return ok && strings.EqualFold(sub, subcommand)
	})
}

// OnCTCPReply attaches a handler that matches a CTCP reply of type
// subcommand, tunneled through NOTICE.
func (r *Router) OnCTCPReply(subcommand string, h EventHandlerFunc) *route {
	return r.HandleFunc(EventNotice, h).MatchFunc(func(ev Event) bool {
		if ev.Notice == nil {
			return false
		}
		sub, _, ok := ctcpQuery(ev.Notice.Text)
		return ok && strings.EqualFold(sub, subcommand)
	})
}

// OnJoin attaches a handler for JOIN events.
func (r *Router) OnJoin(h EventHandlerFunc) *route { return r.Handle(EventJoin, h) }

// OnPart attaches a handler for PART events.
func (r *Router) OnPart(h EventHandlerFunc) *route { return r.Handle(EventPart, h) }

// OnQuit attaches a handler for QUIT events.
func (r *Router) OnQuit(h EventHandlerFunc) *route { return r.Handle(EventQuit, h) }

// OnKick attaches a handler for KICK events.
func (r *Router) OnKick(h EventHandlerFunc) *route { return r.Handle(EventKick, h) }

// OnNick attaches a handler for nickname-change events.
func (r *Router) OnNick(h func(old, new string)) *route {
	adapter := EventHandlerFunc(func(ev Event) {
		if ev.Nick != nil {
			h(ev.Nick.Old, ev.Nick.New)
		}
	})
	return r.Handle(EventNick, adapter)
}

// OnError attaches a handler for error events.
func (r *Router) OnError(h EventHandlerFunc) *route { return r.Handle(EventError, h) }

type route struct {
	h        EventHandler
	matchers []matcher
}

func (r *route) matches(ev Event) bool {
	for _, m := range r.matchers {
		if !m.matches(ev) {
			return false
		}
	}
	return true
}

// matcher is attached to a route and determines whether a given Event
// satisfies some condition.
type matcher interface {
	matches(Event) bool
}

type matcherFunc func(Event) bool

func (f matcherFunc) matches(ev Event) bool { return f(ev) }

type kindMatch struct{ kind EventKind }

func (km kindMatch) matches(ev Event) bool { return ev.Kind == km.kind }

// Matcher appends an arbitrary matcher to the route.
func (r *route) Matcher(m matcher) *route {
	r.matchers = append(r.matchers, m)
	return r
}

// MatchFunc appends a matcher function to the route.
func (r *route) MatchFunc(f matcherFunc) *route {
	return r.Matcher(f)
}

// MatchServer restricts the route to events whose raw message source is
// a bare server name.
func (r *route) MatchServer() *route {
	return r.MatchFunc(func(ev Event) bool {
		return ev.Message != nil && ev.Message.Source.IsServer()
	})
}

// MatchChan restricts a PRIVMSG/NOTICE/JOIN/PART route to one channel.
func (r *route) MatchChan(ch string) *route {
	return r.MatchFunc(func(ev Event) bool {
		var c string
		switch {
		case ev.Privmsg != nil:
			c = ev.Privmsg.Target
		case ev.Notice != nil:
			c = ev.Notice.Target
		case ev.Join != nil:
			c = ev.Join.Channel
		case ev.Part != nil:
			c = ev.Part.Channel
		}
		return strings.EqualFold(c, ch)
	})
}

func eventText(ev Event) (string, bool) {
	switch {
	case ev.Privmsg != nil:
		return ev.Privmsg.Text, true
	case ev.Notice != nil:
		return ev.Notice.Text, true
	default:
		return "", false
	}
}

// wildtext converts a wildcard match string to a regex match string,
// kept verbatim in shape from teacher's route.wildtext.
//
// Rules:
//
//	*    matches any text
//	&    matches any word (delimited by ASCII space)
//	?    matches a single character
//	text matches if exact match
func (r *route) wildtext(s string) *route {
	re := regexp.MustCompile(`\*|\?|[^*?]+`)
	expr := re.ReplaceAllStringFunc(s, func(s string) string {
		switch s {
		case "*":
			return ".*"
		case "?":
			return "."
		}
		return regexp.QuoteMeta(s)
	})

	fields := strings.Split(expr, " ")
	for i, f := range fields {
		if f == "&" {
			fields[i] = `\S+`
		}
	}
	expr = strings.Join(fields, " ")

	return r.textRE("^" + expr + "$")
}

// textRE appends a regular-expression text matcher to the route.
func (r *route) textRE(expr string) *route {
	r.matchers = append(r.matchers, regexMatch{regexp.MustCompile(expr)})
	return r
}

type regexMatch struct{ re *regexp.Regexp }

func (rm regexMatch) matches(ev Event) bool {
	text, ok := eventText(ev)
	if !ok {
		return false
	}
	return rm.re.MatchString(text)
}
