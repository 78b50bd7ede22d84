// comment

/*
Package irc provides an IRC session engine covering RFC 1459/2812
registration, channel and query commands, and the IRCv3 extensions
(CAP negotiation, SASL PLAIN/EXTERNAL, message tags).

API

These are the main types you will interact with while using this package:

	// Engine owns one connection to an IRC server: it negotiates
	// capabilities, authenticates, registers a nickname, and turns
	// parsed lines into a stream of Events.
	type Engine struct {
		// ...
	}

	// Connect dials the configured server and runs the engine's
	// reader, writer, and keepalive goroutines until Disconnect is
	// called or the connection fails.
	func (e *Engine) Connect() error {
		// ...
	}

	// Events returns the channel of Events the engine emits for every
	// parsed line, in addition to connection lifecycle events.
	func (e *Engine) Events() <-chan Event {
		// ...
	}

	// Send waits for registration, then enqueues a Command for
	// delivery, subject to the engine's rate limiter.
	func (e *Engine) Send(cmd Command) error {
		// ...
	}

	// Command is a tagged variant describing one outbound line, built
	// with constructors such as Privmsg, Join, and WhoIs.
	type Command interface {
		// unexported
	}

	// Event is a tagged variant describing one thing the engine
	// observed: a parsed message, a join, a disconnect, and so on.
	type Event struct {
		Kind    EventKind
		Message *Message
		// ... one populated field per Kind
	}

	// Message represents any incoming or outgoing IRC line. It also
	// satisfies encoding.TextMarshaler/TextUnmarshaler.
	type Message struct {
		Tags    Tags
		Source  Prefix
		Command Verb
		Params  Params
	}

Encoding and decoding

The Message type marshals and unmarshals itself to and from a raw line
of IRC-formatted text, tags included. If you only need IRC parsing and
encoding, that type can be used standalone.

Aggregated queries

WHOIS, WHOWAS, NAMES, WHO, LIST, and MOTD each normally arrive as a
burst of numeric replies terminated by an end-of-burst numeric or an
error. Engine collects a burst like this into a single result and
delivers it through a blocking call (Whois, Names, Who, List, MOTD)
instead of forcing callers to reassemble it from the Event stream.

Request lifecycle

	- Connect opens the configured Transport and starts the reader,
	  writer, and keepalive goroutines.
	- If capabilities were requested, Connect sends CAP LS first. When
	  SASL is also configured, NICK/USER wait until SASL succeeds or
	  fails; otherwise they follow right away and CAP END is sent once
	  the capability reply has been handled.
	- Each line read from the transport is parsed into a Message, fed
	  to any pending aggregator, and turned into zero or more typed
	  Events plus a raw Event, all pushed to the Events() channel.
	- A Router, if used, reads Events() and dispatches each to the
	  first matching registered route plus any global middleware.
	- Disconnect (or a transport failure) stops the goroutines and
	  closes the Events() channel after a final EventDisconnected.
*/
package irc
