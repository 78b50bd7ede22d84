package irc

// EventKind identifies which field of an Event is populated.
type EventKind int

const (
	EventConnected EventKind = iota
	EventRegistered
	EventDisconnected
	EventMessage
	EventPrivmsg
	EventNotice
	EventJoin
	EventPart
	EventQuit
	EventKick
	EventNick
	EventTopic
	EventMode
	EventError
)

// Event is the closed variant type emitted on Engine.Events() for every
// protocol event named in spec.md §4.5's runtime message dispatch table.
// Exactly one of the typed fields is meaningful for a given Kind; the
// rest are zero values.
type Event struct {
	Kind EventKind

	// Disconnected
	Cause error

	// Message carries the parsed line for every event built from one
	// (EventMessage and each typed message event); it is nil for
	// lifecycle and error events.
	Message *Message

	Privmsg *PrivmsgEvent
	Notice  *NoticeEvent
	Join    *JoinEvent
	Part    *PartEvent
	Quit    *QuitEvent
	Kick    *KickEvent
	Nick    *NickEvent
	Topic   *TopicEvent
	Mode    *ModeEvent

	// Error carries the message for an EventError.
	Error error
}

// PrivmsgEvent is emitted for a PRIVMSG line that has a target, sender,
// and text.
type PrivmsgEvent struct {
	Target string
	Sender string
	Text   string
	Raw    *Message
}

// NoticeEvent mirrors PrivmsgEvent for NOTICE lines.
type NoticeEvent struct {
	Target string
	Sender string
	Text   string
	Raw    *Message
}

// JoinEvent is emitted for a JOIN line.
type JoinEvent struct {
	Channel string
	Nick    string
	Raw     *Message
}

// PartEvent is emitted for a PART line. Reason is empty when the server
// sent no trailing parameter.
type PartEvent struct {
	Channel string
	Nick    string
	Reason  string
	Raw     *Message
}

// QuitEvent is emitted for a QUIT line.
type QuitEvent struct {
	Nick   string
	Reason string
	Raw    *Message
}

// KickEvent is emitted for a KICK line with at least two parameters.
type KickEvent struct {
	Channel string
	Kicked  string
	By      string
	Reason  string
	Raw     *Message
}

// NickEvent is emitted for a NICK line.
type NickEvent struct {
	Old string
	New string
	Raw *Message
}

// TopicEvent is emitted for a TOPIC line.
type TopicEvent struct {
	Channel  string
	NewTopic string
	HasTopic bool
	Raw      *Message
}

// ModeEvent is emitted for a MODE line.
type ModeEvent struct {
	Target      string
	ModesJoined string
	Raw         *Message
}

func messageEvent(m *Message) Event { return Event{Kind: EventMessage, Message: m} }

func errorEvent(err error) Event { return Event{Kind: EventError, Error: err} }

func disconnectedEvent(cause error) Event {
	return Event{Kind: EventDisconnected, Cause: cause}
}
