package irc

import (
	"strconv"
	"strings"
	"time"
)

// aggDefaultTimeout is the default deadline for a pending aggregator,
// per spec.md §5 ("Aggregators have a default 30 s deadline").
const aggDefaultTimeout = 30 * time.Second

// AggKey identifies one pending aggregated query in the engine's
// aggregation table: its kind plus the argument it was issued for
// (nick, channel, or "" for untargeted queries like LIST/MOTD).
type AggKey struct {
	Kind AggKind
	Arg  string
}

// AggKind distinguishes the aggregator families named in spec.md §4.3.
type AggKind int

const (
	AggWhois AggKind = iota
	AggWhoWas
	AggNames
	AggWho
	AggList
	AggMOTD
)

// aggregator collects the multi-line reply to one aggregated query. feed
// is called with every parsed message while the aggregator is pending;
// it returns done once a terminator has been seen. A success terminator
// (e.g. RPL_ENDOFWHOIS) returns failErr == nil; an error terminator (e.g.
// ERR_NOSUCHNICK) returns a non-nil failErr so the caller calls fail
// instead of complete. complete and fail deliver the final result or
// error to the one-shot waiter, exactly once.
type aggregator interface {
	feed(m *Message) (done bool, failErr error)
	complete()
	fail(err error)
}

// WhoisResult is the aggregated reply to a WHOIS query.
type WhoisResult struct {
	Nick     string
	User     string
	Host     string
	Realname string
	Server   string
	Account  string
	Channels []string
	Idle     int
}

type whoisAggregator struct {
	nick   string
	result WhoisResult
	out    chan aggOutcome[WhoisResult]
}

func newWhoisAggregator(nick string) (*whoisAggregator, chan aggOutcome[WhoisResult]) {
	out := make(chan aggOutcome[WhoisResult], 1)
	return &whoisAggregator{nick: nick, result: WhoisResult{Nick: nick}, out: out}, out
}

func (a *whoisAggregator) feed(m *Message) (bool, error) {
	code, ok := m.NumericCode()
	if !ok {
		return false, nil
	}
	switch code {
	case RplWhoIsUser:
		a.result.User = m.Params.Get(3)
		a.result.Host = m.Params.Get(4)
		a.result.Realname = m.Params.Get(6)
	case RplWhoIsServer:
		a.result.Server = m.Params.Get(3)
	case RplWhoIsIdle:
		if secs, err := strconv.Atoi(m.Params.Get(3)); err == nil {
			a.result.Idle = secs
		}
	case RplWhoIsAccount:
		a.result.Account = m.Params.Get(3)
	case RplWhoIsChannels:
		a.result.Channels = append(a.result.Channels, strings.Fields(m.Params.Get(3))...)
	case RplEndOfWhoIs:
		return true, nil
	case RplErrNoSuchNick:
		return true, newSessionError(ErrQueryFailed, "no such nick: "+a.nick, nil)
	}
	return false, nil
}

func (a *whoisAggregator) complete() { a.out <- aggOutcome[WhoisResult]{value: a.result} }
func (a *whoisAggregator) fail(err error) {
	a.out <- aggOutcome[WhoisResult]{err: err}
}

// NamesResult is the aggregated reply to a NAMES query.
type NamesResult struct {
	Channel string
	Nicks   []string
}

type namesAggregator struct {
	channel string
	result  NamesResult
	out     chan aggOutcome[NamesResult]
}

func newNamesAggregator(channel string) (*namesAggregator, chan aggOutcome[NamesResult]) {
	out := make(chan aggOutcome[NamesResult], 1)
	return &namesAggregator{channel: channel, result: NamesResult{Channel: channel}, out: out}, out
}

func (a *namesAggregator) feed(m *Message) (bool, error) {
	code, ok := m.NumericCode()
	if !ok {
		return false, nil
	}
	switch code {
	case RplNamReply:
		a.result.Nicks = append(a.result.Nicks, strings.Fields(m.Params.Get(4))...)
	case RplEndOfNames:
		return true, nil
	}
	return false, nil
}

func (a *namesAggregator) complete() { a.out <- aggOutcome[NamesResult]{value: a.result} }
func (a *namesAggregator) fail(err error) {
	a.out <- aggOutcome[NamesResult]{err: err}
}

// WhoResult is the aggregated reply to a WHO query.
type WhoResult struct {
	Mask    string
	Entries []WhoEntry
}

// WhoEntry is a single RPL_WHOREPLY line.
type WhoEntry struct {
	Channel  string
	User     string
	Host     string
	Server   string
	Nick     string
	Flags    string
	Realname string
}

type whoAggregator struct {
	mask   string
	result WhoResult
	out    chan aggOutcome[WhoResult]
}

func newWhoAggregator(mask string) (*whoAggregator, chan aggOutcome[WhoResult]) {
	out := make(chan aggOutcome[WhoResult], 1)
	return &whoAggregator{mask: mask, result: WhoResult{Mask: mask}, out: out}, out
}

func (a *whoAggregator) feed(m *Message) (bool, error) {
	code, ok := m.NumericCode()
	if !ok {
		return false, nil
	}
	switch code {
	case RplWhoReply:
		a.result.Entries = append(a.result.Entries, WhoEntry{
			Channel:  m.Params.Get(2),
			User:     m.Params.Get(3),
			Host:     m.Params.Get(4),
			Server:   m.Params.Get(5),
			Nick:     m.Params.Get(6),
			Flags:    m.Params.Get(7),
			Realname: m.Params.Get(8),
		})
	case RplEndOfWho:
		return true, nil
	}
	return false, nil
}

func (a *whoAggregator) complete() { a.out <- aggOutcome[WhoResult]{value: a.result} }
func (a *whoAggregator) fail(err error) {
	a.out <- aggOutcome[WhoResult]{err: err}
}

// ListResult is the aggregated reply to a LIST query.
type ListResult struct {
	Channels []ListEntry
}

// ListEntry is a single RPL_LIST line.
type ListEntry struct {
	Channel string
	Visible int
	Topic   string
}

type listAggregator struct {
	result ListResult
	out    chan aggOutcome[ListResult]
}

func newListAggregator() (*listAggregator, chan aggOutcome[ListResult]) {
	out := make(chan aggOutcome[ListResult], 1)
	return &listAggregator{out: out}, out
}

func (a *listAggregator) feed(m *Message) (bool, error) {
	code, ok := m.NumericCode()
	if !ok {
		return false, nil
	}
	switch code {
	case RplList:
		a.result.Channels = append(a.result.Channels, ListEntry{
			Channel: m.Params.Get(2),
			Topic:   m.Params.Get(4),
		})
	case RplListEnd:
		return true, nil
	}
	return false, nil
}

func (a *listAggregator) complete() { a.out <- aggOutcome[ListResult]{value: a.result} }
func (a *listAggregator) fail(err error) {
	a.out <- aggOutcome[ListResult]{err: err}
}

// MOTDResult is the aggregated reply to a MOTD query.
type MOTDResult struct {
	Lines []string
}

type motdAggregator struct {
	result MOTDResult
	out    chan aggOutcome[MOTDResult]
}

func newMOTDAggregator() (*motdAggregator, chan aggOutcome[MOTDResult]) {
	out := make(chan aggOutcome[MOTDResult], 1)
	return &motdAggregator{out: out}, out
}

func (a *motdAggregator) feed(m *Message) (bool, error) {
	code, ok := m.NumericCode()
	if !ok {
		return false, nil
	}
	switch code {
	case RplMOTD:
		a.result.Lines = append(a.result.Lines, m.Params.Get(2))
	case RplEndOfMOTD:
		return true, nil
	case RplErrNoMOTD:
		return true, newSessionError(ErrQueryFailed, "no MOTD", nil)
	}
	return false, nil
}

func (a *motdAggregator) complete() { a.out <- aggOutcome[MOTDResult]{value: a.result} }
func (a *motdAggregator) fail(err error) {
	a.out <- aggOutcome[MOTDResult]{err: err}
}

// aggOutcome carries either a completed result or a terminal error to
// the one-shot channel a query's wait() call reads from.
type aggOutcome[T any] struct {
	value T
	err   error
}
