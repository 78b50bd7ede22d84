package irc_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ircsession/irc"
	"github.com/ircsession/irc/ircdebug"
)

func ExampleEngine_connect() {
	engine := irc.NewEngine(irc.SessionConfig{
		Server: "irc.example.com",
		Port:   6697,
		UseTLS: true,
		Nick:   "WiZ",
	})
	_ = engine.Connect()
}

// ExampleEngine_connectDecorated shows wrapping the default transport so
// every line read from or written to the connection is echoed to stdout,
// useful when debugging a handshake.
func ExampleEngine_connectDecorated() {
	transport := ircdebug.Wrap(os.Stdout, irc.NewTCPTransport("irc.example.com:6697", true), "-> ", "<- ")
	engine := irc.NewEngine(irc.SessionConfig{
		Nick:      "WiZ",
		Transport: transport,
	})
	_ = engine.Connect()
}

// This example demonstrates why using the Get method of a Params type is preferable to accessing its slice index directly.
// Note the parsing behavior around missing and empty params.
// The parser only interprets syntax without understanding the semantics of a PART command.
// In other words, it does not know how many parameters a PART command has.
// Similarly, functions which interpret a PART command don't care about the protocol syntax difference between omitting a parameter or leaving it empty:
// in both cases they would only care about checking if the second param is equal to empty string.
func ExampleParams_get() {

	lines := []struct {
		raw         string
		description string
	}{{
		raw:         ":WiZ PART #foo",
		description: "PART with omitted reason",
	}, {
		raw:         ":WiZ PART #foo :",
		description: "PART with empty reason",
	}, {
		raw:         ":WiZ PART #foo :leaving now",
		description: `PART with reason "leaving now"`,
	},
	}

	m := &irc.Message{}
	for _, line := range lines {
		err := m.UnmarshalText([]byte(line.raw))
		if err != nil {
			log.Println(err)
		}
		fmt.Printf("%s:\n", line.description)
		fmt.Printf("parsed: %#v\n", m.Params)
		fmt.Printf("get 1,2: %q, %q\n", m.Params.Get(1), m.Params.Get(2))
	}
	// Output:
	// PART with omitted reason:
	// parsed: irc.Params{"#foo"}
	// get 1,2: "#foo", ""
	// PART with empty reason:
	// parsed: irc.Params{"#foo", ""}
	// get 1,2: "#foo", ""
	// PART with reason "leaving now":
	// parsed: irc.Params{"#foo", "leaving now"}
	// get 1,2: "#foo", "leaving now"

}

// The Message returned by NewMessage does not have any tags set.
// To attach tags to an outgoing message, build it with NewMessage instead
// of a Command constructor (a Command does not expose its Message), set
// its Tags, then marshal it and send the text with Engine.SendRaw.
func ExampleNewMessage_attachingTags() {
	m := irc.NewMessage(irc.CmdPrivmsg, "#somechannel", "hello!")
	m.Tags.Set("msgid", "63E1033A051D4B41B1AB1FA3CF4B243E")
	b, _ := m.MarshalText()
	fmt.Println(string(b))
	// Output:
	// @msgid=63E1033A051D4B41B1AB1FA3CF4B243E PRIVMSG #somechannel hello!
}

// This example deals with connection failures.
// It retries with a fresh engine until one registers or a one-second deadline passes,
// roughly doubling the delay (delay*2 + 1s) after each failed connect or registration.
func ExampleEngine_reconnect() {
	newEngine := func() *irc.Engine {
		return irc.NewEngine(irc.SessionConfig{
			Server: "irc.example.com",
			Port:   6697,
			UseTLS: true,
			Nick:   "HelloBot",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var delay time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		engine := newEngine()
		if err := engine.Connect(); err != nil {
			log.Println("connect failed:", err)
			delay = delay*2 + time.Second
			continue
		}

		go func() {
			for ev := range engine.Events() {
				if ev.Kind == irc.EventRegistered {
					engine.Send(irc.Join("#World", ""))
				}
			}
		}()

		if err := engine.AwaitRegistered(ctx); err != nil {
			log.Println("registration ended:", err)
			delay = delay*2 + time.Second
			continue
		}
		delay = 0
		return
	}
}
