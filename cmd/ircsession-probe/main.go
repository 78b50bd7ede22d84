// Command ircsession-probe is a smoke-test CLI: it dials a server,
// negotiates registration, prints events to stdout, and optionally
// issues one aggregated query before disconnecting.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	irc "github.com/ircsession/irc"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ircsession-probe: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		server  string
		nick    string
		caps    []string
		saslFor string
		user    string
		pass    string
		whois   string
		names   string
		join    string
		timeout time.Duration
		useTLS  bool
	)

	cmd := &cobra.Command{
		Use:   "ircsession-probe",
		Short: "Connect to an IRC server and print the events it produces",
		Long:  "ircsession-probe dials a server, registers a nickname, and prints each Event to stdout. Pass --whois or --names to also issue an aggregated query, or --join to join a channel, before disconnecting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := splitHostPort(server)
			if err != nil {
				return err
			}

			cfg := irc.SessionConfig{
				Server:        host,
				Port:          port,
				UseTLS:        useTLS,
				Nick:          nick,
				RequestedCaps: caps,
			}
			if saslFor != "" {
				cfg.SASL = irc.SASLConfig{Mechanism: irc.SASLPlain, User: saslFor, Pass: pass}
			}
			if user != "" {
				cfg.Username = user
			}

			engine := irc.NewEngine(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := engine.Connect(); err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			done := make(chan struct{})
			go printEvents(engine, done)

			if err := engine.AwaitRegistered(ctx); err != nil {
				return fmt.Errorf("registration: %w", err)
			}
			fmt.Printf("registered as %s\n", engine.CurrentNick())

			switch {
			case join != "":
				if err := engine.Join(join, ""); err != nil {
					return fmt.Errorf("join: %w", err)
				}
			case whois != "":
				res, err := engine.Whois(ctx, whois)
				if err != nil {
					return fmt.Errorf("whois: %w", err)
				}
				fmt.Printf("whois %s: user=%s host=%s realname=%q idle=%ds\n",
					res.Nick, res.User, res.Host, res.Realname, res.Idle)
			case names != "":
				res, err := engine.Names(ctx, names)
				if err != nil {
					return fmt.Errorf("names: %w", err)
				}
				fmt.Printf("names %s: %s\n", res.Channel, strings.Join(res.Nicks, ", "))
			}

			engine.Disconnect("")
			<-done
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&server, "server", "irc.libera.chat:6697", "server address as host:port")
	flags.StringVar(&nick, "nick", "probe", "nickname to register")
	flags.StringSliceVar(&caps, "cap", nil, "IRCv3 capability to request (repeatable)")
	flags.StringVar(&saslFor, "sasl-user", "", "SASL PLAIN username; SASL runs only when --cap sasl is also given")
	flags.StringVar(&pass, "sasl-pass", "", "SASL PLAIN password")
	flags.StringVar(&user, "user", "", "USER username, defaults to --nick")
	flags.StringVar(&whois, "whois", "", "issue a WHOIS query for this nick after registering")
	flags.StringVar(&names, "names", "", "issue a NAMES query for this channel after registering")
	flags.StringVar(&join, "join", "", "join this channel after registering instead of querying")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "deadline for registration and any query")
	flags.BoolVar(&useTLS, "tls", true, "connect over TLS")

	return cmd
}

func printEvents(e *irc.Engine, done chan<- struct{}) {
	defer close(done)
	for ev := range e.Events() {
		switch ev.Kind {
		case irc.EventPrivmsg:
			fmt.Printf("<%s> %s\n", ev.Privmsg.Sender, ev.Privmsg.Text)
		case irc.EventJoin:
			fmt.Printf("* %s joined %s\n", ev.Join.Nick, ev.Join.Channel)
		case irc.EventDisconnected:
			if ev.Cause != nil {
				fmt.Printf("disconnected: %v\n", ev.Cause)
			} else {
				fmt.Println("disconnected")
			}
		case irc.EventError:
			fmt.Printf("error: %v\n", ev.Error)
		}
	}
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, 6697, nil
	}
	var port int
	if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return addr[:i], port, nil
}
