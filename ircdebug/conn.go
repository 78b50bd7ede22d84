/*
Package ircdebug contains helper functions that are useful while writing an IRC client.
*/
package ircdebug

import (
	"io"

	irc "github.com/ircsession/irc"
)

// Wrap returns a Transport that copies every line read from and written
// to t into w, prefixed with inPrefix and outPrefix respectively. This
// is mainly useful while developing an IRC client like a bot, e.g. for
// writing to os.Stdout or a file. It adapts teacher's WriteTo (which
// wrapped a raw io.ReadWriteCloser) to the Transport interface.
func Wrap(w io.Writer, t irc.Transport, outPrefix string, inPrefix string) irc.Transport {
	return &debugTransport{
		Transport: t,
		w:         w,
		outPrefix: outPrefix,
		inPrefix:  inPrefix,
	}
}

type debugTransport struct {
	irc.Transport
	w         io.Writer
	outPrefix string
	inPrefix  string
}

func (dt *debugTransport) ReadLine() ([]byte, error) {
	line, err := dt.Transport.ReadLine()
	if err == nil {
		_, _ = (&writePrefixer{w: dt.w, prefix: dt.inPrefix}).Write(line)
	}
	return line, err
}

func (dt *debugTransport) WriteLine(line []byte) error {
	_, _ = (&writePrefixer{w: dt.w, prefix: dt.outPrefix}).Write(line)
	return dt.Transport.WriteLine(line)
}

type writePrefixer struct {
	w      io.Writer
	prefix string
}

func (wp *writePrefixer) Write(p []byte) (n int, err error) {
	n, err = wp.w.Write(append([]byte(wp.prefix), p...))

	// keep the caller's accounting in terms of p alone, since the
	// prefix byte count is an implementation detail of the debug copy.
	if n > len(wp.prefix) {
		n -= len(wp.prefix)
	} else {
		n = 0
	}
	return n, err
}
