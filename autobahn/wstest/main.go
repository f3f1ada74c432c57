// Wstest tests this module's WebSocket client against the fuzzing server
// of the [Autobahn Testsuite].
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tzrikka/timpani-ws/internal/logging"
	"github.com/tzrikka/timpani-ws/pkg/wsproto"
)

const (
	host  = "127.0.0.1:9001"
	agent = "timpani-ws"
)

func main() {
	n := getCaseCount()
	log.Info().Int("n", n).Msg("case count")

	// Excluded from "config/fuzzingserver.json":
	//   - 6.4.*: fail-fast on invalid UTF-8 frames,
	//   - 12.* and 13.*: WebSocket compression, which this engine does
	//     not implement.
	for i := range n {
		runCase(i + 1)
	}

	updateReports()
}

// dial opens a TCP connection to the fuzzing server and drives a Session
// to Ready, returning it (and its event channel) for the caller to
// exchange messages over. It returns a nil Session if the connection
// never reaches Ready.
func dial(path string) (*wsproto.Session, <-chan wsproto.Event) {
	conn, err := net.DialTimeout("tcp", host, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("TCP dial error")
	}

	ctx := logging.InContext(context.Background(), logging.New(zerolog.InfoLevel))
	s := wsproto.NewSession(ctx, wsproto.NewNetTransport(conn))
	events := s.Events()
	go s.Run(ctx, fmt.Sprintf("ws://%s%s", host, path))

	for e := range events {
		switch e.(type) {
		case wsproto.Ready:
			return s, events
		case wsproto.Rejected, wsproto.ConnectFail, wsproto.Disconnected:
			return nil, events
		}
	}
	return nil, events
}

// getCaseCount retrieves the number of enabled test cases from the
// Autobahn fuzzing server, using a WebSocket request.
func getCaseCount() int {
	s, events := dial("/getCaseCount")
	if s == nil {
		return 0
	}

	for e := range events {
		if text, ok := e.(wsproto.Text); ok {
			n, err := strconv.Atoi(text.Data)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid test case count")
			}
			return n
		}
	}
	return 0
}

// updateReports instructs the fuzzing server to generate/update all the
// HTML and JSON files for all the test-case results.
func updateReports() {
	log.Info().Msg("updating reports")
	dial(fmt.Sprintf("/updateReports?agent=%s", agent))
}

func runCase(i int) {
	l := log.With().Int("case", i).Logger()
	l.Info().Msg("starting test")

	s, events := dial(fmt.Sprintf("/runCase?case=%d&agent=%s", i, agent))
	if s == nil {
		return
	}

	for e := range events {
		switch v := e.(type) {
		case wsproto.Text:
			l.Info().Int("length", len(v.Data)).Msg("received text message")
			if err := s.SendText(v.Data); err != nil {
				l.Error().Err(err).Msg("echo error")
				_ = s.Close(wsproto.StatusNormalClosure, "")
			}
		case wsproto.Binary:
			l.Info().Int("length", len(v.Data)).Msg("received binary message")
			if err := s.SendBinary(v.Data); err != nil {
				l.Error().Err(err).Msg("echo error")
				_ = s.Close(wsproto.StatusNormalClosure, "")
			}
		case wsproto.Disconnected:
			l.Debug().Msg("connection closed")
			return
		case wsproto.Unresponsive:
			l.Error().Msg("peer stopped responding to pings")
			os.Exit(1)
		}
	}
}
