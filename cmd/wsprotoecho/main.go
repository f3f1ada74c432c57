// Wsprotoecho is a minimal command-line client that connects to a
// WebSocket server, echoes every line typed on stdin as a TEXT message,
// and logs every message and lifecycle event it receives.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/xdg"

	"github.com/tzrikka/timpani-ws/internal/logging"
	"github.com/tzrikka/timpani-ws/pkg/wsproto"
)

const (
	configDirName  = "wsprotoecho"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()
	path := configFile()

	cmd := &cli.Command{
		Name:    "wsprotoecho",
		Usage:   "connect to a WebSocket server, echo stdin as TEXT messages",
		Version: bi.Main.Version,
		Flags:   flags(path),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags(path altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "WebSocket URL to connect to",
			Value: "ws://127.0.0.1:8080/",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSPROTOECHO_URL"),
				toml.TOML("connection.url", path),
			),
		},
		&cli.StringFlag{
			Name:  "protocol",
			Usage: "Sec-WebSocket-Protocol to offer",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSPROTOECHO_PROTOCOL"),
				toml.TOML("connection.protocol", path),
			),
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent header sent with the upgrade request",
			Value: "wsprotoecho",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSPROTOECHO_USER_AGENT"),
				toml.TOML("connection.user_agent", path),
			),
		},
		&cli.DurationFlag{
			Name:  "dial-timeout",
			Usage: "timeout for the initial TCP connection",
			Value: 5 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
	}
}

// configFile returns the path to the app's configuration file, creating
// an empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create config file")
	}
	return altsrc.StringSourcer(path)
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := zerolog.InfoLevel
	if cmd.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	ctx = logging.InContext(ctx, logging.New(level))

	target := cmd.String("url")
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL %q: %w", target, err)
	}

	conn, err := net.DialTimeout("tcp", u.Host, cmd.Duration("dial-timeout"))
	if err != nil {
		return fmt.Errorf("failed to connect to %q: %w", u.Host, err)
	}

	opts := []wsproto.SessionOpt{wsproto.WithUserAgent(cmd.String("user-agent"))}
	if p := cmd.String("protocol"); p != "" {
		opts = append(opts, wsproto.WithProtocol(p))
	}
	session := wsproto.NewSession(ctx, wsproto.NewNetTransport(conn), opts...)

	go session.Run(ctx, target)
	go readStdin(session)

	for e := range session.Events() {
		log.Info().Msg(eventLine(e))
		if _, ok := e.(wsproto.Disconnected); ok {
			return nil
		}
	}
	return nil
}

func readStdin(session *wsproto.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := session.SendText(scanner.Text()); err != nil {
			log.Error().Err(err).Msg("failed to send text message")
		}
	}
}

func eventLine(e wsproto.Event) string {
	switch v := e.(type) {
	case wsproto.Text:
		return fmt.Sprintf("text: %s", v.Data)
	case wsproto.Binary:
		return fmt.Sprintf("binary: %d bytes", len(v.Data))
	default:
		return fmt.Sprintf("%T", e)
	}
}
