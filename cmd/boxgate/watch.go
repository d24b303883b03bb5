package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/basket/boxgate/internal/config"
	"github.com/basket/boxgate/internal/tui"
)

func runWatchCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	kind := fs.String("kind", "", "subscription kind: sandbox-status (default), sessions, logs")
	sessionID := fs.String("session", "", "session id (required for -kind logs)")
	commandID := fs.String("command", "", "command id (required for -kind logs)")
	addr := fs.String("addr", "", "daemon address (default: bind_addr from config)")
	apiKey := fs.String("key", "", "gateway API key (default: BOXGATE_API_KEY)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: boxgate watch <sandbox-id> [-kind k] [-session s] [-command c] [-addr a] [-key k]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "watch needs a terminal; use `curl -N .../api/events?sandbox_id=...` for scripts")
		return 1
	}

	base := *addr
	if base == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config load: %v\n", err)
			return 1
		}
		base = cfg.BindAddr
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		if host, port, err := net.SplitHostPort(base); err == nil {
			base = net.JoinHostPort(host, port)
		}
		base = "http://" + base
	}

	key := *apiKey
	if key == "" {
		key = os.Getenv("BOXGATE_API_KEY")
	}

	err := tui.Run(ctx, tui.StreamConfig{
		BaseURL:   base,
		APIKey:    key,
		SandboxID: fs.Arg(0),
		Kind:      *kind,
		SessionID: *sessionID,
		CommandID: *commandID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		return 1
	}
	return 0
}
