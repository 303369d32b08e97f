// Command artery is a small demo harness around the core transport: it
// starts one Transport, logs every inbound message, and optionally sends
// a one-off message to a peer address. Configuration loading, a real
// dispatcher and CLI surface beyond this are external-collaborator
// concerns (spec §1).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/jabolina/go-artery/pkg/artery"
	"github.com/jabolina/go-artery/pkg/artery/definition"
	"github.com/jabolina/go-artery/pkg/artery/types"
)

var (
	app = kingpin.New("artery", "demo harness for the go-artery remote transport core")

	hostname  = app.Flag("artery.hostname", "local bind hostname").Default("127.0.0.1").String()
	port      = app.Flag("artery.port", "local bind port, 0 for auto-assign").Default("0").Int()
	system    = app.Flag("system", "actor system name").Default("demo").String()
	large     = app.Flag("large-message-destinations", "comma-separated large-message path patterns").Default("").String()
	sendTo    = app.Flag("send-to", "host:port of a peer to send a greeting message to").String()
	debugLogs = app.Flag("debug", "enable debug logging").Bool()
)

type logDispatcher struct {
	log types.Logger
}

func (d *logDispatcher) Dispatch(env *types.InboundEnvelope) {
	d.log.Infof("received from uid=%d: %v", env.OriginUID, env.Message)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := definition.NewDefaultLogger()
	log.ToggleDebug(*debugLogs)

	cfg := types.DefaultConfig()
	cfg.ArteryHostname = *hostname
	cfg.ArteryPort = *port
	cfg.AeronDirectoryName = *system
	if *large != "" {
		cfg.LargeMessageDestinations = strings.Split(*large, ",")
	}

	transport, err := artery.NewTransport(cfg, log, &logDispatcher{log: log})
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("failed constructing transport: %v", err))
		os.Exit(1)
	}
	if err := transport.Start(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("failed starting transport: %v", err))
		os.Exit(1)
	}

	fmt.Println(color.GreenString("artery listening at %s", transport.LocalAddress()))

	if *sendTo != "" {
		if err := sendGreeting(transport, *sendTo); err != nil {
			fmt.Fprintln(os.Stderr, color.YellowString("failed sending greeting: %v", err))
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	transport.Shutdown()
}

func sendGreeting(t *artery.Transport, target string) error {
	host, portStr, ok := strings.Cut(target, ":")
	if !ok {
		return fmt.Errorf("expected host:port, got %q", target)
	}
	p, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	addr := types.Address{Protocol: "artery", System: "demo", Host: host, Port: uint16(p)}
	t.Send(fmt.Sprintf("hello from %s", t.LocalAddress()), nil, nil, addr)
	time.Sleep(100 * time.Millisecond)
	return nil
}
