// Command auctionnode runs one participant in the peer-to-peer
// auction network: it joins the rendezvous topic, gossips auction
// events with its peers, and serves the local control surface.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	auctionnet "github.com/cjmont/p2p-auction-th"
	"github.com/cjmont/p2p-auction-th/actl"
	"github.com/cjmont/p2p-auction-th/internal/acert"
)

func main() {
	configPath := flag.String("config", "auctionnode.yml", "path to the node configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("client_id", cfg.ClientID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ua, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve overlay listen address: %w", err)
	}
	uc, err := net.ListenUDP("udp", ua)
	if err != nil {
		return fmt.Errorf("failed to bind overlay listen address: %w", err)
	}
	defer uc.Close()

	clientID := strconv.Itoa(cfg.ClientID)

	// The identity is ephemeral:
	// a restarted node appears to peers as a new fingerprint.
	cert, err := acert.NewEphemeralIdentity("auctionnode-" + clientID)
	if err != nil {
		return err
	}

	node, err := auctionnet.NewNode(ctx, log, auctionnet.NodeConfig{
		UDPConn: uc,
		QUIC:    auctionnet.DefaultQUICConfig(),
		TLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
		},
		Topic:    cfg.Topic,
		ClientID: clientID,
		Seeds:    cfg.Seeds,
	})
	if err != nil {
		return err
	}

	log.Info(
		"Node started",
		"overlay_addr", node.ListenAddr().String(),
		"topic", cfg.Topic,
		"identity", acert.Fingerprint(cert.Leaf),
	)

	node.Join(ctx)

	srv := actl.NewServer(
		actl.ServerConfig{
			ListenAddr: cfg.ControlAddr(),
			Log:        log.With("node_sys", "control"),
		},
		&actl.AuctionHandler{
			Backend: node,
			Log:     log.With("node_sys", "control"),
		},
	)

	err = srv.Run(ctx)

	// The context is done (or the server failed);
	// wait for the overlay to wind down either way.
	cancel()
	node.Wait()

	return err
}
