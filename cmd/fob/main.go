// Command fob is the fob-side firmware process: boots from a provisioned
// persistent-secret image, then runs the Idle main loop of spec.md §4.9,
// servicing the debounced button edge, host commands ('E', 'P', 'U'), and
// the persistent pairing cooldown.
package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/ironkey-labs/pared/internal/config"
	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/filestore"
	"github.com/ironkey-labs/pared/pkg/pared/netserial"
	"github.com/ironkey-labs/pared/pkg/pared/simplatform"
)

func main() {
	configPath := flag.String("config", "fob.yaml", "path to the fob's device configuration")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	store, err := filestore.Open(cfg.Store.ImageFile, pared.FobLayout)
	if err != nil {
		slog.Error("open persistent image failed", "error", err)
		os.Exit(1)
	}

	imageDigest, err := store.LoadPlain(pared.FieldTextImageDigest)
	if err != nil {
		slog.Error("read text_image_digest failed", "error", err)
		os.Exit(1)
	}
	var digest [pared.HashSize]byte
	copy(digest[:], imageDigest)

	rng, err := pared.BootFob(store, digest)
	if err != nil {
		slog.Error("boot failed", "error", err)
		os.Exit(1)
	}
	slog.Info("fob booted", "image_file", cfg.Store.ImageFile)

	board, err := dialOrListen(cfg.Board, "board link")
	if err != nil {
		slog.Error("board link setup failed", "error", err)
		os.Exit(1)
	}
	host, err := dialOrListen(cfg.Host, "host link")
	if err != nil {
		slog.Error("host link setup failed", "error", err)
		os.Exit(1)
	}
	board.Flush()
	host.Flush()

	var peer *netserial.Serial
	if cfg.Peer.Mode != "" {
		peer, err = dialOrListen(cfg.Peer, "peer link")
		if err != nil {
			slog.Error("peer link setup failed", "error", err)
			os.Exit(1)
		}
		peer.Flush()
	}

	button := &simplatform.Button{}
	if cfg.ButtonAddr != "" {
		go serveButton(cfg.ButtonAddr, button)
	}

	slog.Info("entering main loop")
	for {
		if err := pared.EnforceCooldown(store); err != nil {
			slog.Warn("cooldown enforcement failed", "error", err)
		}

		if button.Pressed() {
			if err := board.WriteByte('U'); err != nil {
				slog.Warn("unlock initiation signal failed", "error", err)
			} else if err := pared.FobUnlockInitiate(board, store, rng); err != nil {
				slog.Warn("unlock initiation failed", "error", err)
			}
			continue
		}

		cmd, err := host.ReadByteTimeout()
		if err != nil {
			continue // no command pending within this poll slice
		}
		dispatch(cmd, host, peer, store, rng)
	}
}

func dispatch(cmd byte, host, peer *netserial.Serial, store *filestore.Store, rng *pared.RNG) {
	switch cmd {
	case 'E':
		if err := pared.FeatureEnable(host, store, rng); err != nil {
			slog.Warn("feature enable failed", "error", err)
		}
	case 'P':
		if peer == nil {
			slog.Warn("pairing initiation requested but no peer_link configured")
			return
		}
		if err := pared.PairInitiate(host, peer, store, rng, pared.PairingOptions{}); err != nil {
			slog.Warn("pairing initiation failed", "error", err)
		}
	case 'U':
		if peer == nil {
			slog.Warn("pairing response requested but no peer_link configured")
			return
		}
		if err := pared.PairRespond(peer, store); err != nil {
			slog.Warn("pairing response failed", "error", err)
		}
	case 'T':
		_ = host.Write([]byte{pared.FrameOK})
	default:
		slog.Debug("ignoring unrecognized host command", "byte", cmd)
	}
}

func serveButton(addr string, button *simplatform.Button) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("button listener failed", "error", err)
		return
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			buf := make([]byte, 1)
			for {
				if _, err := conn.Read(buf); err != nil {
					return
				}
				button.Press()
			}
		}()
	}
}

func dialOrListen(cfg config.LinkConfig, name string) (*netserial.Serial, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	switch cfg.Mode {
	case "dial":
		slog.Info("dialing "+name, "address", cfg.Address)
		return netserial.Dial("tcp", cfg.Address, timeout)
	case "listen":
		slog.Info("listening for "+name, "address", cfg.Address)
		ln, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, err
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return nil, err
		}
		return netserial.New(conn, timeout), nil
	default:
		return nil, &net.OpError{Op: "configure", Err: errUnknownMode{cfg.Mode}}
	}
}

type errUnknownMode struct{ mode string }

func (e errUnknownMode) Error() string { return "unknown link mode " + e.mode }
