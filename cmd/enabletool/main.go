// Command enabletool delivers a signed feature package (built by
// packagetool) to a fob's host link, the Go analogue of original_source's
// enable_feature host tool.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ironkey-labs/pared/internal/config"
	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/netserial"
)

func main() {
	configPath := flag.String("config", "enabletool.yaml", "path to the host tool's link configuration")
	packagePath := flag.String("package-file", "", "path to a package written by packagetool")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *packagePath == "" {
		slog.Error("-package-file is required")
		os.Exit(1)
	}

	cfg, err := config.LoadHostTool(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	raw, err := os.ReadFile(*packagePath)
	if err != nil {
		fmt.Println("Couldn't find specified package or package malformed.")
		slog.Error("read package file failed", "error", err)
		os.Exit(1)
	}
	pkg, err := pared.DecodeEnablePackage(raw)
	if err != nil {
		fmt.Println("Couldn't find specified package or package malformed.")
		slog.Error("decode package failed", "error", err)
		os.Exit(1)
	}

	timeout := time.Duration(cfg.Link.TimeoutMS) * time.Millisecond
	link, err := netserial.Dial("tcp", cfg.Link.Address, timeout)
	if err != nil {
		slog.Error("connect to fob host link failed", "error", err)
		os.Exit(1)
	}
	defer link.Close()

	if err := send(link, pkg); err != nil {
		fmt.Println("Failed to enable feature.")
		slog.Error("enable request failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Enabled.")
}

// send writes the fob's 'E' command byte, then drives the ready/ack
// handshake of spec.md §4.2: wait for the fob's FrameOK readiness byte,
// write the encoded package, then read its single-byte verdict.
func send(link *netserial.Serial, pkg *pared.EnablePackage) error {
	if err := link.WriteByte('E'); err != nil {
		return fmt.Errorf("send enable command: %w", err)
	}
	ready, err := link.ReadByteTimeout()
	if err != nil {
		return fmt.Errorf("waiting for fob ready signal: %w", err)
	}
	if ready != pared.FrameOK {
		return fmt.Errorf("fob sent unexpected ready byte 0x%02x", ready)
	}

	if err := link.Write(pkg.Encode()); err != nil {
		return fmt.Errorf("send package: %w", err)
	}

	verdict, err := link.ReadByteTimeout()
	if err != nil {
		return fmt.Errorf("waiting for enable verdict: %w", err)
	}
	if verdict != pared.FrameOK {
		return fmt.Errorf("fob rejected package")
	}
	return nil
}
