// Command pairtool drives a paired fob's host link through the pairing
// exchange of spec.md §4.6 step 2, prompting the operator for the PIN the
// way the teacher's keyswap puts the terminal in raw mode for secure input,
// grounded on original_source's pair_fob host tool.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ironkey-labs/pared/internal/config"
	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/netserial"
)

func main() {
	configPath := flag.String("config", "pairtool.yaml", "path to the host tool's link configuration")
	pinFlag := flag.String("pin", "", "6-hex-digit pairing PIN (omit to be prompted securely)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.LoadHostTool(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	pin := *pinFlag
	if pin == "" {
		pin, err = promptPIN()
		if err != nil {
			slog.Error("read PIN failed", "error", err)
			os.Exit(1)
		}
	}
	pinValue, err := parsePIN(pin)
	if err != nil {
		slog.Error("invalid PIN", "error", err)
		os.Exit(1)
	}

	timeout := time.Duration(cfg.Link.TimeoutMS) * time.Millisecond
	link, err := netserial.Dial("tcp", cfg.Link.Address, timeout)
	if err != nil {
		slog.Error("connect to fob host link failed", "error", err)
		os.Exit(1)
	}
	defer link.Close()

	if err := sendPIN(link, pinValue); err != nil {
		fmt.Println("Failed to pair fob.")
		slog.Error("pairing failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Paired.")
}

// parsePIN requires exactly 6 hex digits, matching original_source's
// pair_tool parse_pin (spec.md's "6-hex-digit" pairing PIN, §4.6/§6.2):
// accepting anything else would silently shrink or grow the brute-force
// space the cooldown in EnforceCooldown is meant to protect.
func parsePIN(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return 0, fmt.Errorf("PIN must be exactly 6 hex digits, got %d characters", len(s))
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("PIN must be 6 hex digits: %w", err)
	}
	return uint32(v), nil
}

// promptPIN reads the PIN from the controlling terminal with echo
// disabled, so it never lands in shell history or a process listing.
func promptPIN() (string, error) {
	fmt.Print("Pairing PIN: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// sendPIN writes the fob's 'P' command byte, then drives the ready/ack
// handshake of spec.md §4.2: wait for the fob's FrameOK readiness byte,
// write the 4-byte little-endian PIN, then read its single-byte verdict.
func sendPIN(link *netserial.Serial, pin uint32) error {
	if err := link.WriteByte('P'); err != nil {
		return fmt.Errorf("send pair command: %w", err)
	}
	ready, err := link.ReadByteTimeout()
	if err != nil {
		return fmt.Errorf("waiting for fob ready signal: %w", err)
	}
	if ready != pared.FrameOK {
		return fmt.Errorf("fob sent unexpected ready byte 0x%02x", ready)
	}

	buf := make([]byte, pared.PINSize)
	binary.LittleEndian.PutUint32(buf, pin)
	if err := link.Write(buf); err != nil {
		return fmt.Errorf("send PIN: %w", err)
	}

	verdict, err := link.ReadByteTimeout()
	if err != nil {
		return fmt.Errorf("waiting for pairing verdict: %w", err)
	}
	if verdict != pared.FrameOK {
		return fmt.Errorf("fob rejected PIN")
	}
	return nil
}
