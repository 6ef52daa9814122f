// Command unlocktool listens on a car's host link and prints the unlock
// and feature messages it emits after a successful unlock (spec.md §4.4's
// emitUnlockMessages), the Go analogue of original_source's
// display_unlock_message host tool.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ironkey-labs/pared/internal/config"
	"github.com/ironkey-labs/pared/pkg/pared/netserial"
)

// messageSize is the fixed wire width of each unlock/feature message
// (spec.md §6.3's 64-byte unlock_message and feature_message_N fields).
const messageSize = 64

func main() {
	configPath := flag.String("config", "unlocktool.yaml", "path to the host tool's link configuration")
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

	timeout := time.Duration(cfg.Link.TimeoutMS) * time.Millisecond
	link, err := netserial.Dial("tcp", cfg.Link.Address, timeout)
	if err != nil {
		slog.Error("connect to car host link failed", "error", err)
		os.Exit(1)
	}
	defer link.Close()

	messages, err := collect(link)
	if err != nil {
		fmt.Println("Failed to unlock car because unlock message never came or was malformed.")
		slog.Error("collect unlock messages failed", "error", err)
		os.Exit(1)
	}
	if len(messages) == 0 {
		fmt.Println("Failed to unlock car because unlock message never came or was malformed.")
		os.Exit(1)
	}

	fmt.Println("Successfully unlocked car.")
	fmt.Printf("Unlock message: %s\n", messages[0])
	for i, msg := range messages[1:] {
		fmt.Printf("Feature message #%d: %s\n", i+1, msg)
	}
}

// collect reads status-byte/message pairs off link until the car stops
// sending (a read timeout marks the end, since the protocol carries no
// explicit count). The first pair is always the unlock message; any
// further pairs are feature messages in ascending feature-number order.
func collect(link *netserial.Serial) ([]string, error) {
	var messages []string
	for {
		status, err := link.ReadByteTimeout()
		if err != nil {
			break
		}
		if status != 1 {
			return nil, fmt.Errorf("unexpected status byte 0x%02x", status)
		}
		buf := make([]byte, messageSize)
		if err := link.ReadFull(buf); err != nil {
			return nil, fmt.Errorf("read message: %w", err)
		}
		messages = append(messages, strings.TrimRight(string(buf), "\x00"))
	}
	return messages, nil
}
