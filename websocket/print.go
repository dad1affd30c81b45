package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
)

// PrintConnectMessage prints a connection banner with colorized formatting.
func PrintConnectMessage() {
	cyanBold := color.New(color.FgHiCyan, color.Bold)
	_, _ = cyanBold.Println("╔════════════════ WebSocket Connected ═════════════╗")

	green := color.New(color.FgGreen)
	_, _ = green.Print("  🔌 Status: ")

	fmt.Println("connected")

	_, _ = cyanBold.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()
}

// PrintTextMessage prints a text frame with colorized formatting,
// pretty-printing the payload when it is valid JSON.
func PrintTextMessage(data []byte, note string) {
	cyanBold := color.New(color.FgHiCyan, color.Bold)
	_, _ = cyanBold.Println("╔════════════════ WebSocket Frame ═════════════════╗")

	green := color.New(color.FgGreen)
	_, _ = green.Print("  📜 Note: ")

	fmt.Println(note)

	_, _ = color.New(color.FgHiMagenta, color.Bold).Println("  📦 Payload:")
	printJSON(data)

	_, _ = cyanBold.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()
}

// PrintRetryMessage prints a reconnection attempt with colorized
// formatting. A max of 0 means unlimited attempts.
func PrintRetryMessage(attempt, max uint, delay time.Duration) {
	yellowBold := color.New(color.FgHiYellow, color.Bold)

	if max == 0 {
		_, _ = yellowBold.Printf("  🔄 Reconnecting: attempt %d in %v\n", attempt, delay)

		return
	}

	_, _ = yellowBold.Printf("  🔄 Reconnecting: attempt [%d/%d] in %v\n", attempt, max, delay)
}

// PrintCloseMessage prints a connection closure with colorized formatting.
func PrintCloseMessage(code int, reason string) {
	redBold := color.New(color.FgHiRed, color.Bold)
	_, _ = redBold.Printf("  ❌ Closed: %d", code)

	if reason != "" {
		fmt.Printf(" - %s", reason)
	}

	fmt.Println()
}

// printJSON pretty-prints data when it is JSON, or dumps it raw otherwise.
func printJSON(data []byte) {
	var buf bytes.Buffer

	if err := json.Indent(&buf, data, "  ", "  "); err != nil {
		fmt.Printf("  %s\n", data)

		return
	}

	fmt.Printf("  %s\n", buf.String())
}
