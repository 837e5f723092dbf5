package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/anonchat/anonchat/pkg/anonchat"
)

func printMenu(w io.Writer, node *anonchat.Node, uiURL string) {
	fmt.Fprintln(w, "\n=== AnonChat ===")
	fmt.Fprintf(w, "User: %s\n", node.Identity().DisplayName())
	fmt.Fprintf(w, "Interface: %s\n", node.CurrentIP())
	fmt.Fprintf(w, "UI: %s\n", uiURL)
	fmt.Fprintln(w, "Commands: /menu /help /logs /peers /send /sendall /quit")
	fmt.Fprintln(w)
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, "\nCommands:\n"+
		"  /peers                 List discovered peers\n"+
		"  /send <id> <message>   Send message to a specific peer\n"+
		"  /sendall <message>     Send message to all peers\n"+
		"  /logs                  Show recent logs\n"+
		"  /menu                  Show the main menu\n"+
		"  /help                  Show this help\n"+
		"  /quit                  Exit\n\n")
}

// handleCommand runs one CLI line. Returns false when the app should
// exit.
func handleCommand(w io.Writer, node *anonchat.Node, uiURL, line string) bool {
	switch {
	case line == "/quit" || line == "/exit":
		return false

	case line == "/menu":
		printMenu(w, node, uiURL)

	case line == "/help":
		printHelp(w)

	case line == "/logs":
		logs := node.Logs()
		if len(logs) == 0 {
			fmt.Fprintln(w, "No logs yet.")
			return true
		}
		fmt.Fprintln(w, "\nRecent logs:")
		for _, entry := range logs {
			fmt.Fprintf(w, "  %s\n", entry)
		}
		fmt.Fprintln(w)

	case line == "/peers":
		peers := node.Peers()
		if len(peers) == 0 {
			fmt.Fprintln(w, "No peers discovered.")
			return true
		}
		fmt.Fprintln(w, "\nPeers:")
		for _, p := range peers {
			fmt.Fprintf(w, "  %-15s %s\n", p.ID, p.IP)
		}
		fmt.Fprintln(w)

	case strings.HasPrefix(line, "/sendall "):
		sent, err := node.Send("all", line[len("/sendall "):])
		if err != nil {
			fmt.Fprintf(w, "Send failed: %v\n", err)
			return true
		}
		fmt.Fprintf(w, "Sent to %d peer(s).\n", sent)

	case strings.HasPrefix(line, "/send "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			fmt.Fprintln(w, "Usage: /send <peer_id> <message>")
			return true
		}
		if _, err := node.Send(parts[1], parts[2]); err != nil {
			fmt.Fprintf(w, "Unknown peer: %s\n", parts[1])
			return true
		}
		fmt.Fprintf(w, "Sent to %s.\n", parts[1])

	default:
		fmt.Fprintln(w, "Unknown command. Type /help.")
	}
	return true
}
