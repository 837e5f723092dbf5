// anonchat is a LAN-local serverless anonymous chat node.
//
// Peers on the same broadcast domain discover each other over UDP,
// exchange ephemeral X25519 keys and chat over pairwise encrypted
// channels, with optional password-gated rooms. A JSON HTTP API
// exposes the node state for external front-ends.
//
// Usage:
//
//	anonchat [options]
//
// Options:
//
//	-nickname   Display name (default: anonymous)
//	-ip         Local IPv4 to bind (default: auto-selected)
//	-port       UDP chat port (default: 54545)
//	-broadcast  Presence broadcast address (default: 255.255.255.255)
//	-ui-host    HTTP API host (default: 127.0.0.1)
//	-ui-port    HTTP API port (default: 5000)
//	-db         SQLite message log path (default: in-memory)
//	-debug      Enable debug logging
//
// Environment variables (ANONCHAT_NICKNAME, ANONCHAT_INTERFACE_IP,
// ANONCHAT_PORT, ANONCHAT_BROADCAST_IP, ANONCHAT_UI_HOST,
// ANONCHAT_UI_PORT, ANONCHAT_DB, ANONCHAT_DEBUG) provide defaults;
// flags override them.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/anonchat/anonchat/pkg/anonchat"
	"github.com/anonchat/anonchat/pkg/config"
	"github.com/anonchat/anonchat/pkg/ui"
	"github.com/pion/logging"
)

func main() {
	settings := config.FromEnv()

	nickname := flag.String("nickname", settings.Nickname, "display name")
	interfaceIP := flag.String("ip", settings.InterfaceIP, "local IPv4 to bind")
	port := flag.Int("port", settings.Port, "UDP chat port")
	broadcast := flag.String("broadcast", settings.BroadcastIP, "presence broadcast address")
	uiHost := flag.String("ui-host", settings.UIHost, "HTTP API host")
	uiPort := flag.Int("ui-port", settings.UIPort, "HTTP API port")
	dbPath := flag.String("db", settings.DBPath, "SQLite message log path")
	debug := flag.Bool("debug", settings.Debug, "enable debug logging")
	flag.Parse()

	settings.Nickname = *nickname
	settings.InterfaceIP = *interfaceIP
	settings.Port = *port
	settings.BroadcastIP = *broadcast
	settings.UIHost = *uiHost
	settings.UIPort = *uiPort
	settings.DBPath = *dbPath
	settings.Debug = *debug

	loggerFactory := logging.NewDefaultLoggerFactory()
	if settings.Debug {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		loggerFactory.DefaultLogLevel = logging.LogLevelWarn
	}

	node, err := anonchat.New(anonchat.Config{
		Settings: settings,
		OnDisplay: func(senderID, text string) {
			fmt.Printf("[%s] %s\n", senderID, text)
		},
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "anonchat: %v\n", err)
		os.Exit(1)
	}

	if err := node.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "anonchat: %v\n", err)
		os.Exit(1)
	}

	uiServer := ui.New(ui.Config{
		Node:          node,
		Host:          settings.UIHost,
		Port:          settings.UIPort,
		LoggerFactory: loggerFactory,
	})
	if err := uiServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "anonchat: ui: %v\n", err)
		node.Stop()
		os.Exit(1)
	}

	fmt.Printf("AnonChat started as: %s\n", node.Identity().DisplayName())
	fmt.Println("Security: encrypted (ephemeral session keys)")
	fmt.Println("Type /help to see available commands.")
	printMenu(os.Stdout, node, uiURL(settings, node))

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !handleCommand(os.Stdout, node, uiURL(settings, node), line) {
			break
		}
		fmt.Print("> ")
	}

	fmt.Println("\nExiting...")
	uiServer.Stop()
	node.Stop()
}

// uiURL labels the wildcard host with the currently bound interface.
func uiURL(settings config.Settings, node *anonchat.Node) string {
	host := settings.UIHost
	if host == "0.0.0.0" {
		host = node.CurrentIP()
	}
	return fmt.Sprintf("http://%s:%d", host, settings.UIPort)
}
