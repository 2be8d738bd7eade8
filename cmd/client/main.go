package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/andy6609/tcp-chat/internal/chat"
)

func main() {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 8080, "server port")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	client := chat.NewChatClient(*host, *port, logger)
	client.SetMessageHandler(func(line string) {
		fmt.Println(line)
	})

	if err := client.Connect(); err != nil {
		logger.Error("failed to connect", "host", *host, "port", *port, "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	fmt.Printf("Connected to %s:%d. Type /quit to exit.\n", *host, *port)

	// The server opens with a username prompt; the first line typed answers it.
	stdin := bufio.NewScanner(os.Stdin)
	if !stdin.Scan() {
		return
	}
	if err := client.RegisterUsername(strings.TrimSpace(stdin.Text())); err != nil {
		logger.Error("failed to register username", "error", err)
		os.Exit(1)
	}

	for client.IsConnected() && stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if !client.SendMessage(line) {
			fmt.Fprintln(os.Stderr, "Failed to send message. Connection may be lost.")
			break
		}
		if strings.EqualFold(line, "/quit") {
			break
		}
	}

	fmt.Println("Goodbye!")
}
