package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"AccountDesk/helpers"
	"AccountDesk/internal/client"
	"AccountDesk/internal/editor"
	l "AccountDesk/internal/logger"
	"AccountDesk/internal/server"
	"AccountDesk/internal/store/memory"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "AccountDesk server address")
	embedded := flag.Bool("embedded", false, "run an in-memory demo server inside the TUI process")
	flag.Parse()

	logDir := filepath.Join("logs")
	tuiLogger := l.New("tui", logDir, l.ERROR)

	c := client.New(*addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *embedded {
		l.New("server", logDir, l.ERROR)
		l.New("editor", logDir, l.ERROR)
		l.New("store", logDir, l.ERROR)
		go startEmbedded(ctx, c.Addr())
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	err := helpers.WaitForServer(waitCtx, c)
	waitCancel()
	if err != nil {
		fmt.Println("Cannot reach server at", c.Addr()+":", err)
		os.Exit(1)
	}

	m := newModel(c.Addr(), c)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		fmt.Println("Error running TUI:", err)
		os.Exit(1)
	}

	// Closing the session rolls back a change left waiting for y/n.
	if fm, ok := final.(model); ok && fm.session != "" {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.CloseSession(closeCtx, fm.session); err != nil {
			tuiLogger.Error("Closing session %s failed: %v", fm.session, err)
		}
		closeCancel()
	}
}

func startEmbedded(ctx context.Context, addr string) {
	listen := ":8080"
	if u, err := url.Parse(addr); err == nil {
		if _, port, err := net.SplitHostPort(u.Host); err == nil {
			listen = ":" + port
		}
	}

	e := memory.New()
	e.Seed()
	registry := editor.NewRegistry(
		editor.NewUpdater(e, editor.DefaultLockTimeout),
		editor.NewReader(e),
		editor.DefaultIdleTimeout,
	)
	go registry.Run(ctx, time.Minute)

	if err := server.New(registry).ListenAndServe(ctx, listen, time.Second); err != nil {
		l.Get("tui").Error("Embedded server stopped: %v", err)
	}
}
