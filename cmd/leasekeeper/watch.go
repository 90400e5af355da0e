package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go-leasekeeper/api"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var refreshInterval time.Duration

func newWatchCmd() *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "watch",
		Short: "Live view of all resources",
		Long: `Watch redraws the resource table whenever the server reports a change,
and at least every --interval so expired leases show up as free.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().DurationVar(&refreshInterval, "interval", 5*time.Second, "Redraw interval")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	var (
		ctx, cancel = context.WithCancel(cmd.Context())
		c           = newClient()
		lastEvent   string
	)
	defer cancel()

	// Change feed; the table still refreshes on the ticker if it is unavailable.
	var events = make(chan api.Event)
	go func() {
		var wsURL = "ws" + strings.TrimPrefix(cfg.ServerURL, "http") + "/resource/watch"
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for {
			var ev api.Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	var ticker = time.NewTicker(refreshInterval)
	defer ticker.Stop()

	var sigCh = make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	var keyCh = make(chan rune)
	go func() {
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			if key == keyboard.KeyCtrlC {
				char = 'q'
			}
			select {
			case keyCh <- char:
			case <-ctx.Done():
				return
			}
		}
	}()

	var redraw = func() {
		callCtx, done := withTimeout(ctx)
		defer done()

		fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top
		fmt.Printf("Resources on %s at %s\n\n", cfg.ServerURL, time.Now().Format(time.TimeOnly))

		resources, err := c.List(callCtx)
		if err != nil {
			fmt.Printf("⚠️  %v\n", err)
		} else {
			printTable(os.Stdout, resources, time.Now())
		}

		if lastEvent != "" {
			fmt.Printf("\nLast change: %s\n", lastEvent)
		}
		fmt.Printf("\nControls:\n")
		fmt.Printf("  [r] Refresh now\n")
		fmt.Printf("  [q] Quit\n")
	}

	redraw()
	for {
		select {
		case <-ticker.C:
			redraw()
		case ev := <-events:
			lastEvent = fmt.Sprintf("%s %s", ev.Resource.Name, ev.Type)
			if ev.Resource.ReservedBy != "" {
				lastEvent += " by " + ev.Resource.ReservedBy
			}
			redraw()
		case key := <-keyCh:
			switch key {
			case 'r', 'R':
				redraw()
			case 'q', 'Q':
				fmt.Printf("\n")
				return nil
			}
		case <-sigCh:
			return nil
		}
	}
}
