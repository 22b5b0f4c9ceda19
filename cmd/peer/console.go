package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/call"
	"github.com/tandem-rtc/tandem/pkg/media"
)

var errQuit = errors.New("quit")

// The part of the call controller driven from the terminal.
type Controller interface {
	Call(ctx context.Context) error
	HangUp() error
	ToggleMute() (bool, error)
	ToggleVideo() (bool, error)
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	AddTrack(ctx context.Context, kind media.Kind) error
	RemoveTrack(kind media.Kind) error
	Snapshot() call.Snapshot
}

// Reads commands line by line and runs them against the controller.
type console struct {
	controller Controller
	in         io.Reader
	out        io.Writer
}

func newConsole(controller Controller, in io.Reader, out io.Writer) *console {
	return &console{controller: controller, in: in, out: out}
}

// Runs until `quit`, the end of the input or the context is done.
func (c *console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			err := c.execute(ctx, line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				fmt.Fprintln(c.out, "error:", err)
			}
		}
	}
}

func (c *console) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	command, args := fields[0], fields[1:]

	switch command {
	case "call":
		return c.controller.Call(ctx)
	case "hangup":
		return c.controller.HangUp()
	case "mute":
		muted, err := c.controller.ToggleMute()
		if err == nil {
			fmt.Fprintln(c.out, "muted:", muted)
		}
		return err
	case "video":
		enabled, err := c.controller.ToggleVideo()
		if err == nil {
			fmt.Fprintln(c.out, "camera on:", enabled)
		}
		return err
	case "share":
		return c.controller.StartScreenShare(ctx)
	case "unshare":
		return c.controller.StopScreenShare()
	case "add", "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s audio|video", command)
		}
		if command == "add" {
			return c.controller.AddTrack(ctx, media.Kind(args[0]))
		}
		return c.controller.RemoveTrack(media.Kind(args[0]))
	case "status":
		c.printStatus(c.controller.Snapshot())
		return nil
	case "help":
		fmt.Fprintln(c.out, "commands: call, mute, video, share, unshare, add <kind>, remove <kind>, hangup, status, quit")
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *console) printStatus(snapshot call.Snapshot) {
	fmt.Fprintf(c.out, "room %s: %s", snapshot.Room, snapshot.RoomState)
	if snapshot.PeerID != "" {
		fmt.Fprintf(c.out, " with %s (%s)", snapshot.PeerName, snapshot.PeerID)
	}
	fmt.Fprintln(c.out)

	if !snapshot.InCall {
		fmt.Fprintln(c.out, "not in a call")
		return
	}

	fmt.Fprintf(c.out, "call: %s, %s, connection %s\n", snapshot.Role, snapshot.Negotiation, snapshot.Connection)
	fmt.Fprintf(c.out, "local: %v (muted %t, camera %t, sharing %t)\n",
		snapshot.LocalTracks, snapshot.Muted, snapshot.VideoEnabled, snapshot.Sharing)

	for _, track := range snapshot.RemoteTracks {
		fmt.Fprintf(c.out, "remote: %s %s %s, %d packets\n", track.Kind, track.Codec, track.ID, track.Packets)
	}
}

// Calls the other participant once there is one.
func callWhenPaired(ctx context.Context, controller Controller, logger *logrus.Entry) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := controller.Snapshot()
			if snapshot.RoomState != call.RoomPaired || snapshot.InCall {
				continue
			}

			if err := controller.Call(ctx); err != nil && !errors.Is(err, call.ErrAlreadyInCall) {
				logger.WithError(err).Error("failed to call")
			}
			return
		}
	}
}
