package signalling

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
)

const (
	CommandExit = "exit"
	CommandHelp = "help"
)

type controlSpec struct {
	op    string
	typ   *string
	value *float64
	x, y  *float64
	help  string
}

func ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return ptr(*p)
}

// controlCommands are the operator commands that produce a control message.
// Numeric payloads are fixed demonstration values.
var controlCommands = map[string]controlSpec{
	"equi":       {op: "projection", typ: ptr(api.ProjectionEquirect), help: "switch the camera to equirectangular projection"},
	"rect":       {op: "projection", typ: ptr(api.ProjectionRectilinear), help: "switch the camera to rectilinear projection"},
	"up":         {op: "up", help: "turn the view up"},
	"down":       {op: "down", help: "turn the view down"},
	"left":       {op: "left", help: "turn the view left"},
	"right":      {op: "right", help: "turn the view right"},
	"zoom-in":    {op: "zoom-in", help: "zoom in one step"},
	"zoom-out":   {op: "zoom-out", help: "zoom out one step"},
	"zoom-delta": {op: "zoom-delta", value: ptr(0.1), help: "zoom by value=0.1"},
	"pan-vector": {op: "pan-vector", x: ptr(0.05), y: ptr(0.05), help: "pan by vector x=0.05 y=0.05"},
	"pan-tilt":   {op: "pan-tilt", x: ptr(15.0), y: ptr(-10.0), help: "set pan=15 tilt=-10 degrees"},
}

var commandOrder = []string{
	"equi", "rect", "up", "down", "left", "right",
	"zoom-in", "zoom-out", "zoom-delta", "pan-vector", "pan-tilt",
}

// ControlMessageFor builds the control message for cmd addressed to target.
// It reports false for commands that send nothing.
func ControlMessageFor(cmd, target, source string) (api.ControlMessage, bool) {
	entry, ok := controlCommands[cmd]
	if !ok {
		return api.ControlMessage{}, false
	}
	return api.ControlMessage{
		Target: target,
		Source: source,
		Op:     entry.op,
		Type:   clonePtr(entry.typ),
		Value:  clonePtr(entry.value),
		X:      clonePtr(entry.x),
		Y:      clonePtr(entry.y),
	}, true
}

func IsControlCommand(cmd string) bool {
	_, ok := controlCommands[cmd]
	return ok
}

func Usage() string {
	var b strings.Builder
	b.WriteString("commands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(&b, "  %-11s %s\n", name, controlCommands[name].help)
	}
	fmt.Fprintf(&b, "  %-11s %s\n", CommandHelp, "show this help")
	fmt.Fprintf(&b, "  %-11s %s\n", CommandExit, "hang up and quit")
	return b.String()
}

// Commander accepts operator commands, normally the CallCoordinator.
type Commander interface {
	Submit(cmd string)
}

// RunConsole reads one command per line from r until EOF, exit or ctx is
// done. Help and unknown input print the usage to w and send nothing.
func RunConsole(ctx context.Context, r io.Reader, w io.Writer, c Commander) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			cmd := strings.ToLower(strings.TrimSpace(line))
			switch {
			case cmd == "":
			case cmd == CommandExit:
				c.Submit(cmd)
				return nil
			case IsControlCommand(cmd):
				c.Submit(cmd)
			default:
				if cmd != CommandHelp {
					fmt.Fprintf(w, "unknown command %q\n", cmd)
				}
				fmt.Fprint(w, Usage())
			}
		}
	}
}
