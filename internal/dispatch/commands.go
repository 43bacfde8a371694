package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Collections and documents written by the dashboard commands.
const (
	StatusCollection     = "System_Status"
	ControlDocument      = "control"
	DirectivesCollection = "directives"
	ConfigCollection     = "config"
	ProtocolDocument     = "orange_protocol"
)

const (
	directiveType    = "FOCUS_PUSH"
	directiveSource  = "console_manual"
	directiveDefault = "Manual Directive: Focus initialized."
	directiveSlot    = "19:30"
	consolePrefix    = "push focus"
)

var (
	// ErrEmptyCommand is returned by [ParseConsole] for blank input.
	ErrEmptyCommand = errors.New("dispatch: empty console command")

	// ErrUnknownSwitch is the reason for toggling a switch that does not exist.
	ErrUnknownSwitch = errors.New("dispatch: unknown protocol switch")
)

// ForceScrape asks the scraper for an immediate run.
func (d *Dispatcher) ForceScrape(ctx context.Context) Ack {
	return d.Dispatch(ctx, StatusCollection, ControlDocument, map[string]any{"RCIA_SCRAPE": true})
}

// PushDirective records a focus directive. Blank content uses a stock
// message.
func (d *Dispatcher) PushDirective(ctx context.Context, content string, now time.Time) Ack {
	content = strings.TrimSpace(content)
	if content == "" {
		content = directiveDefault
	}
	return d.Create(ctx, DirectivesCollection, map[string]any{
		"type":      directiveType,
		"content":   content,
		"timestamp": now.UTC().Format(time.RFC3339),
		"path":      directiveSlot + "/" + now.UTC().Format("2006-01-02"),
		"source":    directiveSource,
	})
}

// ConsoleCommand is a parsed console line.
type ConsoleCommand struct {
	// Directive is true for "push focus ..." lines.
	Directive bool
	Content   string
}

// ParseConsole parses a console line. "push focus <text>" (any case) is a
// directive; anything else is returned with Directive false.
func ParseConsole(input string) (ConsoleCommand, error) {
	line := strings.TrimSpace(input)
	if line == "" {
		return ConsoleCommand{}, ErrEmptyCommand
	}
	if len(line) >= len(consolePrefix) && strings.EqualFold(line[:len(consolePrefix)], consolePrefix) {
		return ConsoleCommand{Directive: true, Content: strings.TrimSpace(line[len(consolePrefix):])}, nil
	}
	return ConsoleCommand{Content: line}, nil
}

// RunConsole parses and executes a console line. Lines that are not
// commands are logged and produce no write; ok is false for them.
func (d *Dispatcher) RunConsole(ctx context.Context, input string, now time.Time) (ack Ack, ok bool, err error) {
	cmd, err := ParseConsole(input)
	if err != nil {
		return Ack{}, false, err
	}
	if !cmd.Directive {
		d.logger.Info("console input ignored", "input", cmd.Content)
		return Ack{}, false, nil
	}
	return d.PushDirective(ctx, cmd.Content, now), true, nil
}

// Protocol switch names.
const (
	ProtocolAPI      = "api"
	ProtocolFirebase = "firebase"
	ProtocolVPS      = "vps"
)

// ProtocolKeys lists the protocol switches in display order.
var ProtocolKeys = []string{ProtocolAPI, ProtocolFirebase, ProtocolVPS}

// Protocol is the state of the protocol switches.
type Protocol map[string]bool

// DefaultProtocol has every switch on.
func DefaultProtocol() Protocol {
	p := make(Protocol, len(ProtocolKeys))
	for _, k := range ProtocolKeys {
		p[k] = true
	}
	return p
}

// ProtocolFrom reads switch states from a config document's fields.
// Missing or non-boolean switches are on.
func ProtocolFrom(fields map[string]any) Protocol {
	p := DefaultProtocol()
	for _, k := range ProtocolKeys {
		if b, ok := fields[k].(bool); ok {
			p[k] = b
		}
	}
	return p
}

// IsProtocolKey reports whether key names a protocol switch.
func IsProtocolKey(key string) bool {
	return slices.Contains(ProtocolKeys, key)
}

// SetProtocol writes the switch states.
func (d *Dispatcher) SetProtocol(ctx context.Context, p Protocol) Ack {
	patch := make(map[string]any, len(p))
	for k, v := range p {
		patch[k] = v
	}
	return d.Dispatch(ctx, ConfigCollection, ProtocolDocument, patch)
}

// ToggleProtocol flips one switch relative to current and writes only that
// switch.
func (d *Dispatcher) ToggleProtocol(ctx context.Context, current Protocol, key string) Ack {
	if !IsProtocolKey(key) {
		return d.fail(Ack{Collection: ConfigCollection, DocumentID: ProtocolDocument},
			fmt.Errorf("%w %q", ErrUnknownSwitch, key))
	}
	on, ok := current[key]
	if !ok {
		on = true
	}
	return d.Dispatch(ctx, ConfigCollection, ProtocolDocument, map[string]any{key: !on})
}
