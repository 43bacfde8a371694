package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
)

// setCmd writes one document on a running server.
var setCmd = &cobra.Command{
	Use:   "set <collection> <id> key=value...",
	Short: "Write fields to one document",
	Long: `Dispatch one write to a running Mission Control server.

Fields are merged into the existing document unless --replace is given.
Values are parsed as YAML scalars, so numbers and booleans keep their type;
quote them to force a string. Use $serverTimestamp for the server's time.

The write is attempted exactly once. If it is rejected the reason is
printed and the command exits with code 1.

Example:
  missioncontrol set ledger run-42 cost=3.5 model=opus
  missioncontrol set System_Status control RCIA_SCRAPE=true
  missioncontrol set config orange_protocol api=false vps=true --replace`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)

	addRemoteFlags(setCmd)
	setCmd.Flags().Bool("replace", false, "replace the document instead of merging")
	setCmd.Flags().Duration("timeout", 10*time.Second, "write timeout")
}

func runSet(cmd *cobra.Command, args []string) error {
	fields, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}

	logger := newLogger(slog.LevelWarn)
	client, err := remoteClient(cmd, logger)
	if err != nil {
		return err
	}
	replace, _ := cmd.Flags().GetBool("replace")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	d := dispatch.New(client, dispatch.WithLogger(logger), dispatch.WithTimeout(timeout))
	var ack dispatch.Ack
	if replace {
		ack = d.Set(cmd.Context(), args[0], args[1], fields)
	} else {
		ack = d.Dispatch(cmd.Context(), args[0], args[1], fields)
	}
	if ack.Err != nil {
		return ack.Err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s/%s\n", ack.Collection, ack.DocumentID)
	return nil
}

// parseAssignments turns key=value arguments into a field map. Dotted keys
// build nested maps, so a.b=1 merges into field a.
func parseAssignments(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", arg)
		}
		value, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		if err := assign(fields, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", arg, err)
		}
	}
	return fields, nil
}

// parseValue reads a YAML scalar. Empty input is the empty string.
func parseValue(raw string) (any, error) {
	if raw == "" {
		return "", nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, errors.New("only scalar values are supported")
	case nil:
		return nil, nil
	}
	return v, nil
}

func assign(fields map[string]any, path []string, value any) error {
	for i, part := range path {
		if part == "" {
			return errors.New("empty key segment")
		}
		if i == len(path)-1 {
			fields[part] = value
			return nil
		}
		next, ok := fields[part].(map[string]any)
		if !ok {
			if _, exists := fields[part]; exists {
				return fmt.Errorf("%q is already a value", part)
			}
			next = make(map[string]any)
			fields[part] = next
		}
		fields = next
	}
	return nil
}
