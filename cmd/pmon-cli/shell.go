package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/netplatform/pmon-go/cmd/pmon-cli/commands"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("show",
		readline.PcItem("health"),
		readline.PcItem("chassis"),
		readline.PcItem("inventory"),
		readline.PcItem("fans"),
		readline.PcItem("fan_drawers"),
		readline.PcItem("psus"),
		readline.PcItem("thermals"),
		readline.PcItem("transceivers"),
		readline.PcItem("leds"),
		readline.PcItem("firmware"),
		readline.PcItem("watchdog"),
		readline.PcItem("component"),
		readline.PcItem("syseeprom"),
		readline.PcItem("reboot-cause", readline.PcItem("history")),
	),
	readline.PcItem("invoke"),
	readline.PcItem("lpmode"),
	readline.PcItem("reset"),
	readline.PcItem("watch"),
	readline.PcItem("json"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

// runShell reads commands until EOF or quit. Ctrl-C interrupts a running
// watch and otherwise clears the line.
func runShell(ctx context.Context, cli *commands.CLI, addr string) error {
	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pmon> ",
		HistoryFile:     filepath.Join(home, ".pmon_history"),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	cli.Out = rl.Stdout()
	fmt.Fprintf(cli.Out, "Connected to %s. Type 'help' for commands.\n", addr)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		switch strings.ToLower(words[0]) {
		case "quit", "exit", "q":
			return nil
		case "json":
			cli.JSON = !cli.JSON
			fmt.Fprintf(cli.Out, "JSON output %s\n", onOff(cli.JSON))
			continue
		}

		cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = cli.Exec(cmdCtx, words)
		stop()
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
