// Command pmon-log is a tool for viewing and analyzing platform event logs.
//
// Event logs are written by pmond with the -event-log flag, one CBOR record
// per event.
//
// Usage:
//
//	pmon-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	pmon-log view /var/log/pmon/events.plog
//
//	# View only threshold crossings of thermals
//	pmon-log view --kind threshold --type thermal events.plog
//
//	# View warnings and worse
//	pmon-log view --min-severity warning events.plog
//
//	# Export to CSV
//	pmon-log export --format csv -o events.csv events.plog
//
//	# Keep the events of one transceiver
//	pmon-log filter --type transceiver --component Ethernet8 -o eth8.plog events.plog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/netplatform/pmon-go/cmd/pmon-log/commands"
	"github.com/netplatform/pmon-go/pkg/log"
)

const usage = `pmon-log - Platform Event Log Analyzer

Usage:
  pmon-log <command> [flags] <file.plog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "pmon-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func filterFlags(fs *flag.FlagSet) *commands.FilterFlags {
	f := &commands.FilterFlags{}
	fs.StringVar(&f.Type, "type", "", "Filter by component type (fan, psu, thermal, transceiver, ...)")
	fs.StringVar(&f.Component, "component", "", "Filter by component name")
	fs.StringVar(&f.Kind, "kind", "", "Filter by event kind (presence, status, threshold, reboot_cause, firmware, error, attribute)")
	fs.StringVar(&f.MinSeverity, "min-severity", "", "Filter events below severity (info, warning, critical)")
	fs.StringVar(&f.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&f.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return f
}

// parse parses args, requires the log file argument and builds the filter.
func parse(fs *flag.FlagSet, f *commands.FilterFlags, args []string) (string, log.Filter) {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	var filter log.Filter
	if f != nil {
		var err error
		if filter, err = f.Build(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	return fs.Arg(0), filter
}

func usageFunc(fs *flag.FlagSet, text string) func() {
	return func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = usageFunc(fs, `pmon-log view - View log file in human-readable format

Usage:
  pmon-log view [flags] <file.plog>

Flags:
`)
	f := filterFlags(fs)
	path, filter := parse(fs, f, args)

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = usageFunc(fs, `pmon-log export - Export log file to JSONL or CSV format

Usage:
  pmon-log export [flags] <file.plog>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	f := filterFlags(fs)
	path, filter := parse(fs, f, args)

	if err := commands.RunExport(path, *format, *output, filter); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = usageFunc(fs, `pmon-log filter - Filter log file and write to new file

Usage:
  pmon-log filter [flags] <file.plog>

Flags:
`)
	output := fs.String("o", "", "Output file (required)")
	f := filterFlags(fs)
	path, filter := parse(fs, f, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Filtered %d events to %s\n", count, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `pmon-log stats - Show statistics about the log file

Usage:
  pmon-log stats <file.plog>

`)
	}
	path, _ := parse(fs, nil, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
