// Command qmi-log views and analyzes QMI protocol capture files.
//
// Capture files are written by qmicli with the -protocol-log flag or the
// protocolLog configuration key.
//
// Usage:
//
//	qmi-log <command> [flags] <file.qlog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View only WDS traffic
//	qmi-log view --service wds modem.qlog
//
//	# Keep one port's failed Start Network responses
//	qmi-log filter --port-id abc12345-... --service wds --message-id 0x0020 -o start.qlog modem.qlog
//
//	# Show statistics
//	qmi-log stats modem.qlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/qmi-protocol/qmi-go/cmd/qmi-log/commands"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

const usage = `qmi-log - QMI Protocol Capture Analyzer

Usage:
  qmi-log <command> [flags] <file.qlog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "qmi-log <command> -help" for more information about a command.
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

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// pathArg parses args and returns the single capture file argument.
func pathArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func usageFor(fs *flag.FlagSet, text string) func() {
	return func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = usageFor(fs, `qmi-log view - View capture file in human-readable format

Usage:
  qmi-log view [flags] <file.qlog>

Flags:
`)
	layer := fs.String("layer", "", "Filter by layer (transport, wire, device)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	service := fs.String("service", "", "Filter messages by service (e.g. wds, 0x03)")
	path := pathArg(fs, args)

	var filter commands.ViewFilter
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}
	if *service != "" {
		s, err := wire.ParseService(*service)
		if err != nil {
			fail(err)
		}
		filter.Service = &s
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = usageFor(fs, `qmi-log export - Export capture file to JSONL or CSV format

Usage:
  qmi-log export [flags] <file.qlog>

Flags:
`)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := pathArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = usageFor(fs, `qmi-log filter - Filter capture file and write to new file

Usage:
  qmi-log filter [flags] <file.qlog>

Flags:
`)
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.PortID, "port-id", "", "Filter by port ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, device)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.Service, "service", "", "Filter messages by service")
	fs.StringVar(&opts.ClientID, "client-id", "", "Filter messages by client ID")
	fs.StringVar(&opts.MessageID, "message-id", "", "Filter messages by message ID (e.g. 0x0020)")
	path := pathArg(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = usageFor(fs, `qmi-log stats - Show statistics about the capture file

Usage:
  qmi-log stats <file.qlog>

`)
	path := pathArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
