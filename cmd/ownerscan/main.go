package main

import (
	"fmt"
	"os"
	"strings"
)

const version = "0.1.0-dev"

// Global flags, accepted before or after the command name.
var (
	globalConfigPath    string
	globalProvidersFile string
	globalLogLevel      string
	globalVerbose       bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "extract":
		err = runExtract(args[1:], os.Stdout)
	case "providers":
		err = runProviders(args[1:], os.Stdout)
	case "serve":
		err = runServe(args[1:])
	case "mcp":
		err = runMCP(args[1:])
	case "config":
		err = runConfig(args[1:], os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("ownerscan %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseGlobalFlags strips global flags from args and stores them in the
// globals. Both "--flag value" and "--flag=value" forms are accepted.
func parseGlobalFlags(args []string) []string {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")

		var dst *string
		switch name {
		case "--config":
			dst = &globalConfigPath
		case "--providers-file":
			dst = &globalProvidersFile
		case "--log-level":
			dst = &globalLogLevel
		case "--verbose":
			if !hasValue {
				globalVerbose = true
				continue
			}
		}
		if dst == nil {
			rest = append(rest, arg)
			continue
		}
		if hasValue {
			*dst = value
		} else if i+1 < len(args) {
			i++
			*dst = args[i]
		}
	}
	return rest
}

func printUsage() {
	fmt.Printf(`ownerscan %s — extract property owners from real-estate listings

Usage:
  ownerscan [global flags] <command> [arguments]

Commands:
  extract <file>...   Extract owners (name, phone) from PDF or text listings
  providers           List supported providers (first = default)
  serve               Run the upload/result HTTP API
  mcp                 Run the MCP server on stdio
  config              Show resolved configuration and where each value came from
  version             Print version

Extract Flags:
  --provider <id>     Provider id (default: first provider)
  --format <fmt>      csv, json or xlsx (default: csv)
  --out <path>        Write to a file instead of stdout ("auto" = <stem>_proprietarios.<ext>)
  --remote <url>      Delegate extraction to a remote ownerscan service
  --sample            Use the built-in sample listing instead of a file
  --stats             Print document/owner/failure counts to stderr

Serve Flags:
  --addr <host:port>  Listen address (default: %s)
  --db <path>         Job database (default: ~/.ownerscan/jobs.db)

Global Flags:
  --config <path>          Config file (default: ~/.ownerscan/config.yaml)
  --providers-file <path>  Extra provider catalog (YAML)
  --log-level <level>      debug, info, warn, error
  --verbose                Shorthand for --log-level debug
  -h, --help               Show this help message
  -v, --version            Print version
`, version, defaultListenAddr)
}
