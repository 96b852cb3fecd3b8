// Command enginectl is the CLI entry point for the recording,
// indexing, and search engine: it can run one-shot rule queries and
// index listings from the shell, or start the long-running HTTP +
// supervisor process.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var rootDir string

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "search":
		runSearch(os.Args[2:])
	case "clips":
		runClips(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: enginectl <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  search   Run a batch rule query and print matching clips")
	fmt.Fprintln(os.Stderr, "  clips    List clip index rows for a camera/time window")
	fmt.Fprintln(os.Stderr, "  stats    Print retention/purge counters")
	fmt.Fprintln(os.Stderr, "  serve    Start the HTTP surface and supervisor loop")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Common flags:")
	fmt.Fprintln(os.Stderr, "  -root    Project root directory (default: cwd)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Run 'enginectl <command> -help' for details.")
}

func addRootFlag(fs *flag.FlagSet) {
	fs.StringVar(&rootDir, "root", "", "project root directory (default: cwd)")
}

func resolveRoot() string {
	if rootDir != "" {
		abs, err := filepath.Abs(rootDir)
		if err != nil {
			log.Fatalf("resolving root: %v", err)
		}
		return abs
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("getting cwd: %v", err)
	}
	return cwd
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
