// Command kinship-query prints the relationship between two people.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/session"
	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// Exit codes.
const (
	exitOK         = 0
	exitNoRelation = 1
	exitUsage      = 2
	exitFailure    = 3
)

var (
	labelColor = color.New(color.FgGreen, color.Bold)
	nameColor  = color.New(color.FgCyan)
	edgeColor  = color.New(color.FgYellow)
	warnColor  = color.New(color.FgRed)
	dimColor   = color.New(color.Faint)
)

type options struct {
	configPath string
	from, to   string
	maxDepth   int
	trace      bool
	neighbors  bool
	timeout    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config file (default: $KINSHIP_CONFIG_FILE)")
	flag.StringVar(&opts.from, "from", "", "Source person id")
	flag.StringVar(&opts.to, "to", "", "Target person id")
	flag.IntVar(&opts.maxDepth, "max-depth", 0, "Maximum degrees of separation (default: configured max depth)")
	flag.BoolVar(&opts.trace, "trace", false, "Print the search trace")
	flag.BoolVar(&opts.neighbors, "neighbors", false, "List the immediate relatives of -from and exit")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Query timeout")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}
	log.SetOutput(io.Discard)

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinship-query: %v\n", err)
		os.Exit(exitUsage)
	}
	s, err := session.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinship-query: %v\n", err)
		os.Exit(exitFailure)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	code := run(ctx, s.Service, opts, os.Stdout, os.Stderr)
	cancel()
	_ = s.Close()
	os.Exit(code)
}

// run executes one query and returns the process exit code.
func run(ctx context.Context, svc *engine.Service, opts options, stdout, stderr io.Writer) int {
	if opts.from == "" || (opts.to == "" && !opts.neighbors) {
		fmt.Fprintln(stderr, "usage: kinship-query -from ID -to ID [-max-depth N] [-trace]")
		fmt.Fprintln(stderr, "       kinship-query -from ID -neighbors")
		return exitUsage
	}
	if opts.maxDepth < 0 {
		fmt.Fprintln(stderr, "kinship-query: -max-depth must not be negative")
		return exitUsage
	}

	if opts.neighbors {
		return printNeighbors(ctx, svc, types.PersonID(opts.from), stdout, stderr)
	}

	rel, err := svc.Relationship(ctx, types.PersonID(opts.from), types.PersonID(opts.to), opts.maxDepth, opts.trace)
	if err != nil {
		return reportError(stderr, err)
	}

	if opts.trace {
		for _, e := range rel.Trace {
			dimColor.Fprintln(stdout, formatTrace(e))
		}
	}

	if !rel.Found {
		warnColor.Fprintf(stdout, "No known relationship within %d degrees.\n", rel.MaxDepth)
		return exitNoRelation
	}

	fmt.Fprintf(stdout, "%s is %s %s.\n",
		nameColor.Sprint(displayName(rel.Target)),
		possessive(displayName(rel.Source)),
		labelColor.Sprint(rel.Descriptor.Label))
	if len(rel.Path.Hops) > 0 {
		fmt.Fprintln(stdout, formatPath(ctx, svc, rel))
	}
	dimColor.Fprintf(stdout, "%d degrees, %d people expanded in %s\n",
		len(rel.Path.Hops), rel.Stats.NodesExpanded, rel.Stats.Elapsed.Round(time.Microsecond))
	return exitOK
}

func printNeighbors(ctx context.Context, svc *engine.Service, id types.PersonID, stdout, stderr io.Writer) int {
	p, err := svc.Person(ctx, id)
	if err != nil {
		return reportError(stderr, err)
	}
	edges, err := svc.ResolveNeighbors(ctx, id)
	if err != nil {
		return reportError(stderr, err)
	}

	nameColor.Fprintln(stdout, displayName(p))
	for _, e := range edges {
		name := string(e.To)
		if n, err := svc.Person(ctx, e.To); err == nil {
			name = displayName(n)
		}
		fmt.Fprintf(stdout, "  %s %s\n", edgeColor.Sprintf("%-6s", e.Kind), name)
	}
	return exitOK
}

func formatPath(ctx context.Context, svc *engine.Service, rel *engine.Relationship) string {
	var b strings.Builder
	b.WriteString(nameColor.Sprint(displayName(rel.Source)))
	for _, h := range rel.Path.Hops {
		name := string(h.To)
		if p, err := svc.Person(ctx, h.To); err == nil {
			name = displayName(p)
		}
		fmt.Fprintf(&b, " %s %s", edgeColor.Sprintf("-%s->", h.Kind), nameColor.Sprint(name))
	}
	return b.String()
}

func formatTrace(e engine.TraceEvent) string {
	switch e.Kind {
	case engine.KindQueryStarted:
		return fmt.Sprintf("trace: search %s -> %s (max %d)", e.Source, e.Target, e.MaxDepth)
	case engine.KindLevelExpanded:
		return fmt.Sprintf("trace: depth %d, %d in frontier", e.Depth, e.Count)
	case engine.KindChunkLoaded:
		return fmt.Sprintf("trace: loaded lineage %s", e.LineageID)
	case engine.KindNeighborsSkipped:
		return fmt.Sprintf("trace: skipped %s: %s", e.PersonID, e.Reason)
	default:
		return fmt.Sprintf("trace: %s", e.Kind)
	}
}

func reportError(stderr io.Writer, err error) int {
	switch {
	case errors.Is(err, storage.ErrUnknownPerson):
		warnColor.Fprintf(stderr, "kinship-query: %v\n", err)
		return exitUsage
	case errors.Is(err, storage.ErrInvalidInput):
		warnColor.Fprintf(stderr, "kinship-query: %v\n", err)
		return exitUsage
	default:
		warnColor.Fprintf(stderr, "kinship-query: relationship data unavailable: %v\n", err)
		return exitFailure
	}
}

func displayName(p *types.Person) string {
	if p == nil {
		return "?"
	}
	if p.Name == "" {
		return string(p.ID)
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

func possessive(name string) string {
	if strings.HasSuffix(name, "s") {
		return name + "'"
	}
	return name + "'s"
}
