// Command conflictengine is a minimal CLI demo of the engine: load a
// clause set from a JSON file, run conflict detection against a local
// generation endpoint, and print the results. Grounded on cmd/cortex's
// subcommand dispatch (flag.NewFlagSet per command, "Error: %v" to
// stderr, exit(1) on failure) and its top-level printUsage banner.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v2"

	"github.com/contractlens/conflictengine/internal/candidates"
	"github.com/contractlens/conflictengine/internal/clause"
	"github.com/contractlens/conflictengine/internal/conflictengine"
	"github.com/contractlens/conflictengine/internal/embedcluster"
	"github.com/contractlens/conflictengine/internal/llm"
	"github.com/contractlens/conflictengine/internal/persist"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "detect":
		err = runDetect(os.Args[2:])
	case "version":
		fmt.Println(version)
		return
	default:
		printUsage()
		os.Exit(0)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(colorstring.Color(fmt.Sprintf(`[bold]conflictengine %s[reset] — contract conflict detection over a clause set

Usage:
  conflictengine <command> [arguments]

Commands:
  detect <clauses.json>   Run conflict detection and print a report
  version                 Print version

`, version)))
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	model := fs.String("model", "llama3", "model name passed to the generation endpoint")
	baseURL := fs.String("base-url", "http://localhost:11434", "LLM generation endpoint base URL")
	strategy := fs.String("strategy", string(conflictengine.StrategyHybrid), "claim_based | hybrid | accurate")
	dbPath := fs.String("db", "", "SQLite path for persistence/caching (default: in-memory, no caching across runs)")
	timeout := fs.Duration("timeout", 5*time.Minute, "overall run timeout")
	embedModel := fs.String("embed-model", "", "ONNX sentence-embedding model for Tier 3 clustering (default: keyword clustering)")
	embedTokenizer := fs.String("embed-tokenizer", "", "tokenizer.json for -embed-model, required if -embed-model is set")
	configPath := fs.String("config", "", "YAML config file layered under env vars and these flags")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: conflictengine detect [flags] <clauses.json>")
	}

	clauses, err := loadClauses(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("loading clause set: %w", err)
	}

	dbLoc := ":memory:"
	if *dbPath != "" {
		dbLoc = *dbPath
	}
	store, err := persist.NewStore(persist.StoreConfig{DBPath: dbLoc})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	bar := progressbar.New(len(clauses))
	colorstring.Println("[blue]==>[reset] loading clauses")
	for range clauses {
		bar.Add(1)
	}
	fmt.Println()

	provider := llm.New(*baseURL, 10)

	var clusterer candidates.TopicClusterer
	if *embedModel != "" {
		if *embedTokenizer == "" {
			return fmt.Errorf("-embed-tokenizer is required when -embed-model is set")
		}
		ec, err := embedcluster.New(embedcluster.DefaultConfig(*embedModel, *embedTokenizer))
		if err != nil {
			return fmt.Errorf("loading embedding model: %w", err)
		}
		defer ec.Close()
		clusterer = ec
		colorstring.Println("[blue]==>[reset] using embedding-based Tier 3 clustering")
	}

	fmt.Print(colorstring.Color(fmt.Sprintf("[blue]==>[reset] running %s strategy over %d clauses\n", *strategy, len(clauses))))
	result, err := conflictengine.RunConflictDetection(ctx, provider, clauses, conflictengine.Options{
		Model:          *model,
		Strategy:       conflictengine.Strategy(*strategy),
		ConfigPath:     *configPath,
		Store:          store,
		Tier3Clusterer: clusterer,
	})
	if err != nil {
		return fmt.Errorf("running conflict detection: %w", err)
	}

	printReport(result)
	return nil
}

func loadClauses(path string) ([]clause.Clause, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var clauses []clause.Clause
	if err := json.Unmarshal(data, &clauses); err != nil {
		return nil, fmt.Errorf("parsing clause set: %w", err)
	}
	return clauses, nil
}

func printReport(result conflictengine.RunResult) {
	if result.Stats.CacheHit {
		colorstring.Println("[yellow]==>[reset] cache hit — returning a prior run's conflicts")
	}

	if len(result.Conflicts) == 0 {
		colorstring.Println("[green]==>[reset] no conflicts found")
	} else {
		fmt.Print(colorstring.Color(fmt.Sprintf("[red]==>[reset] %d conflict(s) found\n", len(result.Conflicts))))
		for _, c := range result.Conflicts {
			fmt.Printf("  [%s/%s] %s <-> %s: %s\n", c.Classification, c.Severity, c.LeftClauseID, c.RightClauseID, c.Summary)
		}
	}

	fmt.Println()
	colorstring.Println("[bold]run summary[reset]")
	fmt.Printf("  run id:    %s\n", result.RunID)
	fmt.Printf("  %s\n", result.Stats)
}
