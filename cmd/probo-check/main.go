package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/probo/internal/models"
	"github.com/ternarybob/probo/internal/services/verifier"
)

// probo-check runs one verification attempt against a URL and prints the
// result as JSON. No queue, no storage, no retries. Exit code 0 means the
// link verified ok, 1 means it did not, 2 means the invocation was wrong.
func main() {
	urlFlag := flag.String("url", "", "Image URL to verify")
	timeoutFlag := flag.Duration("timeout", 5*time.Second, "Per-attempt request timeout")
	userAgentFlag := flag.String("user-agent", "", "User-Agent header (default: engine default)")
	verboseFlag := flag.Bool("verbose", false, "Log engine activity")
	flag.Parse()

	target := *urlFlag
	if target == "" && flag.NArg() > 0 {
		target = flag.Arg(0)
	}
	if target == "" {
		fmt.Println("Error: provide a URL via -url or as the first argument")
		flag.Usage()
		os.Exit(2)
	}

	// Keep the JSON result the only output unless verbose logging is
	// requested
	level := "fatal"
	if *verboseFlag {
		level = "debug"
	}
	logger := arbor.NewLogger().WithConsoleWriter(arbormodels.WriterConfiguration{
		Type:       arbormodels.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		OutputType: arbormodels.OutputFormatLogfmt,
	}).WithLevelFromString(level)

	config := verifier.DefaultConfig()
	config.RequestTimeout = *timeoutFlag
	if *userAgentFlag != "" {
		config.UserAgent = *userAgentFlag
	}

	engine := verifier.NewService(config, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag+5*time.Second)
	defer cancel()

	result := engine.Verify(ctx, uuid.New().String(), target)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding result: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(out))

	if result.LinkStatus != models.LinkStatusOK {
		os.Exit(1)
	}
}
