// probe-models streams a short prompt through every model an endpoint lists
// and reports which ones answer, whether they emit reasoning, and how fast.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-answer/pkg/config"
	"github.com/ekaya-inc/ekaya-answer/pkg/generation"
	"github.com/ekaya-inc/ekaya-answer/pkg/llm"
	"github.com/ekaya-inc/ekaya-answer/pkg/logging"
)

const systemMessage = `You are a concise assistant. Answer in one sentence.`

const prompt = `What is the capital of France?`

// ProbeResult is the outcome of streaming the prompt through one model.
type ProbeResult struct {
	Model         string
	Success       bool
	Error         string
	Response      string
	HasReasoning  bool
	FirstDeltaMs  int64
	DurationMs    int64
	Deltas        int
	ResponseChars int
}

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "Path to YAML config file")
	timeout := flag.Duration("timeout", 120*time.Second, "Timeout for each model call")
	only := flag.String("model", "", "Probe only this model instead of every listed one")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath, "probe")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer logger.Sync()

	endpoint := llm.Endpoint{
		BaseURL:            cfg.OpenAI.BaseURL,
		APIKey:             cfg.OpenAI.APIKey,
		EndpointIdentifier: cfg.OpenAI.EndpointIdentifier,
		UserSession:        cfg.OpenAI.UserSession,
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Model Probe")
	fmt.Printf("Endpoint: %s\n", logging.SanitizeURL(endpoint.BaseURL))
	fmt.Println(strings.Repeat("=", 80))

	ctx := context.Background()

	modelIDs := []string{*only}
	if *only == "" {
		lister := llm.NewHTTPModelLister(nil, endpoint, logger)
		listed, err := lister.ListModels(ctx, endpoint.BaseURL, endpoint.APIKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list models: %s\n", logging.SanitizeError(err))
			os.Exit(1)
		}
		modelIDs = modelIDs[:0]
		for _, m := range listed {
			modelIDs = append(modelIDs, m.ID)
		}
	}
	if len(modelIDs) == 0 {
		fmt.Println("No models listed.")
		os.Exit(1)
	}

	streamer, err := llm.NewOpenAIStreamer(endpoint, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create client: %v\n", err)
		os.Exit(1)
	}

	markers := generation.Markers{
		Start: cfg.Generation.ReasoningStartMarker,
		End:   cfg.Generation.ReasoningEndMarker,
	}

	var results []ProbeResult
	for _, id := range modelIDs {
		fmt.Printf("\n%s\n", strings.Repeat("-", 80))
		fmt.Printf("Probing: %s\n", id)
		fmt.Printf("%s\n\n", strings.Repeat("-", 80))

		result := probeModel(ctx, streamer, id, markers, *timeout)
		results = append(results, result)
		printResult(result)
	}

	// Print summary
	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Println("SUMMARY")
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))

	allPassed := true
	for _, result := range results {
		status := "✓ PASS"
		if !result.Success {
			status = "✗ FAIL"
			allPassed = false
		}
		fmt.Printf("%s: %s\n", status, result.Model)
		if result.Error != "" {
			fmt.Printf("  Error: %s\n", result.Error)
		}
	}

	if allPassed {
		fmt.Println("\nAll models passed!")
		os.Exit(0)
	}
	fmt.Println("\nSome models failed.")
	os.Exit(1)
}

func probeModel(ctx context.Context, streamer llm.StreamingProvider, model string, markers generation.Markers, timeout time.Duration) ProbeResult {
	result := ProbeResult{Model: model}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := streamer.Stream(ctx, &llm.StreamRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemMessage},
			{Role: llm.RoleUser, Content: prompt},
		},
		Sampling: llm.SamplingParams{MaxTokens: 512},
	}, func(d llm.Delta) error {
		if result.Deltas == 0 {
			result.FirstDeltaMs = time.Since(start).Milliseconds()
		}
		result.Deltas++
		return nil
	})
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = logging.SanitizeError(err)
		return result
	}

	result.HasReasoning = resp.ReasoningContent != ""
	result.Response = generation.FormatResponse(resp.Text, resp.ReasoningContent, markers)
	result.ResponseChars = len(resp.Text)

	if strings.TrimSpace(resp.Text) == "" {
		result.Error = "empty response"
		return result
	}
	result.Success = true
	return result
}

func printResult(result ProbeResult) {
	fmt.Println("--- Response (first 800 chars) ---")
	fmt.Println(logging.TruncateString(result.Response, 800))
	fmt.Println("--- End Response ---")
	fmt.Printf("Deltas: %d, first after %dms, total %dms\n", result.Deltas, result.FirstDeltaMs, result.DurationMs)
	fmt.Printf("Reasoning: %v, answer chars: %d\n", result.HasReasoning, result.ResponseChars)

	if result.Success {
		fmt.Println("Status: ✓ PASS")
	} else {
		fmt.Println("Status: ✗ FAIL")
		if result.Error != "" {
			fmt.Printf("Error: %s\n", result.Error)
		}
	}
}
