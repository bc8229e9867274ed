// uniqcheck: Privacy-preserving uniqueness check over encrypted embeddings
//
// The tool decides whether a query embedding is similar to any item of an
// embedding database while the individual scores, their maximum and the
// threshold comparison all stay under CKKS encryption. Decryption of the
// final result requires a quorum of key-holding parties.
//
// Usage:
//   uniqcheck <command> < input.json > output.json
//
// Commands:
//   check    Run a uniqueness check on a query and database read from stdin
//   demo     Run the synthetic end-to-end scenario (seeded unit-norm vectors)
//   params   Print parameter preset capabilities
//   version  Print version information

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

const VERSION = "0.1.0"

// Input/Output structures for JSON communication

type CheckInput struct {
	Config   Config      `json:"config"`
	Query    []float64   `json:"query"`
	Database [][]float64 `json:"database"`
}

type DemoInput struct {
	Config Config `json:"config"`
}

type ParamsInput struct {
	LogN int `json:"log_n"`
}

// PresetCapacity is the largest database a preset supports for one
// approximation degree and disclosure mode.
type PresetCapacity struct {
	AbsDegree  int    `json:"abs_degree"`
	Disclosure string `json:"disclosure_mode"`
	MaxSize    int    `json:"max_database_size"`
}

type PresetInfo struct {
	LogN       int              `json:"log_n"`
	Slots      int              `json:"slots"`
	Levels     int              `json:"levels"`
	ScaleBits  int              `json:"scale_bits"`
	Secure128  bool             `json:"secure_128"`
	Capacities []PresetCapacity `json:"capacities"`
}

type ParamsOutput struct {
	Presets []PresetInfo `json:"presets"`
}

type ErrorOutput struct {
	Error string `json:"error"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf(`{"version": "%s"}`, VERSION)
	case "check":
		handleCheck()
	case "demo":
		handleDemo()
	case "params":
		handleParams()
	case "help", "-h", "--help":
		printUsage()
	default:
		outputError(fmt.Sprintf("Unknown command: %s", command))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `uniqcheck: Privacy-preserving uniqueness check over encrypted embeddings

Usage:
  uniqcheck <command> < input.json > output.json

Commands:
  check    Run a uniqueness check on a query and database read from stdin
  demo     Run the synthetic end-to-end scenario (seeded unit-norm vectors)
  params   Print parameter preset capabilities
  version  Print version information
  help     Print this help message

check reads {"config": {...}, "query": [...], "database": [[...], ...]} and
writes the JSON run report to stdout. demo accepts optional config overrides
on stdin and additionally renders a human-readable summary to stderr. params
accepts an optional {"log_n": n} filter.`)
}

func readInput() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		outputError(fmt.Sprintf("Failed to encode output: %v", err))
		os.Exit(1)
	}
}

func outputError(msg string) {
	enc := json.NewEncoder(os.Stdout)
	enc.Encode(ErrorOutput{Error: msg})
}

func handleCheck() {
	inputBytes, err := readInput()
	if err != nil {
		outputError(fmt.Sprintf("Failed to read input: %v", err))
		os.Exit(1)
	}

	var input CheckInput
	if err := json.Unmarshal(inputBytes, &input); err != nil {
		outputError(fmt.Sprintf("Failed to parse input: %v", err))
		os.Exit(1)
	}
	if input.Query == nil || input.Database == nil {
		outputError("check requires both query and database")
		os.Exit(1)
	}

	report, err := Run(input.Config, input.Query, input.Database, nil)
	if err != nil {
		outputError(fmt.Sprintf("Uniqueness check failed: %v", err))
		os.Exit(1)
	}

	outputJSON(report)
}

func handleDemo() {
	inputBytes, err := readInput()
	if err != nil {
		outputError(fmt.Sprintf("Failed to read input: %v", err))
		os.Exit(1)
	}

	var input DemoInput
	if len(inputBytes) > 0 {
		if err := json.Unmarshal(inputBytes, &input); err != nil {
			outputError(fmt.Sprintf("Failed to parse input: %v", err))
			os.Exit(1)
		}
	}

	logger := log.New(os.Stderr, "", 0)
	report, err := Run(input.Config, nil, nil, logger)
	if err != nil {
		outputError(fmt.Sprintf("Demo failed: %v", err))
		os.Exit(1)
	}

	renderReport(os.Stderr, report)
	outputJSON(report)
}

func handleParams() {
	inputBytes, err := readInput()
	if err != nil {
		outputError(fmt.Sprintf("Failed to read input: %v", err))
		os.Exit(1)
	}

	var input ParamsInput
	if len(inputBytes) > 0 {
		if err := json.Unmarshal(inputBytes, &input); err != nil {
			outputError(fmt.Sprintf("Failed to parse input: %v", err))
			os.Exit(1)
		}
	}

	logNs := []int{13, 14, 15, 16}
	if input.LogN != 0 {
		logNs = []int{input.LogN}
	}

	var output ParamsOutput
	for _, logN := range logNs {
		params, err := getParams(logN)
		if err != nil {
			outputError(fmt.Sprintf("Parameter lookup failed: %v", err))
			os.Exit(1)
		}
		info := PresetInfo{
			LogN:      logN,
			Slots:     params.MaxSlots(),
			Levels:    params.MaxLevel(),
			ScaleBits: params.LogDefaultScale(),
			Secure128: presetSecure(logN),
		}
		for _, degree := range []int{7, 15, 31} {
			for _, mode := range []string{DisclosureMax, DisclosureSign} {
				info.Capacities = append(info.Capacities, PresetCapacity{
					AbsDegree:  degree,
					Disclosure: mode,
					MaxSize:    maxDatabaseSize(params.MaxLevel(), degree, mode == DisclosureSign),
				})
			}
		}
		output.Presets = append(output.Presets, info)
	}

	outputJSON(output)
}

// maxDatabaseSize inverts the depth requirement: the largest N whose
// tournament still fits the preset's levels.
func maxDatabaseSize(maxLevel, degree int, signDisclosure bool) int {
	budget := maxLevel - 1
	if signDisclosure {
		budget--
	}
	rounds := budget / absApproxDepth(degree)
	if rounds < 0 {
		return 0
	}
	if rounds > 30 {
		rounds = 30
	}
	return 1 << rounds
}
