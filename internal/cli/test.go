package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kiln/internal/harness"
)

type TestOptions struct {
	*RootOptions
	Update    bool
	Filter    string // glob over scenario base names
	GoldenDir string // "" means <scenario dir>/golden
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the payload of `kiln test --format json`.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario|dir>...",
		Short: "Run harness scenarios",
		Long: `Run scenario files through the test harness.

Each scenario drives the engine on the headless platform with a manual
clock, then checks its assertions and, when a golden file exists,
compares the trace snapshot byte for byte.

Exits 0 when every scenario passes, 1 when any fails and 2 when a path
cannot be read.

  kiln test ./scenarios
  kiln test ./scenarios --filter "resize_*"
  kiln test ./scenarios --update
  kiln test ./scenarios/phase_order.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Update, "update", false, "rewrite golden files from this run")
	flags.StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")
	flags.StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default: <scenario dir>/golden)")
	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	var files []string
	for _, path := range paths {
		found, err := findScenarioFiles(path, opts.Filter)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return NewExitError(ExitCommandError, "scenario path not found: "+path)
		case err != nil:
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, f := range files {
		result.add(runScenario(f, opts, cmd))
	}

	switch {
	case opts.Format == "json":
		return outputTestJSON(cmd, result)
	case result.Total == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	default:
		return outputTestText(cmd, result)
	}
}

// findScenarioFiles lists the .yaml/.yml files under path in walk order. A
// file path is returned unfiltered.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			ok, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("bad --filter %q: %w", filter, err)
			}
			if !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	}
	return files, filepath.WalkDir(path, walk)
}

// runScenario loads, runs and checks one scenario file. Progress lines go
// to stdout in text mode only.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		w = io.Discard
	}

	fail := func(name string, errs ...string) ScenarioResult {
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range errs {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	data, err := harness.MarshalSnapshot(harness.Snapshot(scenario.Name, result))
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to marshal trace: %v", err))
	}
	goldenPath := goldenFilePath(opts.GoldenDir, scenarioFile, scenario.Name)

	if opts.Update {
		if err := writeGoldenFile(goldenPath, data); err != nil {
			return fail(scenario.Name, err.Error())
		}
		fmt.Fprintf(w, "✓ %s (golden updated)\n", scenario.Name)
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// assertions alone decide
	case err != nil:
		return fail(scenario.Name, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, data):
		return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}

	fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// goldenFilePath is <goldenDir>/<name>.golden.
func goldenFilePath(goldenDir, scenarioFile, name string) string {
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	return filepath.Join(goldenDir, name+".golden")
}

// writeGoldenFile writes the current snapshot as the golden file.
func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write golden %s: %w", path, err)
	}
	return nil
}

// outputTestJSON writes the indented response; any failure sets the
// error block and exit code 1.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: failedMessage(result),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	return testExit(result)
}

// outputTestText prints the summary line and, on failure, the names of the
// failed scenarios.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
		return nil
	}

	fmt.Fprintln(w, "Failed:")
	for _, s := range result.Scenarios {
		if !s.Pass {
			fmt.Fprintf(w, "  - %s\n", s.Name)
		}
	}
	return testExit(result)
}

func failedMessage(result TestResult) string {
	return fmt.Sprintf("%d scenario(s) failed", result.Failed)
}

// testExit maps scenario failures to exit code 1.
func testExit(result TestResult) error {
	if result.Failed > 0 {
		return NewExitError(ExitFailure, failedMessage(result))
	}
	return nil
}
