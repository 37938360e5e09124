//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// TestConfig holds configuration for integration tests.
type TestConfig struct {
	URL        string
	Username   string
	Password   string
	Calendar   string
	Period     string
	SapcomPath string
	Verbose    bool
}

// LoadTestConfig loads configuration from environment variables.
func LoadTestConfig() *TestConfig {
	return &TestConfig{
		URL:        os.Getenv("SAPCOM_URL"),
		Username:   os.Getenv("SAPCOM_USERNAME"),
		Password:   os.Getenv("SAPCOM_PASSWORD"),
		Calendar:   os.Getenv("SAPCOM_TEST_CALENDAR"),
		Period:     os.Getenv("SAPCOM_TEST_PERIOD"),
		SapcomPath: getSapcomPath(),
		Verbose:    os.Getenv("SAPCOM_VERBOSE") == "true",
	}
}

// getSapcomPath determines the path to the sapcom binary.
func getSapcomPath() string {
	if path := os.Getenv("SAPCOM_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../sapcom", "./sapcom", "../sapcom"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "sapcom"
}

// SkipIfMissingConfig skips the test when no tenant or binary is available.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.URL == "" || config.Username == "" || config.Password == "" {
		t.Skip("SAPCOM_URL, SAPCOM_USERNAME or SAPCOM_PASSWORD not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.SapcomPath); err != nil {
		t.Skipf("sapcom binary not found at %s, skipping integration test", config.SapcomPath)
	}
}

// CommandRunner runs sapcom commands against the configured tenant.
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner.
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{config: config, t: t}
}

// Run executes a sapcom command and returns its output.
func (runner *CommandRunner) Run(args ...string) (string, string, error) {
	return runner.RunWithInput("", args...)
}

// RunWithInput executes a sapcom command with stdin input.
func (runner *CommandRunner) RunWithInput(input string, args ...string) (string, string, error) {
	// #nosec G204 -- the binary path comes from the test environment.
	cmd := exec.Command(runner.config.SapcomPath, args...)
	cmd.Env = append(os.Environ(),
		"SAPCOM_URL="+runner.config.URL,
		"SAPCOM_USERNAME="+runner.config.Username,
		"SAPCOM_PASSWORD="+runner.config.Password,
	)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.SapcomPath, strings.Join(args, " "))
	}

	err := cmd.Run()
	stdout, stderr := stdoutBuf.String(), stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// GenerateTestName creates a unique test resource name.
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().Unix())
}

// AssertJSONOutput fails the test unless output is valid JSON.
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	var value any
	if err := json.Unmarshal([]byte(output), &value); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, output)
	}
}
