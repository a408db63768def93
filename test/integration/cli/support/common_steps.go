package support

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/testutil"
	"github.com/cucumber/godog"
)

// shipConfig is a configuration under which the fixture scene yields one
// candidate. It is written next to the scene and found in the working
// directory.
const shipConfig = `log_level: warn
catalog:
  manifest: %s
  occurrence: %s
detection:
  threshold_db: 0
  min_pixels: 5
  morph_radius_px: 0
  min_length_m: 10
  coast_erode_px: 0
`

// aSceneCatalogWithOneShip writes the fixture scene and a matching
// shipscan.yaml into the scenario directory.
func (testCtx *TestContext) aSceneCatalogWithOneShip() error {
	fx, err := testutil.WriteShipSceneDir(testCtx.TempDir)
	if err != nil {
		return fmt.Errorf("failed to write scene fixture: %w", err)
	}
	testCtx.Scene = &fx
	cfg := fmt.Sprintf(shipConfig, fx.ManifestPath, fx.OccurrencePath)
	return os.WriteFile(testCtx.TempPath("shipscan.yaml"), []byte(cfg), 0o600)
}

// substituteCommandVariables expands the placeholders usable in steps.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	replacements := []string{"${TMP}", testCtx.TempDir}
	if testCtx.Scene != nil {
		replacements = append(replacements,
			"${SCENES}", testCtx.Scene.ManifestPath,
			"${OCCURRENCE}", testCtx.Scene.OccurrencePath,
			"${INTENSITY}", testCtx.TempPath("s1_vv.asc"),
		)
	}
	return strings.NewReplacer(replacements...).Replace(command)
}

// iRunCommand executes a command in the scenario directory.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.lastBody = testCtx.LastOutput

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		testCtx.LastExitCode = 0
	case errors.As(err, &exitErr):
		testCtx.LastExitCode = exitErr.ExitCode()
	default:
		return fmt.Errorf("failed to run %q: %w", command, err)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d\nstdout: %s\nstderr: %s",
			testCtx.LastExitCode, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code %d, want %d\nstderr: %s", testCtx.LastExitCode, code, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeEmpty() error {
	if strings.TrimSpace(testCtx.LastOutput) != "" {
		return fmt.Errorf("expected no output, got: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastStderr, expected) {
		return fmt.Errorf("error output does not contain '%s'\nActual: %s", expected, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeCSVWithHeader(header string) error {
	rows, err := csv.NewReader(strings.NewReader(testCtx.LastOutput)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(rows) == 0 {
		return errors.New("CSV output is empty")
	}
	if got := strings.Join(rows[0], ","); got != header {
		return fmt.Errorf("CSV header %q, want %q", got, header)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	path := testCtx.substituteCommandVariables(name)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	return nil
}

func (testCtx *TestContext) theBodyShouldBeValidJSON() error {
	var v any
	if err := json.Unmarshal([]byte(testCtx.lastBody), &v); err != nil {
		return fmt.Errorf("not valid JSON: %w\nBody: %s", err, testCtx.lastBody)
	}
	return nil
}

// jsonValue resolves a dotted path such as "candidates.0.length_m" in the
// last body. "." names the document itself.
func (testCtx *TestContext) jsonValue(path string) (any, error) {
	var current any
	if err := json.Unmarshal([]byte(testCtx.lastBody), &current); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	if path == "." {
		return current, nil
	}
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", part, path)
			}
			current = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %s", part, path)
			}
			current = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q of %s", part, path)
		}
	}
	return current, nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	v, err := testCtx.jsonValue(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("%s is %q, want %q", path, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theJSONNumberShouldBeAbout(path string, expected float64) error {
	v, err := testCtx.jsonValue(path)
	if err != nil {
		return err
	}
	f, ok := v.(float64)
	if !ok {
		return fmt.Errorf("%s is %T, not a number", path, v)
	}
	if math.Abs(f-expected) > 0.01 {
		return fmt.Errorf("%s is %v, want about %v", path, f, expected)
	}
	return nil
}

func (testCtx *TestContext) theJSONArrayShouldHaveItems(path string, n int) error {
	v, err := testCtx.jsonValue(path)
	if err != nil {
		return err
	}
	arr, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%s is %T, not an array", path, v)
	}
	if len(arr) != n {
		return fmt.Errorf("%s has %d items, want %d", path, len(arr), n)
	}
	return nil
}

// RegisterCommonSteps registers the command and JSON steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a scene catalog with one ship$`, testCtx.aSceneCatalogWithOneShip)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, func(name, value string) error {
		testCtx.AddEnvVar(name, value)
		return nil
	})
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be empty$`, testCtx.theOutputShouldBeEmpty)
	sc.Step(`^the error output should contain "([^"]*)"$`, testCtx.theErrorOutputShouldContain)
	sc.Step(`^the output should be CSV with header "([^"]*)"$`, testCtx.theOutputShouldBeCSVWithHeader)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the (?:output|response) should be valid JSON$`, testCtx.theBodyShouldBeValidJSON)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON number "([^"]*)" should be about (-?[0-9.]+)$`, testCtx.theJSONNumberShouldBeAbout)
	sc.Step(`^the JSON array "([^"]*)" should have (\d+) items?$`, testCtx.theJSONArrayShouldHaveItems)
}
