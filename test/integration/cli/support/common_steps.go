package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/stereorect/cmd/stereorect/cmd"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/geometry"
	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/cucumber/godog"
)

// commandTimeout bounds a single CLI invocation.
const commandTimeout = 30 * time.Second

// iRunCommand executes a stereorect command line in-process.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteVariables(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "stereorect" {
		return fmt.Errorf("unknown program %q", parts[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(parts[1:])

	testCtx.LastStartTime = time.Now()
	err := root.ExecuteContext(ctx)
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0
	if err != nil {
		testCtx.LastExitCode = 1
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s\nStderr: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theLogShouldContain checks the structured log written to stderr.
func (testCtx *TestContext) theLogShouldContain(text string) error {
	if !strings.Contains(testCtx.LastStderr, text) {
		return fmt.Errorf("log does not contain '%s'\nActual log: %s", text, testCtx.LastStderr)
	}
	return nil
}

// lastJSON decodes the command output as a JSON object.
func (testCtx *TestContext) lastJSON() (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(testCtx.LastOutput)), &data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastOutput)
	}
	return data, nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.lastJSON()
	return err
}

// theJSONShouldContain verifies the output JSON has a (dotted) field.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	_, err = lookupField(data, field)
	return err
}

// theJSONFieldShouldBe compares the printed form of a (dotted) field.
func (testCtx *TestContext) theJSONFieldShouldBe(field, want string) error {
	data, err := testCtx.lastJSON()
	if err != nil {
		return err
	}
	v, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("field %s is %s, want %s", field, got, want)
	}
	return nil
}

// lookupField resolves a dotted path such as "transforms.view".
func lookupField(data map[string]any, field string) (any, error) {
	parts := strings.Split(field, ".")
	var current any = data
	for i, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot navigate into non-object field '%s'", strings.Join(parts[:i], "."))
		}
		val, exists := obj[part]
		if !exists {
			return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
		current = val
	}
	return current, nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}
	full := testCtx.LastError.Error() + " " + testCtx.LastStderr
	if !strings.Contains(strings.ToLower(full), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, full)
	}
	return nil
}

// theFileShouldExist verifies a file was written.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.Path(testCtx.substituteVariables(filename))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist: %w", path, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldNotExist(filename string) error {
	path := testCtx.Path(testCtx.substituteVariables(filename))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file %s exists", path)
	}
	return nil
}

// theFileShouldContain verifies a file contains specific text.
func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	path := testCtx.Path(testCtx.substituteVariables(filename))
	data, err := os.ReadFile(path) //nolint:gosec // G304: test reads its own output
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	if !strings.Contains(string(data), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'", path, expectedContent)
	}
	return nil
}

// scenePairs loads the correspondences written for a scene.
func (testCtx *TestContext) scenePairs(scene string) ([]epipolar.AssociatedPair, error) {
	doc, err := geometry.Load(filepath.Join(testCtx.Path(scene), "geometry.yaml"))
	if err != nil {
		return nil, err
	}
	return doc.AssociatedPairs(), nil
}

func checkRowResidual(rect1, rect2 homography.Homography, pairs []epipolar.AssociatedPair, tol float64) error {
	if r := epipolar.RowResidual(rect1, rect2, pairs); !(r <= tol) {
		return fmt.Errorf("row residual %g px exceeds %g px", r, tol)
	}
	return nil
}

// thePrintedTransformsShouldAlign checks that rect1 and rect2 from the JSON
// output map every correspondence of the scene onto one row.
func (testCtx *TestContext) thePrintedTransformsShouldAlign(scene string, tol float64) error {
	var out struct {
		Rect1 []float64 `json:"rect1"`
		Rect2 []float64 `json:"rect2"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(testCtx.LastOutput)), &out); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	rect1, err := homography.FromSlice(out.Rect1)
	if err != nil {
		return err
	}
	rect2, err := homography.FromSlice(out.Rect2)
	if err != nil {
		return err
	}
	pairs, err := testCtx.scenePairs(scene)
	if err != nil {
		return err
	}
	return checkRowResidual(rect1, rect2, pairs, tol)
}

// theDocumentShouldAlign checks the transforms stored in a written document.
func (testCtx *TestContext) theDocumentShouldAlign(filename string, tol float64) error {
	doc, err := geometry.Load(testCtx.Path(testCtx.substituteVariables(filename)))
	if err != nil {
		return err
	}
	rect1, rect2, ok, err := doc.Transforms()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document %s has no transforms", filename)
	}
	return checkRowResidual(rect1, rect2, doc.AssociatedPairs(), tol)
}

// theEnvironmentVariableIsSetTo sets a variable until the scenario ends.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	return testCtx.SetEnv(name, testCtx.substituteVariables(value))
}

// RegisterCommonSteps registers command, output and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)

	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the log should contain "([^"]*)"$`, testCtx.theLogShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)

	sc.Step(`^the printed transforms should align the correspondences of "([^"]*)" within ([0-9.e-]+) pixels$`,
		testCtx.thePrintedTransformsShouldAlign)
	sc.Step(`^the document "([^"]*)" should align its correspondences within ([0-9.e-]+) pixels$`,
		testCtx.theDocumentShouldAlign)
}
