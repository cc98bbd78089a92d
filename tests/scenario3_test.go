package tests_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/nerdctl/mod/tigron/expect"
	"github.com/containerd/nerdctl/mod/tigron/test"
	"github.com/containerd/nerdctl/mod/tigron/tig"

	"github.com/farcloser/auralis/tests/testutils"
)

// TestMasterIsDeterministic is the CLI-level half of the chunk-boundary
// continuity property: mastering the same track twice through the
// single-shot pipeline must produce bit-identical output. The whole-buffer
// versus chunked-buffer equivalence itself is exercised directly against
// the processor in internal/mastering's own continuity test.
func TestMasterIsDeterministic(t *testing.T) {
	testCase := testutils.Setup()

	dir := t.TempDir()

	input, err := testutils.SineSweep(dir, 200, 4000, 5, 0.4)
	if err != nil {
		t.Fatalf("generating fixture: %v", err)
	}

	outA := filepath.Join(dir, "a.pcm")
	outB := filepath.Join(dir, "b.pcm")

	testCase.SubTests = []*test.Case{
		{
			Description: "master run A",
			Command:     test.Command("master", "--output", outA, input),
			Expected:    test.Expects(expect.ExitCodeSuccess, nil, nil),
		},
		{
			Description: "master run B",
			Command:     test.Command("master", "--output", outB, input),
			Expected: func(_ test.Data, _ test.Helpers) *test.Expected {
				return &test.Expected{
					ExitCode: expect.ExitCodeSuccess,
					Output:   expectFilesEqual(outA, outB),
				}
			},
		},
	}

	testCase.Run(t)
}

func expectFilesEqual(pathA, pathB string) test.Comparator {
	return func(_ string, testing tig.T) {
		testing.Helper()

		a, errA := os.ReadFile(pathA) //nolint:gosec // test-generated fixture path
		b, errB := os.ReadFile(pathB) //nolint:gosec // test-generated fixture path

		if errA != nil || errB != nil {
			testing.Log(fmt.Sprintf("reading outputs: %v / %v", errA, errB))
			testing.Fail()

			return
		}

		if !bytes.Equal(a, b) {
			testing.Log("two master runs over the same input produced different output")
			testing.Fail()
		}
	}
}
