package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpSatisfiesReporterAndIsInert(t *testing.T) {
	var r Reporter = NoOp{}
	r.Start(100, "sequences")
	r.Increment(10)
	r.SetTotal(200)
	r.Finish()
}

func TestTerminalReporterRendersWithoutPanicking(t *testing.T) {
	var buf bytes.Buffer
	var r Reporter = NewTerminal(&buf)

	r.Start(10, "chunks")
	r.Increment(4)
	r.SetTotal(12)
	r.Increment(8)
	r.Finish()
}

func TestHumanBytesFormatsReadableSize(t *testing.T) {
	s := HumanBytes(1_500_000)
	require.NotEmpty(t, s)
	require.Contains(t, s, "MB")
}
