package main

import (
	"bytes"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runMain(t *testing.T, args []string) (exitCode int, stdOut, stdErr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer

	oldArgs := flag.CommandLine
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	defer func() { flag.CommandLine = oldArgs }()
	flag.CommandLine.Parse(args)

	exitCode = doMain(&outBuf, &errBuf)
	return exitCode, outBuf.String(), errBuf.String()
}

func TestNoArgs_PrintsUsage(t *testing.T) {
	exitCode, _, stdErr := runMain(t, nil)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "jboltctl")
}

func TestInvalidCommand(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"bogus"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "invalid command")
}

func TestStart(t *testing.T) {
	exitCode, stdOut, _ := runMain(t, []string{"start", "-duration=1"})
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdOut, "OK")
}

func TestDump_RequiresFilename(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"dump"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "-filename")
}

func TestDump_FailsWithoutAnyOrder(t *testing.T) {
	exitCode, _, stdErr := runMain(t, []string{"dump", "-filename=/tmp/jboltctl-test-order.txt"})
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stdErr, "OrderNull")
}
