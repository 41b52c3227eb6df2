// Command jboltctl is an operator-command demo client: it exercises the
// start/stop/abort/dump surface by driving a JBolt value wired to
// in-process fake collaborators. It follows wazero's
// cmd/wazero doMain/subcommand shape (flag.NewFlagSet per subcommand,
// os.Exit separated from doMain for testability) rather than a
// third-party CLI framework, since the teacher itself reaches only for
// the standard library's flag package here.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	jbolt "github.com/openeuler-mirror/bishengjdk-jbolt"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)
	if !flag.Parsed() {
		flag.Parse()
	}

	if flag.NArg() == 0 {
		printUsage(stdErr)
		return 1
	}

	j, cancel, err := bootstrap()
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	defer cancel()

	switch flag.Arg(0) {
	case "start":
		return doStart(j, flag.Args()[1:], stdOut, stdErr)
	case "stop":
		return reply(j.Stop(), stdOut, stdErr)
	case "abort":
		return reply(j.Abort(), stdOut, stdErr)
	case "dump":
		return doDump(j, flag.Args()[1:], stdOut, stdErr)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 1
	}
}

func doStart(j *jbolt.JBolt, args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("start", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	duration := flags.Int("duration", 600, "sampling window length, in seconds")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	return reply(j.Start(time.Duration(*duration)*time.Second), stdOut, stdErr)
}

func doDump(j *jbolt.JBolt, args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	filename := flags.String("filename", "", "path to write the order file to")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *filename == "" {
		fmt.Fprintln(stdErr, "dump requires -filename")
		return 1
	}
	return reply(j.Dump(*filename), stdOut, stdErr)
}

func reply(err error, stdOut, stdErr io.Writer) int {
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	fmt.Fprintln(stdOut, "OK")
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "jboltctl [start [-duration=<seconds>]|stop|abort|dump -filename=<path>]")
}

// bootstrap wires a JBolt instance against the demo's in-memory fake
// collaborators and starts its control-thread goroutine, returning a
// cancel func the caller must defer. A real deployment supplies its own
// hostiface implementations backed by the actual JVM/JIT instead.
func bootstrap() (*jbolt.JBolt, func(), error) {
	cfg := jbolt.NewConfig().WithUseJBolt(true)
	col := jbolt.NewCollaborators().
		WithBroker(newDemoBroker()).
		WithAllocator(newDemoAllocator()).
		WithSweeper(newDemoSweeper()).
		WithSampler(newDemoSampler())

	j, err := jbolt.New(cfg, col)
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = j.Run(ctx)
	}()

	cancel := func() {
		stop()
		<-done
	}
	return j, cancel, nil
}
