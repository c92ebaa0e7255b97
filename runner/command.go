package runner

import (
	"strconv"

	"vitebridge/config"
)

// BatchArgs builds the argv tail for a one-shot invocation. The name
// pattern is only present when the selection was a single node; extra
// args come last so user overrides win.
func BatchArgs(cfg config.Config, files []string, pattern string) []string {
	args := []string{"run"}
	args = append(args, files...)
	if pattern != "" {
		args = append(args, "--testNamePattern", pattern)
	}
	args = append(args, "--reporter=default", "--reporter=json")
	args = append(args, cfg.SplitExtraArgs()...)
	return args
}

// DebugArgs builds the argv tail for a debug invocation. The debugger's
// standard streams are not capturable, so the JSON reporter writes to a
// private output file instead. Extra args are batch-only and deliberately
// absent here.
func DebugArgs(files []string, pattern, outputFile string) []string {
	args := []string{"run"}
	args = append(args, files...)
	if pattern != "" {
		args = append(args, "--testNamePattern", pattern)
	}
	args = append(args, "--reporter=default", "--reporter=json", "--outputFile", outputFile)
	return args
}

// WatchArgs builds the argv tail for the long-lived watch process,
// exposing the reporting channel on the given port.
func WatchArgs(port int) []string {
	return []string{"--api", strconv.Itoa(port)}
}
