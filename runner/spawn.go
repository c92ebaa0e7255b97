package runner

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// StartStreaming starts the command and wires background readers that
// push stdout and stderr lines through their callbacks. It does not
// wait; the returned wait function blocks until the process exits and
// both pipes are drained, returning cmd.Wait's error.
func StartStreaming(ctx context.Context, bin string, args []string, dir string, env []string, onStdout, onStderr func(string)) (*exec.Cmd, func() error, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = env
	prepareCommand(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, onStdout)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, onStderr)
	}()

	wait := func() error {
		// Drain the pipes before Wait closes them.
		wg.Wait()
		return cmd.Wait()
	}
	return cmd, wait, nil
}

// runStreaming executes the command to completion, streaming every line
// through onLine, and returns the captured stdout. The error is whatever
// cmd.Wait reports; callers decide whether a non-zero exit is a failure
// (the runner exits non-zero when tests fail, which is not a spawn
// failure).
func runStreaming(ctx context.Context, bin string, args []string, dir string, env []string, onLine func(string)) (string, error) {
	var captured strings.Builder
	var mu sync.Mutex
	_, wait, err := StartStreaming(ctx, bin, args, dir, env,
		func(line string) {
			mu.Lock()
			captured.WriteString(line)
			captured.WriteByte('\n')
			mu.Unlock()
			onLine(line)
		},
		onLine)
	if err != nil {
		return "", err
	}
	err = wait()
	mu.Lock()
	defer mu.Unlock()
	return captured.String(), err
}

func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}
