package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

type commandExecutor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// runPrompt reads command lines from in until the engine stops or in is
// exhausted. End of input quits the engine.
func runPrompt(ctx context.Context, executor commandExecutor, engineDone <-chan struct{}, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		output, err := executor.Exec(ctx, scanner.Text())
		fmt.Fprint(out, output)
		if err != nil {
			return
		}
		select {
		case <-engineDone:
			return
		default:
		}
		fmt.Fprint(out, prompt)
	}
	fmt.Fprintln(out)
	output, _ := executor.Exec(ctx, "q")
	fmt.Fprint(out, output)
}
