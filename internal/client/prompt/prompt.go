// Package prompt is the terminal confirmation surface and line reader used
// by the client shell.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal reads lines from in on a single goroutine so the shell and the
// confirmation prompt can share one input without stealing each other's lines.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
	err   error
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, lines: make(chan string)}
}

func (t *Terminal) start() {
	t.once.Do(func() {
		go func() {
			scanner := bufio.NewScanner(t.in)
			for scanner.Scan() {
				t.lines <- scanner.Text()
			}
			t.err = scanner.Err()
			if t.err == nil {
				t.err = io.EOF
			}
			close(t.lines)
		}()
	})
}

// ReadLine waits for the next input line. It returns io.EOF once the input is
// exhausted.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	t.start()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return "", t.err
		}
		return line, nil
	}
}

// Printf writes to the terminal output.
func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

// Confirm asks whether to save the login and waits for an answer until ctx is
// done. Only "y" or "yes" accepts.
func (t *Terminal) Confirm(ctx context.Context, website, username string) (bool, error) {
	t.Printf("Save login %q for %s? [y/N]: ", username, website)
	line, err := t.ReadLine(ctx)
	if err != nil {
		t.Printf("\n")
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
