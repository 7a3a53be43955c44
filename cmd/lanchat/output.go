package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var (
	errorLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	senderLabel = color.New(color.FgCyan).SprintFunc()
	noticeLabel = color.New(color.FgYellow).SprintFunc()
	okLabel     = color.New(color.FgGreen).SprintFunc()
)

// console serialises terminal output; session goroutines print concurrently.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// message prints one received line, prefixed with who sent it.
func (c *console) message(sender, text string) {
	c.printf("%s %s\n", senderLabel(sender+">"), text)
}

func (c *console) notice(format string, args ...any) {
	c.printf("%s\n", noticeLabel(fmt.Sprintf(format, args...)))
}

func (c *console) success(format string, args ...any) {
	c.printf("%s %s\n", okLabel("✓"), fmt.Sprintf(format, args...))
}

func (c *console) failure(format string, args ...any) {
	c.printf("%s %s\n", errorLabel("✗"), fmt.Sprintf(format, args...))
}

func (c *console) println(text string) {
	c.printf("%s\n", text)
}
