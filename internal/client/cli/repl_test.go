package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
}

func (f *fakeExec) exec(ctx context.Context, cmd string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(cmd+" "+strings.Join(args, " ")))
	if cmd == "foobar" {
		return errors.New("unknown command")
	}
	return nil
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	var printed []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		printed = append(printed, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"",
		"upload shop.db",
		"status abcDEF123456",
		"l 5",
		"foobar",
		"exit",
		"list",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(online)" }, bufio.NewScanner(input))

	assert.Equal(t, []string{"upload shop.db", "status abcDEF123456", "l 5", "foobar"}, exec.calls)
	assert.Contains(t, printed, "sd (online)> ")
	assert.Contains(t, printed, "Bye!")
	assert.Contains(t, printed, "Error:unknown command")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("list")))
	assert.Equal(t, []string{"list"}, exec.calls)
}
