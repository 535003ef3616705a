package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests provide a stub.
type execIface interface {
	exec(ctx context.Context, cmd string, args []string) error
}

// runREPL reads a line at a time, treats the first token as the command and
// dispatches it. Command errors are printed and the loop goes on. It returns
// on EOF or "exit"/"quit".
//
//	help                        show available commands
//	upload <file.db>            submit and wait for the diagram
//	status <key>                show request metadata
//	wait <key>                  wait for and save the diagram
//	download <key> [database]   save an artifact
//	(l)ist [n]                  recent submissions
//	exit | quit                 leave the program
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("sd %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			printlnFn("Available commands: upload, status, wait, download, (l)ist, exit")
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if err := a.exec(ctx, cmd, parts[1:]); err != nil {
				printlnFn("Error:", err)
			}
		}
	}
}
