// Package cli provides the schemadiagram command-line client.
//
// Given a command on the command line it runs it once and exits:
//
//	upload <file.db>            submit a database, wait and save the diagram
//	status <key>                show metadata for a request
//	wait <key>                  poll until the diagram is ready and save it
//	download <key> [database]   save the diagram (or the database) now
//	list [n]                    show recent submissions
//
// Without a command and with a terminal on stdin it starts a REPL that
// accepts the same commands, with a prompt showing whether the server is
// reachable. Name and email are prompted for when not configured.
package cli
