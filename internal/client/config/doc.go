// Package config loads runtime configuration for the schemadiagram client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. SCHEMADIAGRAM_CLIENT_* environment variables.
//  3. Optional JSON file selected with -c/-config or
//     SCHEMADIAGRAM_CLIENT_CONFIG.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the server, e.g. http://127.0.0.1:8080
//	-i int      poll interval (seconds)
//	-w int      give up waiting for a diagram after this many seconds
//	-n string   submitter name
//	-e string   submitter email
//	-t string   diagram title
//	-o string   directory downloads are written to
//
// # JSON schema
//
// Durations accept strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "poll_interval": "2s",
//	  "wait_timeout": "10m",
//	  "name": "Ada",
//	  "email": "ada@example.com",
//	  "output_dir": "diagrams"
//	}
package config
