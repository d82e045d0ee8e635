package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dxta-dev/clankers/internal/formatters"
	"github.com/dxta-dev/clankers/internal/paths"
	"github.com/dxta-dev/clankers/internal/storage"
)

// knownTables maps table name to a one-line description for error hints.
var knownTables = []struct {
	name, desc string
}{
	{"sessions", "AI chat sessions"},
	{"messages", "Individual messages within sessions"},
	{"tools", "Tool invocations"},
	{"session_errors", "Assistant failure events"},
	{"compaction_events", "Context-window compactions"},
}

func queryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "query <SQL>",
		Short: "Query session data using SQL",
		Long: `Execute read-only SQL queries against the clankers database.

Only SELECT/WITH queries are allowed. Write operations (INSERT, UPDATE,
DELETE, DROP, CREATE, ALTER, etc.) are blocked.

Examples:
  clankers query "SELECT * FROM sessions LIMIT 10"
  clankers query "SELECT id, title FROM sessions WHERE project_name = 'my-app'"
  clankers query "SELECT * FROM messages WHERE session_id = 'abc123'"
  clankers query "SELECT * FROM sessions" --format json

Tables:
  sessions           - AI chat sessions
  messages           - Individual messages within sessions
  tools              - Tool invocations
  session_errors     - Assistant failure events
  compaction_events  - Context-window compactions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])

			store, err := storage.Open(paths.DBPath())
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			result, err := store.ExecuteQuery(ctx, query)
			if err != nil {
				switch {
				case strings.Contains(err.Error(), "no such column"):
					return columnError(ctx, err, query, store)
				case strings.Contains(err.Error(), "no such table"):
					return tableError()
				case strings.Contains(err.Error(), "syntax error"):
					return syntaxError(query)
				}
				return fmt.Errorf("query failed: %w", err)
			}

			formatter, err := formatters.New(formatters.FormatType(format))
			if err != nil {
				return err
			}
			output, err := formatter.Format(result.Columns, result.Rows)
			if err != nil {
				return fmt.Errorf("formatting results: %w", err)
			}

			fmt.Print(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")

	return cmd
}

// columnError prints the available columns of the referenced table plus
// close matches for the missing one.
func columnError(ctx context.Context, err error, query string, store *storage.Store) error {
	errStr := err.Error()
	var colName string
	if idx := strings.Index(errStr, "no such column: "); idx != -1 {
		colName = strings.TrimSpace(errStr[idx+len("no such column: "):])
	}

	var tableName string
	lowerQuery := strings.ToLower(query)
	for _, t := range knownTables {
		if strings.Contains(lowerQuery, t.name) {
			tableName = t.name
			break
		}
	}

	fmt.Fprintf(os.Stderr, "Error: Column '%s' not found\n\n", colName)

	if tableName != "" {
		columns, _ := store.TableColumns(ctx, tableName)
		if len(columns) > 0 {
			fmt.Fprintf(os.Stderr, "Available columns in '%s':\n", tableName)
			for _, col := range columns {
				fmt.Fprintf(os.Stderr, "  - %s\n", col)
			}

			suggestions, _ := store.SuggestColumns(ctx, tableName, colName)
			if len(suggestions) > 0 {
				fmt.Fprintf(os.Stderr, "\nDid you mean:\n")
				for _, s := range suggestions {
					fmt.Fprintf(os.Stderr, "  - %s\n", s)
				}
			}
		}
	} else {
		printTables()
	}

	return fmt.Errorf("invalid column reference")
}

func tableError() error {
	fmt.Fprintf(os.Stderr, "Error: Table not found\n\n")
	printTables()
	fmt.Fprintf(os.Stderr, "\nTip: Check your spelling or use one of the available tables.\n")
	return fmt.Errorf("invalid table reference")
}

func syntaxError(query string) error {
	fmt.Fprintf(os.Stderr, "Error: SQL syntax error\n\n")
	fmt.Fprintf(os.Stderr, "Query: %s\n\n", query)
	fmt.Fprintf(os.Stderr, "Tip: SQL keywords should be uppercase: SELECT, FROM, WHERE, LIMIT\n")
	fmt.Fprintf(os.Stderr, "Example: SELECT * FROM sessions LIMIT 10\n")
	return fmt.Errorf("syntax error")
}

func printTables() {
	fmt.Fprintf(os.Stderr, "Available tables:\n")
	for _, t := range knownTables {
		fmt.Fprintf(os.Stderr, "  - %-18s - %s\n", t.name, t.desc)
	}
}
