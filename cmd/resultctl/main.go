// Command resultctl runs the results pipeline against a workbook on disk
// without starting the API server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"results-portal/internal/auth"
	"results-portal/internal/repository"
	"results-portal/internal/services"
	"results-portal/internal/workbook"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resultctl",
		Short: "Inspect and validate exam results workbooks",
		Long: `Run the same normalization the API server uses against a local .xlsx file.

Available subcommands:
  normalize     - Print the merged result table as JSON
  zones         - List the zones in the workbook
  search        - Look up one student by zone and index number
  summary       - Print grade counts per subject
  hash-password - Print the SHA-256 digest of an admin password`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline stages to stderr")

	root.AddCommand(
		newNormalizeCmd(),
		newZonesCmd(),
		newSearchCmd(),
		newSummaryCmd(),
		newHashPasswordCmd(),
	)
	return root
}

// loadStore normalizes the workbook at path into a fresh store
func loadStore(ctx context.Context, path string) (*repository.ResultStore, error) {
	logger := logging.NewNopLogger()
	if verbose {
		logger = logging.NewConsoleLogger("resultctl", "1.0.0", logging.DebugLevel)
	}
	store := repository.NewResultStore(logger, metrics.NewCollector("resultctl", prometheus.NewRegistry()))

	wb, err := workbook.Open(path)
	if err != nil {
		return nil, describe(err)
	}
	defer wb.Close()

	if err := store.Load(ctx, wb); err != nil {
		return nil, describe(err)
	}
	return store, nil
}

// describe keeps the internal detail and prefixes the user facing category
func describe(err error) error {
	category, _ := services.UserMessage(err)
	return fmt.Errorf("%s: %w", category, err)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <file.xlsx>",
		Short: "Print the merged result table as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), store.Records())
		},
	}
}

func newZonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zones <file.xlsx>",
		Short: "List the zones in the workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, zone := range store.Zones() {
				fmt.Fprintln(cmd.OutOrStdout(), zone)
			}
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var zone, index string

	cmd := &cobra.Command{
		Use:   "search <file.xlsx>",
		Short: "Look up one student by zone and index number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result, ok := store.Search(zone, index)
			if !ok {
				_, message := services.NotFoundMessage()
				return errors.New(message)
			}

			out := cmd.OutOrStdout()
			for _, row := range result.Table() {
				value := row.Value
				if value == nil {
					value = "-"
				}
				fmt.Fprintf(out, "%-15s %v\n", row.Label, value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "Zone the student sat the exam in")
	cmd.Flags().StringVar(&index, "index", "", "Student index number")
	cmd.MarkFlagRequired("zone")
	cmd.MarkFlagRequired("index")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var zone string

	cmd := &cobra.Command{
		Use:   "summary <file.xlsx>",
		Short: "Print grade counts per subject, for one zone or all zones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if zone == "" {
				return writeJSON(cmd.OutOrStdout(), store.OverallGradeSummary())
			}
			return writeJSON(cmd.OutOrStdout(), store.GradeSummary(zone))
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "Zone to summarize (default: all zones)")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the SHA-256 digest of an admin password",
		Long:  "Print the SHA-256 digest of an admin password. Reads the password from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			fmt.Fprintln(cmd.OutOrStdout(), auth.HashPassword(password))
			return nil
		},
	}
}
