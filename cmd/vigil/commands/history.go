package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/backend"
)

func newHistoryCmd() *cobra.Command {
	var kind string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the backend's detection history",
		Example: `  vigil history
  vigil history --kind gun
  vigil history --limit 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			client := backend.NewClient(cfg.Backend.URL, cfg.Backend.ProbeTimeout)
			if err := client.Probe(ctx); err != nil {
				return fmt.Errorf("API connection error. Unable to fetch history data: %w", err)
			}
			records, err := client.History(ctx)
			if err != nil {
				return fmt.Errorf("fetching history: %w", err)
			}
			records, err = backend.FilterRecords(records, kind)
			if err != nil {
				return err
			}
			if limit > 0 && limit < len(records) {
				records = records[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printRecords(os.Stdout, records)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only records flagging person, knife, gun or multiple_persons")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to print (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func printRecords(w io.Writer, records []backend.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No detection history available") //nolint:errcheck // CLI output
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TIMESTAMP\tSOURCE\tPERSON\tKNIFE\tGUN\tMULTIPLE\tMESSAGE\n") //nolint:errcheck // CLI output
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // CLI output
			r.Timestamp.LocalTime(), r.SourceID,
			yesNo(r.Person), yesNo(r.Knife), yesNo(r.Gun), yesNo(r.MultiplePersons),
			r.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	armed := lo.CountBy(records, func(r backend.Record) bool { return r.Gun || r.Knife })
	fmt.Fprintf(w, "\n%d records, %d armed\n", len(records), armed) //nolint:errcheck // CLI output
	return nil
}
