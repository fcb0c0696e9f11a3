package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/sink"
	"github.com/solterra-energy/quote-cli/internal/store"
)

var (
	exportOut         string
	exportStage       string
	exportIncludeSpam bool
	exportSinceHours  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export captured leads to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		filter := store.LeadFilter{
			Stage:       model.LeadStage(exportStage),
			IncludeSpam: exportIncludeSpam,
		}
		if exportSinceHours > 0 {
			filter.CreatedAfter = time.Now().UTC().Add(-time.Duration(exportSinceHours) * time.Hour)
		}

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return err
		}

		if err := sink.WriteWorkbook(exportOut, leads); err != nil {
			return err
		}

		fmt.Printf("exported %d leads to %s\n", len(leads), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "leads.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportStage, "stage", "", "filter by capture stage (address, usage, design, contact)")
	exportCmd.Flags().BoolVar(&exportIncludeSpam, "include-spam", false, "include leads flagged as spam")
	exportCmd.Flags().IntVar(&exportSinceHours, "since", 0, "only leads captured in the last N hours")
	rootCmd.AddCommand(exportCmd)
}
