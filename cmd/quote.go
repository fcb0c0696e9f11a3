package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/solterra-energy/quote-cli/internal/model"
	"github.com/solterra-energy/quote-cli/internal/quote"
)

var (
	quoteMeterLng float64
	quoteMeterLat float64
	quoteArrayLng float64
	quoteArrayLat float64
	quoteBill     float64
	quoteOffset   float64
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Compute a quote from the command line",
	Long:  "Computes trench distance and cost between meter and array positions, and sizes the panel count from the monthly bill and offset target.",
	RunE: func(cmd *cobra.Command, args []string) error {
		qc := quoteConfig()

		var meter, array *model.GeoPosition
		if cmd.Flags().Changed("meter-lng") || cmd.Flags().Changed("meter-lat") {
			meter = &model.GeoPosition{Lng: quoteMeterLng, Lat: quoteMeterLat}
		}
		if cmd.Flags().Changed("array-lng") || cmd.Flags().Changed("array-lat") {
			array = &model.GeoPosition{Lng: quoteArrayLng, Lat: quoteArrayLat}
		}

		panels := qc.Sizing.PanelCount(quoteBill, quoteOffset)
		trench := quote.Trench(meter, array, qc.CostPerFootUSD)
		if quoteBill > 0 && panels == 0 {
			trench = model.TrenchMeasurement{}
		}

		summary := struct {
			model.QuoteSummary
			Layout model.GridLayout `json:"layout"`
		}{
			QuoteSummary: model.QuoteSummary{
				Panels:     panels,
				SystemKW:   qc.Sizing.SystemKW(panels),
				Trench:     trench,
				AvgBillUSD: quoteBill,
				OffsetPct:  quoteOffset,
			},
			Layout: quote.Layout(panels),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	quoteCmd.Flags().Float64Var(&quoteMeterLng, "meter-lng", 0, "meter longitude")
	quoteCmd.Flags().Float64Var(&quoteMeterLat, "meter-lat", 0, "meter latitude")
	quoteCmd.Flags().Float64Var(&quoteArrayLng, "array-lng", 0, "array longitude")
	quoteCmd.Flags().Float64Var(&quoteArrayLat, "array-lat", 0, "array latitude")
	quoteCmd.Flags().Float64Var(&quoteBill, "bill", 0, "average monthly bill in USD")
	quoteCmd.Flags().Float64Var(&quoteOffset, "offset", 100, "usage offset percent")
	rootCmd.AddCommand(quoteCmd)
}
