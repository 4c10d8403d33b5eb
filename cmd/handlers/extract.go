package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewExtractCmd creates the extract command for the template batch job.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run template extraction over all embedded messages",
		Long: `Cluster every EMBEDDED message per (type, trading pair) partition and
derive templates from the strongest clusters. Messages claimed by a
template move to CLUSTERED; the rest stay EMBEDDED for the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.deps.Extractor.Extract(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("processed %d messages, created %d templates\n",
				result.TotalMessages, result.ClustersCreated)
			for _, tpl := range result.Templates {
				fmt.Printf("  %s  %s %s -> %s  (%d messages, confidence %.2f)\n",
					tpl.ID, tpl.MessageType, tpl.BuyerID, tpl.SellerID,
					tpl.MessageCount, tpl.Confidence)
			}
			return nil
		},
	}
	return cmd
}
