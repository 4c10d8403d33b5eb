package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mtmatch/internal/pipeline"
)

// NewIngestCmd creates the ingest command for loading messages from files.
func NewIngestCmd() *cobra.Command {
	var messageType string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest SWIFT message files",
		Long: `Ingest one or more SWIFT MT7xx message files.

Each file may contain a single message or a bulk export; bulk content is
split on {1:..}{2:..} header envelopes. Messages are parsed, embedded and
left in status EMBEDDED, ready for 'mtmatch extract'.

Examples:
  mtmatch ingest messages/*.txt
  mtmatch ingest --type MT700 single-message.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, messageType)
		},
	}

	cmd.Flags().StringVar(&messageType, "type", "", "message type override for headerless files (e.g. MT700)")
	return cmd
}

func runIngest(cmd *cobra.Command, files []string, messageType string) error {
	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var succeeded, failed int
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		if messageType != "" {
			msg, err := a.deps.Pipeline.Ingest(cmd.Context(), pipeline.Request{
				MessageType: messageType,
				RawContent:  string(raw),
			})
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				continue
			}
			succeeded++
			fmt.Printf("%s: ingested %s (%s)\n", path, msg.ID, msg.Status)
			continue
		}

		result, err := a.deps.Pipeline.IngestBulk(cmd.Context(), string(raw))
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		succeeded += result.Succeeded
		failed += result.Failed
		fmt.Printf("%s: %d ingested, %d failed\n", path, result.Succeeded, result.Failed)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
	}

	fmt.Printf("done: %d ingested, %d failed\n", succeeded, failed)
	return nil
}
