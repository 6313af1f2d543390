package main

import (
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/spf13/cobra"
)

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay URI",
		Short: "Process an archived message again",
		Long: `replay fetches an archived message (gs://bucket/messages/...) and runs
it through the pipeline again. The new transactions are posted in
addition to any created the first time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd.Context(), "gemini.apiKey", "archive.bucket")
			if err != nil {
				return err
			}
			defer application.Close()

			reader, ok := application.ArchiveReader()
			if !ok {
				return fmt.Errorf("configured archive cannot fetch messages")
			}
			msg, err := reader.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req := pipeline.Request{Text: msg.Text, Source: msg.Source}
			if msg.Source == pipeline.SourceBancolombiaEmail {
				req.Institution = pipeline.InstitutionBancolombia
				req.Strict = true
			}
			application.Log.Info().Str("message_id", msg.ID).Strs("original_transactions", msg.TransactionIDs).Msg("Replaying archived message")
			return runProcess(cmd, application, req)
		},
	}
}
