package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/app"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/pipeline"
	"github.com/dvloznov/expense-assistant/internal/reply"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	var (
		source string
		email  bool
	)
	cmd := &cobra.Command{
		Use:   "process TEXT",
		Short: "Extract, post and confirm one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.Request{Text: args[0], Source: source}
			if email {
				req.Text = handlers.ExtractBancolombiaText(args[0])
				if req.Text == "" {
					return fmt.Errorf("no Bancolombia notification found in text")
				}
				req.Source = pipeline.SourceBancolombiaEmail
				req.Institution = pipeline.InstitutionBancolombia
				req.Strict = true
			}

			application, err := openApp(cmd.Context(), "gemini.apiKey")
			if err != nil {
				return err
			}
			defer application.Close()

			return runProcess(cmd, application, req)
		},
	}
	cmd.Flags().StringVar(&source, "source", pipeline.SourceAPI, "source recorded on the transaction")
	cmd.Flags().BoolVar(&email, "email", false, "treat the text as a forwarded Bancolombia email")
	return cmd
}

func runProcess(cmd *cobra.Command, application *app.App, req pipeline.Request) error {
	res, err := application.Pipeline.Process(cmd.Context(), req)
	if err != nil {
		fmt.Fprintln(os.Stderr, reply.Guidance(err))
		var posted *domain.PartiallyPostedError
		if errors.As(err, &posted) {
			fmt.Fprintf(os.Stderr, "Posted before the failure: %s (transfer %s)\n",
				strings.Join(posted.PostedTransactionIDs, ", "), orDash(posted.TransferID))
		}
		return err
	}
	fmt.Println(reply.Confirmation(res, application.Config.API.AppURL))
	for _, p := range res.Postings {
		fmt.Printf("\n%s  %s  %s  %s\n", p.Transaction.ID, p.Transaction.AccountID, p.Transaction.Type, reply.FormatCOP(p.Transaction.Amount))
	}
	if res.ArchiveURI != "" {
		fmt.Printf("\nArchived: %s\n", res.ArchiveURI)
	}
	return nil
}
