package main

import (
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/transfer"
	"github.com/spf13/cobra"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Inspect transfer detection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect TEXT",
		Short: "Show what transfer detection finds in a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			token := transfer.DestinationToken(text)

			fmt.Printf("Transfer keyword:  %t\n", transfer.IsTransferMessage(text))
			fmt.Printf("Destination:       %s\n", orDash(token))
			fmt.Printf("Origin last four:  %s\n", orDash(transfer.OriginSuffix(text)))
			if token == "" {
				return nil
			}

			application, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			rule, err := application.Rules.FindTransferRule(cmd.Context(), token)
			if err != nil {
				return err
			}
			if rule == nil {
				fmt.Println("Matching rule:     - (would post as an expense)")
				return nil
			}
			fmt.Printf("Matching rule:     %s (%s)\n", rule.Name, rule.ID)
			fmt.Printf("Destination acct:  %s\n", orDash(rule.TransferToAccountID))
			return nil
		},
	})
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
