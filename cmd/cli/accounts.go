package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dvloznov/expense-assistant/internal/reply"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their stored balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			accounts, err := application.Store.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tINSTITUTION\tLAST FOUR\tBALANCE\tACTIVE")
			for _, a := range accounts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					a.ID, a.Name, a.Type, orDash(a.Institution), orDash(a.LastFour), reply.FormatCOP(a.Balance), a.Active)
			}
			return w.Flush()
		},
	}
}
