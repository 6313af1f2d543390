package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage automation rules",
	}
	cmd.AddCommand(rulesListCmd(), rulesCheckCmd(), rulesImportCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules in the order they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			active, err := application.Rules.ActiveRules(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tID\tNAME\tCONDITIONS\tACTIONS\tTRANSFER")
			for _, r := range active {
				conds, _ := domain.EncodeConditions(r.Conditions)
				actions, _ := domain.EncodeActions(r.Actions)
				transfer := "-"
				if r.MatchPhone != "" {
					transfer = r.MatchPhone + " -> " + r.TransferToAccountID
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Priority, r.ID, r.Name, conds, actions, transfer)
			}
			return w.Flush()
		},
	}
}

func rulesCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate rules from a YAML file or the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []domain.AutomationRule
			if file != "" {
				parsed, err := rules.FileSource{Path: file}.ActiveRules(cmd.Context())
				if err != nil {
					return err
				}
				all = parsed
			} else {
				application, err := openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer application.Close()
				if all, err = application.Store.ActiveRules(cmd.Context()); err != nil {
					return err
				}
			}

			errs := rules.CheckRules(all)
			for _, err := range errs {
				fmt.Fprintln(os.Stderr, err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d rules are misconfigured", len(errs), len(all))
			}
			fmt.Printf("%d rules OK\n", len(all))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML rule file to check instead of the store")
	return cmd
}

func rulesImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Save the rules of a YAML file into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			parsed, err := rules.FileSource{Path: file}.ActiveRules(cmd.Context())
			if err != nil {
				return err
			}
			if errs := rules.CheckRules(parsed); len(errs) > 0 {
				return fmt.Errorf("refusing to import: %w", errs[0])
			}

			application, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			for _, r := range parsed {
				if err := application.Store.SaveRule(cmd.Context(), r); err != nil {
					return fmt.Errorf("saving rule %s: %w", r.ID, err)
				}
				application.Log.Info().Str("rule_id", r.ID).Str("name", r.Name).Msg("Rule saved")
			}
			if err := application.RuleCache.Invalidate(cmd.Context()); err != nil {
				application.Log.Warn().Err(err).Msg("Rule cache invalidation failed")
			}
			fmt.Printf("Imported %d rules\n", len(parsed))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML rule file")
	return cmd
}
