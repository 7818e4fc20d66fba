package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func customersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "customers",
		Short: "List stored customers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			customers, err := a.Store.AllCustomers(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				if customers == nil {
					customers = []domain.CustomerRecord{}
				}
				return printJSON(w, customers)
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tADDRESS\tLAST UPDATED")
			for _, c := range customers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.CustomerID, c.Name, c.Email, c.Address, c.LastUpdated.Format(timeLayout))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "\n%d customer(s)\n", len(customers))
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <customer-id>",
		Short: "Show a customer's address change history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			customerID := args[0]

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			customer, err := a.Store.Get(ctx, customerID)
			if err != nil {
				return err
			}
			if customer == nil {
				return fmt.Errorf("customer %s not found", customerID)
			}

			history, err := a.Store.History(ctx, customerID)
			if err != nil {
				return err
			}
			if history == nil {
				history = []domain.AddressChange{}
			}
			if jsonOutput {
				return printJSON(w, domain.CustomerWithHistory{CustomerRecord: *customer, History: history})
			}

			fmt.Fprintf(w, "%s  %s <%s>\n", customer.CustomerID, customer.Name, customer.Email)
			fmt.Fprintf(w, "Current address: %s\n\n", customer.Address)
			if len(history) == 0 {
				fmt.Fprintln(w, "No address changes recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHANGED\tFROM\tTO\tSOURCE")
			for _, h := range history {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.ChangedAt.Format(timeLayout), h.OldAddress, h.NewAddress, h.SourceFile)
			}
			return tw.Flush()
		},
	}
}

func uploadsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Show the upload log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			uploads, err := a.UploadLog.ListUploads(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if uploads == nil {
					uploads = []domain.UploadLog{}
				}
				return printJSON(w, uploads)
			}

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UPLOADED\tFILE\tCUSTOMERS\tTRANSACTIONS\tPRODUCTS\tTIME")
			for _, u := range uploads {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", u.Timestamp.Format(timeLayout), u.Filename, u.CustomersRows, u.TransactionsRows, u.ProductsRows, u.ProcessingTime().Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries")

	return cmd
}
