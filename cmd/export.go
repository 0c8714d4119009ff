package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/agentt/internal/export"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

var (
	exportEntity string
	exportSync   string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export registers as XLSX workbooks",
}

var exportTransactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Export transactions to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		path, err := export.New(st, cfg.Export.Dir).Transactions(ctx, store.TransactionFilter{
			EntitySlug: exportEntity,
			SyncStatus: model.SyncStatus(exportSync),
		})
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var exportDocumentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Export the document register to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		path, err := export.New(st, cfg.Export.Dir).Documents(ctx, store.DocumentFilter{
			EntitySlug: exportEntity,
			Status:     model.DocumentStatus(exportStatus),
		})
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportEntity, "entity", "", "filter by entity slug")
	exportTransactionsCmd.Flags().StringVar(&exportSync, "sync", "", "filter by sync status")
	exportDocumentsCmd.Flags().StringVar(&exportStatus, "status", "", "filter by document status")

	exportCmd.AddCommand(exportTransactionsCmd)
	exportCmd.AddCommand(exportDocumentsCmd)
	rootCmd.AddCommand(exportCmd)
}
