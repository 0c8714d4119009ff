package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/categorize"
	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
	"github.com/sells-group/agentt/pkg/anthropic"
)

var (
	txnEntity      string
	txnType        string
	txnDate        string
	txnVendor      string
	txnDescription string
	txnAmount      float64
	txnCategory    string
	txnIIFType     string
	txnReference   string
	txnDocumentID  string

	txnListEntity string
	txnListSync   string
	txnListLimit  int
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Manage financial transactions",
}

var transactionsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction, auto-categorizing when no category is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		txnDateParsed := time.Time{}
		if txnDate != "" {
			txnDateParsed, err = time.Parse("2006-01-02", txnDate)
			if err != nil {
				return eris.Wrapf(err, "parse date %q", txnDate)
			}
		}

		transactionType := model.TransactionType(txnType)
		category := txnCategory
		qbAccount := categorize.QBAccountFor(category, transactionType)

		if category == "" {
			client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.MaxRPS)
			categorizer := categorize.New(st, client, cfg.Anthropic.CategorizeModel)

			res := categorizer.Categorize(ctx, txnVendor, txnDescription, txnAmount, "", transactionType)
			category = res.Category
			qbAccount = res.QBAccount
			zap.L().Info("transaction categorized",
				zap.String("category", res.Category),
				zap.String("source", res.Source),
				zap.Float64("confidence", res.Confidence),
			)
		} else if qbAccount == "" {
			return eris.Errorf("unknown category %q for %s", category, transactionType)
		}

		txn, err := st.CreateTransaction(ctx, &model.Transaction{
			EntitySlug:      txnEntity,
			DocumentID:      txnDocumentID,
			Type:            transactionType,
			Date:            txnDateParsed,
			VendorCustomer:  txnVendor,
			Description:     txnDescription,
			Amount:          txnAmount,
			Category:        category,
			QBAccount:       qbAccount,
			IIFType:         model.IIFType(txnIIFType),
			ReferenceNumber: txnReference,
		})
		if err != nil {
			return err
		}

		audit.New(st, "cli").Info(ctx, "transactions", "transaction_created", txn.EntitySlug, map[string]any{
			"transaction_id": txn.ID,
			"amount":         txn.Amount,
			"category":       txn.Category,
		})

		return printJSON(txn)
	},
}

var transactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		txns, err := st.ListTransactions(ctx, store.TransactionFilter{
			EntitySlug: txnListEntity,
			SyncStatus: model.SyncStatus(txnListSync),
			Limit:      txnListLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tDATE\tENTITY\tTYPE\tVENDOR/CUSTOMER\tAMOUNT\tCATEGORY\tSYNC")
		for _, txn := range txns {
			date := ""
			if !txn.Date.IsZero() {
				date = txn.Date.Format("2006-01-02")
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
				txn.ID, date, txn.EntitySlug, txn.Type,
				txn.VendorCustomer, txn.Amount, txn.Category, txn.SyncStatus,
			)
		}
		return w.Flush()
	},
}

var learnVendorCategory string

var transactionsLearnCmd = &cobra.Command{
	Use:   "learn <vendor>",
	Short: "Save a vendor-to-category mapping for future auto-categorization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		categorizer := categorize.New(st, nil, "")
		if err := categorizer.LearnVendor(ctx, args[0], learnVendorCategory); err != nil {
			return err
		}
		fmt.Printf("learned: %s -> %s\n", args[0], learnVendorCategory)
		return nil
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	transactionsAddCmd.Flags().StringVar(&txnEntity, "entity", "", "entity slug (required)")
	transactionsAddCmd.Flags().StringVar(&txnType, "type", "expense", "transaction type: expense or income")
	transactionsAddCmd.Flags().StringVar(&txnDate, "date", "", "transaction date (YYYY-MM-DD)")
	transactionsAddCmd.Flags().StringVar(&txnVendor, "vendor", "", "vendor or customer name")
	transactionsAddCmd.Flags().StringVar(&txnDescription, "description", "", "description / memo")
	transactionsAddCmd.Flags().Float64Var(&txnAmount, "amount", 0, "amount in dollars (required)")
	transactionsAddCmd.Flags().StringVar(&txnCategory, "category", "", "Schedule F category slug (auto-categorized when empty)")
	transactionsAddCmd.Flags().StringVar(&txnIIFType, "iif-type", "", "QuickBooks type: bill, check, or deposit")
	transactionsAddCmd.Flags().StringVar(&txnReference, "reference", "", "invoice or check number")
	transactionsAddCmd.Flags().StringVar(&txnDocumentID, "document", "", "source document ID")
	_ = transactionsAddCmd.MarkFlagRequired("entity")
	_ = transactionsAddCmd.MarkFlagRequired("amount")

	transactionsListCmd.Flags().StringVar(&txnListEntity, "entity", "", "filter by entity slug")
	transactionsListCmd.Flags().StringVar(&txnListSync, "sync", "", "filter by sync status")
	transactionsListCmd.Flags().IntVar(&txnListLimit, "limit", 50, "max rows")

	transactionsLearnCmd.Flags().StringVar(&learnVendorCategory, "category", "", "Schedule F category slug (required)")
	_ = transactionsLearnCmd.MarkFlagRequired("category")

	transactionsCmd.AddCommand(transactionsAddCmd)
	transactionsCmd.AddCommand(transactionsListCmd)
	transactionsCmd.AddCommand(transactionsLearnCmd)
	rootCmd.AddCommand(transactionsCmd)
}
