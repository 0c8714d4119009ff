package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/agentt/internal/model"
	"github.com/sells-group/agentt/internal/store"
)

var (
	docsStatus string
	docsType   string
	docsEntity string
	docsLimit  int
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect scanned documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		docs, err := st.ListDocuments(ctx, store.DocumentFilter{
			Status:       model.DocumentStatus(docsStatus),
			DocumentType: model.DocumentType(docsType),
			EntitySlug:   docsEntity,
			Limit:        docsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSCANNED\tFILENAME\tTYPE\tENTITY\tSTATUS\tOCR")
		for _, d := range docs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
				d.ID,
				d.ScannedAt.Format("2006-01-02 15:04"),
				d.OriginalFilename,
				d.DocumentType,
				d.EntitySlug,
				d.Status,
				d.OCRConfidence,
			)
		}
		return w.Flush()
	},
}

var documentsShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show one document including extracted data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		doc, err := st.GetDocument(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

func init() {
	documentsListCmd.Flags().StringVar(&docsStatus, "status", "", "filter by status")
	documentsListCmd.Flags().StringVar(&docsType, "type", "", "filter by document type")
	documentsListCmd.Flags().StringVar(&docsEntity, "entity", "", "filter by entity slug")
	documentsListCmd.Flags().IntVar(&docsLimit, "limit", 50, "max rows")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsShowCmd)
	rootCmd.AddCommand(documentsCmd)
}
