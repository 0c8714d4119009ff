package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/bus"
	"github.com/sells-group/agentt/internal/iif"
)

var approveDecision string

// approveCmd records an approval decision for a transaction and dispatches
// it through the event bus, so an approved transaction gets its IIF file the
// same way it would in the running agent.
var approveCmd = &cobra.Command{
	Use:   "approve <transaction-id>",
	Short: "Record an approval decision for a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		txn, err := st.GetTransaction(ctx, args[0])
		if err != nil {
			return err
		}

		auditLog := audit.New(st, "cli")
		b := bus.New()
		iif.NewGenerator(st, auditLog, cfg.IIF.OutputDir).Setup(b)

		approvalID := uuid.NewString()
		auditLog.Info(ctx, "approvals", "approval_decided", txn.EntitySlug, map[string]any{
			"approval_id":    approvalID,
			"transaction_id": txn.ID,
			"decision":       approveDecision,
		})

		b.Emit(bus.Event{
			Name: bus.EventApprovalDecided,
			Data: bus.ApprovalDecided{
				ApprovalID:    approvalID,
				Decision:      approveDecision,
				EntitySlug:    txn.EntitySlug,
				TransactionID: txn.ID,
			},
		})

		fmt.Printf("%s: %s\n", txn.ID, approveDecision)
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveDecision, "decision", "approved", "approved or rejected")
	rootCmd.AddCommand(approveCmd)
}
