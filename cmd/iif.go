package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/agentt/internal/audit"
	"github.com/sells-group/agentt/internal/iif"
)

var iifCmd = &cobra.Command{
	Use:   "iif",
	Short: "Generate QuickBooks IIF import files",
}

var iifGenerateCmd = &cobra.Command{
	Use:   "generate <transaction-id>",
	Short: "Write an IIF file for one transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := iif.NewGenerator(st, audit.New(st, "cli"), cfg.IIF.OutputDir)
		path, err := g.Generate(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var iifBatchCmd = &cobra.Command{
	Use:   "batch <transaction-id>...",
	Short: "Write one IIF file for several transactions of the same entity",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := iif.NewGenerator(st, audit.New(st, "cli"), cfg.IIF.OutputDir)
		path, err := g.GenerateBatch(ctx, args)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var iifPreviewCmd = &cobra.Command{
	Use:   "preview <transaction-id>",
	Short: "Print the IIF content without writing or marking anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		g := iif.NewGenerator(st, audit.New(st, "cli"), cfg.IIF.OutputDir)
		content, err := g.Preview(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	},
}

func init() {
	iifCmd.AddCommand(iifGenerateCmd)
	iifCmd.AddCommand(iifBatchCmd)
	iifCmd.AddCommand(iifPreviewCmd)
	rootCmd.AddCommand(iifCmd)
}
