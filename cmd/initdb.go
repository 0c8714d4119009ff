package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agentt/internal/config"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the database schema and seed entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		entities, err := config.LoadEntities(cfg.Entities.Path)
		if err != nil {
			return err
		}
		for _, e := range entities {
			if err := st.UpsertEntity(ctx, e); err != nil {
				return eris.Wrapf(err, "seed entity %s", e.Slug)
			}
			zap.L().Info("entity seeded", zap.String("slug", e.Slug), zap.String("name", e.Name))
		}

		fmt.Printf("schema migrated, %d entities seeded\n", len(entities))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}
