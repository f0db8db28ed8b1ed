package main

import (
	"encoding/json"
	"fmt"

	mongostore "github.com/couchcryptid/weather-station-etl/internal/store/mongo"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Declare the collection validator and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if printOnly {
				data, err := json.MarshalIndent(mongostore.JSONSchema(e.schema()), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			store, err := e.connectMongo(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close(cmd.Context()) //nolint:errcheck // best-effort disconnect
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			e.logger.Info("schema ensured", "database", e.cfg.MongoDatabase, "collection", e.cfg.MongoCollection)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the $jsonSchema validator instead of applying it")
	return cmd
}
