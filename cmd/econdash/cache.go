package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/store"
)

func newCacheCmd(a *app) *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the on-disk payload store",
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", "", "Payload store path (default from configuration)")

	open := func() (*store.Store, error) {
		path := storePath
		if path == "" {
			path = a.cfg.Cache.StorePath
		}
		if path == "" {
			return nil, fmt.Errorf("no payload store configured (cache.store_path or --store)")
		}
		return store.Open(path, store.Options{})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show stored payload counts and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode stats: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("expired payloads purged", zap.Int64("count", n), zap.String("store", st.Path()))
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired payloads\n", n)
			return nil
		},
	})
	return cmd
}
