package main

import (
	"fmt"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/memstat"
	"github.com/ajitpratap0/econdash/pkg/presentation"
)

type memReport struct {
	Usage   memstat.Usage         `json:"usage"`
	Tuned   bool                  `json:"tuned"`
	Loaded  []string              `json:"loaded,omitempty"`
	Caches  presentation.Stats    `json:"caches"`
	Compact *memstat.CompactStats `json:"compact,omitempty"`
}

func newMemCmd(a *app) *cobra.Command {
	var compact, tune, clear bool
	cmd := &cobra.Command{
		Use:   "mem [csv...]",
		Short: "Report process memory usage",
		Long: `Report process memory usage. CSV files given as arguments are loaded
through the cached reader first, so the report reflects them and
--clear-caches has something to release.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter, err := memstat.NewReporter(memstat.Options{
				Caches: a.caches,
				Logger: a.log.Named("memstat"),
			})
			if err != nil {
				return err
			}

			report := memReport{}
			readCSV := a.csvReader(frame.CSVOptions{})
			for _, path := range args {
				if _, err := readCSV(path); err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				report.Loaded = append(report.Loaded, filepath.Base(path))
			}
			if tune {
				report.Tuned = reporter.TuneRuntime(memstat.TuneOptions{
					GCPercent:     a.cfg.Memory.GCPercent,
					MemoryLimitMB: int64(a.cfg.Memory.MemoryLimitMB),
				})
			}
			if clear {
				reporter.ClearCaches()
			}
			if compact {
				stats := reporter.Compact()
				report.Compact = &stats
			}

			report.Caches = a.caches.Stats()
			report.Usage, err = reporter.Usage(cmd.Context())
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&tune, "tune", false, "Apply the configured GC percent and memory limit first")
	cmd.Flags().BoolVar(&clear, "clear-caches", false, "Clear the presentation caches, including files loaded by this command")
	cmd.Flags().BoolVar(&compact, "compact", false, "Force a collection and release memory to the OS first")
	return cmd
}
