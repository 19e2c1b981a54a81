package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stationsync/internal/mapping"
)

var checkMappingCmd = &cobra.Command{
	Use:   "check-mapping <mapping>",
	Short: "Validate a mapping file's files exist under base_dir without loading anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mapping.Load(args[0])
		if err != nil {
			return ioErr(fmt.Errorf("check-mapping: %w", err))
		}
		result := m.Check(cfg.Ingest.BaseDir.Value)
		fmt.Printf("total files: %d, missing: %d, bad-prefixed: %d\n",
			result.TotalFiles, len(result.MissingFiles), len(result.BadPrefixFiles))
		for _, f := range result.MissingFiles {
			fmt.Printf("  missing: %s\n", f)
		}
		for _, f := range result.BadPrefixFiles {
			fmt.Printf("  bad prefix: %s\n", f)
		}
		if len(result.MissingFiles) > 0 || len(result.BadPrefixFiles) > 0 {
			return ioErr(fmt.Errorf("check-mapping: %d problems found", len(result.MissingFiles)+len(result.BadPrefixFiles)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkMappingCmd)
}
