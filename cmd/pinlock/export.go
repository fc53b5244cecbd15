package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinlock-app/pinlock/internal/cli"
	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/export"
)

var (
	exportOutputDir string
	exportNote      string
)

var exportCmd = &cobra.Command{
	Use:   "export [pattern]",
	Short: "Export vaults to JSON artifacts",
	Long: `Exports vaults matching a name or glob pattern to JSON files. The secret
stays encrypted: opening an exported file still requires the master
password.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaults, err := st.ListVaults(cmd.Context(), ownerID())
		if err != nil {
			return err
		}

		names := make([]string, len(vaults))
		for i, v := range vaults {
			names[i] = v.Name
		}
		matched, err := cli.MatchNames(args[0], names)
		if err != nil {
			return err
		}
		keep := make(map[string]bool, len(matched))
		for _, name := range matched {
			keep[name] = true
		}

		now := time.Now()
		count := 0
		for _, v := range vaults {
			if !keep[v.Name] {
				continue
			}
			path := filepath.Join(exportOutputDir, artifactFileName(v.Name))
			artifact := export.New(v.Name, v.Secret, exportNote, now)
			if err := export.Write(path, artifact); err != nil {
				return err
			}
			recordAudit(func() error { return auditLog.LogSuccess(audit.OpExport, v.Name) })
			fmt.Printf("Exported '%s' to %s\n", v.Name, path)
			count++
		}

		fmt.Printf("%d vault(s) exported\n", count)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", ".", "Output directory")
	exportCmd.Flags().StringVar(&exportNote, "note", "", "Free-form note stored in the artifact")
}

// artifactFileName derives a safe file name from a vault name.
func artifactFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return mapped + ".pinlock.json"
}
