package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pinlock-app/pinlock/internal/cli"
	"github.com/pinlock-app/pinlock/pkg/audit"
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List stored vaults",
	Long: `Lists stored vaults. An optional glob pattern filters by name:

  pinlock list
  pinlock list 'iOS*'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaults, err := st.ListVaults(cmd.Context(), ownerID())
		if err != nil {
			return err
		}

		if len(args) == 1 {
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
			filtered := vaults[:0]
			for _, v := range vaults {
				if keep[v.Name] {
					filtered = append(filtered, v)
				}
			}
			vaults = filtered
		}

		if len(vaults) == 0 {
			fmt.Println("No vaults stored")
			return nil
		}

		for _, v := range vaults {
			fmt.Printf("%-30s created %s\n", v.Name, v.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a vault and its schedules and emergency requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		if !confirm(fmt.Sprintf("Delete vault '%s'? The passcode will be unrecoverable", v.Name)) {
			fmt.Println("Aborted")
			return nil
		}

		if err := st.DeleteVault(cmd.Context(), ownerID(), v.ID); err != nil {
			return err
		}
		recordAudit(func() error { return auditLog.LogSuccess(audit.OpVaultDelete, v.Name) })
		fmt.Printf("Vault '%s' deleted\n", v.Name)
		return nil
	},
}
