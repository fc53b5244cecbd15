package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Manage emergency access requests",
	Long: `Manages time-delayed emergency access. A request makes the passcode
reachable without the typing challenge once the configured delay (default
24h) has elapsed. At most one request per vault can be active.`,
}

var emergencyRequestCmd = &cobra.Command{
	Use:   "request [vault]",
	Short: "File an emergency access request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		req := &store.EmergencyRequest{
			VaultID:     v.ID,
			OwnerID:     ownerID(),
			RequestedAt: now,
			UnlockAt:    now.Add(cfg.Delay()),
		}
		err = st.InsertEmergencyRequest(cmd.Context(), req)
		if errors.Is(err, store.ErrActiveRequestExists) {
			return fmt.Errorf("an emergency request is already active for '%s'", v.Name)
		}
		if err != nil {
			return err
		}

		recordAudit(func() error { return auditLog.LogSuccess(audit.OpEmergencyRequest, v.Name) })
		fmt.Printf("Emergency access requested. Unlocks at %s.\n", req.UnlockAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

var emergencyStatusCmd = &cobra.Command{
	Use:   "status [vault]",
	Short: "Show the active emergency request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		req, err := st.LatestActiveRequest(cmd.Context(), ownerID(), v.ID)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("No active emergency request")
			return nil
		}
		if err != nil {
			return err
		}

		if remaining := time.Until(req.UnlockAt); remaining > 0 {
			fmt.Printf("Pending. Unlocks at %s (in %s).\n",
				req.UnlockAt.Local().Format("2006-01-02 15:04:05"), formatDuration(remaining))
		} else {
			successColor.Println("Ready. The typing challenge is waived until the request is used or cancelled.")
		}
		return nil
	},
}

var emergencyCancelCmd = &cobra.Command{
	Use:   "cancel [vault]",
	Short: "Cancel the active emergency request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		req, err := st.LatestActiveRequest(cmd.Context(), ownerID(), v.ID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no active emergency request for '%s'", v.Name)
		}
		if err != nil {
			return err
		}

		if err := st.CancelRequest(cmd.Context(), ownerID(), req.ID); err != nil {
			return err
		}
		recordAudit(func() error { return auditLog.LogSuccess(audit.OpEmergencyCancel, v.Name) })
		fmt.Println("Emergency request cancelled")
		return nil
	},
}

func init() {
	emergencyCmd.AddCommand(emergencyRequestCmd)
	emergencyCmd.AddCommand(emergencyStatusCmd)
	emergencyCmd.AddCommand(emergencyCancelCmd)
}
