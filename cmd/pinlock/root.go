package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pinlock-app/pinlock/internal/config"
	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var (
	pinlockDir string

	cfg      *config.Config
	st       *store.Store
	auditLog *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pinlock",
	Short: "pinlock stores a device passcode you cannot impulsively retrieve",
	Long: `pinlock generates a random device passcode, walks you through entering it
without ever showing it to you whole, and encrypts it under a master
password. Getting it back requires a typing challenge, a scheduled unlock
window, or a 24-hour emergency delay.`,
	SilenceUsage: true,
	// PersistentPreRunE initializes config, store and audit log for every
	// subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "guide" || cmd.Name() == "help" {
			return nil
		}

		dir := pinlockDir
		if dir == "" {
			var err error
			dir, err = config.DefaultDir()
			if err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load(dir)
		if err != nil {
			return err
		}

		st, err = store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		auditLog = audit.NewLogger(cfg.AuditDir(), cfg.Identity.UserID)
		if err := auditLog.LoadKey(cfg.AuditKeyPath()); err != nil {
			return err
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			st.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pinlockDir, "dir", "", "pinlock directory (default ~/.pinlock)")

	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(emergencyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(guideCmd)
	rootCmd.AddCommand(completionCmd)
}

// ownerID returns the configured local user id.
func ownerID() string {
	return cfg.Identity.UserID
}

// recordAudit writes an audit event, downgrading failures to a warning so a
// full audit disk never locks the user out of their own passcode.
func recordAudit(write func() error) {
	if err := write(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit: %v\n", err)
	}
}

// readLine reads a single line from stdin, trimming trailing newline
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	value := strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(value, "\r"), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(passwordBytes), nil
	}
	// Fallback for piped input
	return readLine()
}

// confirm asks a y/N question, defaulting to no.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	response, err := readLine()
	if err != nil {
		return false
	}
	return response == "y" || response == "Y"
}

// findVault resolves a vault by display name for the current owner.
func findVault(cmd *cobra.Command, name string) (*store.Vault, error) {
	v, err := st.GetVaultByName(cmd.Context(), ownerID(), name)
	if err != nil {
		return nil, fmt.Errorf("vault '%s' not found", name)
	}
	return v, nil
}
