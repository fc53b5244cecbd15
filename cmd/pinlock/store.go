package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/flow"
	"github.com/pinlock-app/pinlock/pkg/script"
)

var (
	instructionColor = color.New(color.FgCyan, color.Bold)
	stepColor        = color.New(color.FgYellow)
	successColor     = color.New(color.FgGreen)
	dangerColor      = color.New(color.FgRed)
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Generate a passcode and store it behind entry obfuscation",
	Long: `Generates a random 4-digit passcode and presents a sequence of entry
instructions to follow on the target device. You will never see the full
passcode. The sequence runs twice (entry, then verification); afterwards the
passcode is encrypted under a master password and saved.

Follow each instruction literally on the device, including the decoy digits
and deletions. Press Enter after completing each step, or 'r' to start over
with a brand-new passcode.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := flow.NewEntryFlow(st, script.NewGenerator(), ownerID())

		fmt.Print("Vault name: ")
		name, err := readLine()
		if err != nil {
			return err
		}
		if err := f.SubmitName(name); err != nil {
			return err
		}

		fmt.Println()
		instructionColor.Println("Entry sequence. Follow each step on your device.")
		if err := presentScripts(f); err != nil {
			return err
		}

		fmt.Println()
		for {
			password, err := promptPassword("Master password (min 6 characters): ")
			if err != nil {
				return err
			}
			if err := f.SubmitMasterPassword(password); err != nil {
				dangerColor.Println(err)
				continue
			}
			break
		}
		for {
			confirmation, err := promptPassword("Confirm master password: ")
			if err != nil {
				return err
			}
			v, err := f.ConfirmMasterPassword(cmd.Context(), confirmation)
			if errors.Is(err, flow.ErrMasterMismatch) {
				dangerColor.Println("Master passwords do not match. Please try again.")
				continue
			}
			if err != nil {
				recordAudit(func() error {
					return auditLog.LogError(audit.OpVaultStore, name, "storage", err.Error())
				})
				return err
			}
			recordAudit(func() error { return auditLog.LogSuccess(audit.OpVaultStore, v.Name) })
			successColor.Printf("Vault '%s' stored. The passcode is now locked away.\n", v.Name)
			return nil
		}
	},
}

// presentScripts walks both instruction scripts to completion.
func presentScripts(f *flow.EntryFlow) error {
	for f.State() == flow.EntryPresentingInstructions || f.State() == flow.EntryPresentingVerification {
		if f.State() == flow.EntryPresentingVerification {
			step, _ := f.Step()
			if step == 0 {
				fmt.Println()
				instructionColor.Println("Verification sequence. Repeat the process once more.")
			}
		}

		cur, err := f.Current()
		if err != nil {
			return err
		}
		step, total := f.Step()
		stepColor.Printf("[%d/%d] ", step+1, total)

		switch cur.Kind {
		case script.KindWait:
			fmt.Printf("Wait %d seconds", cur.Seconds)
			deadline, err := f.BeginWait(time.Now())
			if err != nil {
				return err
			}
			for remaining := time.Until(deadline); remaining > 0; remaining = time.Until(deadline) {
				fmt.Printf("\rWait %d seconds... %d  ", cur.Seconds, int(remaining.Seconds())+1)
				time.Sleep(250 * time.Millisecond)
			}
			fmt.Println("\rWait complete.          ")
			if err := f.CompleteWait(time.Now()); err != nil {
				return err
			}
		case script.KindDigit:
			fmt.Printf("Enter the digit %c\n", cur.Digit)
			if err := confirmStep(f); err != nil {
				return err
			}
		case script.KindDelete:
			fmt.Println("Delete the last digit")
			if err := confirmStep(f); err != nil {
				return err
			}
		case script.KindDistraction:
			fmt.Println(cur.Message)
			if err := confirmStep(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// confirmStep waits for Enter, handling the reset request.
func confirmStep(f *flow.EntryFlow) error {
	fmt.Print("  done? (Enter to continue, r to restart): ")
	response, err := readLine()
	if err != nil {
		return err
	}
	if response == "r" || response == "R" {
		if err := f.Reset(); err != nil {
			return err
		}
		fmt.Println()
		instructionColor.Println("Starting over with a new passcode.")
		return nil
	}
	return f.Confirm()
}
