package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/flow"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var retrieveWait bool

// errAborted marks a user-initiated abort (Ctrl+C during the challenge).
var errAborted = errors.New("aborted")

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [name]",
	Short: "Retrieve a stored passcode through the access gate",
	Long: `Retrieves a stored passcode. Unless a scheduled unlock window is active or
an emergency request has matured, you must first complete the typing
challenge, then supply the master password.

During the challenge, Ctrl+E files an emergency access request; the passcode
becomes reachable without the challenge once the delay elapses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		f := flow.NewRetrievalFlow(st, ownerID(), cfg.Passages, cfg.Delay())
		if err := f.Load(cmd.Context(), v.ID, time.Now()); err != nil {
			return err
		}

		for {
			switch f.State() {
			case flow.RetrievalScheduled:
				successColor.Println("A scheduled unlock window is active. Typing challenge waived.")
				if err := f.ProceedToMaster(); err != nil {
					return err
				}

			case flow.RetrievalTyping:
				if err := runChallenge(cmd, f); err != nil {
					return err
				}

			case flow.RetrievalEmergencyPending:
				if err := awaitEmergency(f); err != nil {
					return err
				}
				if f.State() == flow.RetrievalEmergencyPending {
					// Not waiting; the countdown continues offline.
					return nil
				}

			case flow.RetrievalMaster:
				if err := promptMaster(cmd, f, v.Name); err != nil {
					return err
				}

			case flow.RetrievalReveal:
				return reveal(f, v.Name)

			default:
				return fmt.Errorf("unexpected state %v", f.State())
			}
		}
	},
}

func init() {
	retrieveCmd.Flags().BoolVar(&retrieveWait, "wait", false, "Stay open through an emergency countdown")
}

// runChallenge runs the typing challenge until completion or an emergency
// request. Raw mode gives per-keystroke validation; piped input falls back to
// line mode.
func runChallenge(cmd *cobra.Command, f *flow.RetrievalFlow) error {
	c := f.Challenge()
	fmt.Println()
	instructionColor.Println("Typing challenge. Type each passage exactly.")
	fmt.Println("Backspace corrects, Ctrl+E requests emergency access, Ctrl+C aborts.")

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runChallengeLines(f)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	reader := bufio.NewReader(os.Stdin)
	lastPassage := -1
	for !c.Done() {
		if c.PassageIndex() != lastPassage {
			lastPassage = c.PassageIndex()
			fmt.Printf("\r\nPassage %d of %d:\r\n%s\r\n\r\n", lastPassage+1, c.PassageCount(), c.Passage())
		}
		fmt.Printf("\r\033[K%3d%% | errors %d | %s", c.Progress(), c.Errors(), c.Buffer())

		r, _, err := reader.ReadRune()
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch r {
		case 0x03: // Ctrl+C
			fmt.Print("\r\n")
			return errAborted
		case 0x05: // Ctrl+E
			term.Restore(fd, oldState)
			fmt.Println()
			if err := requestEmergencyFromChallenge(cmd, f); err != nil {
				return err
			}
			if f.State() != flow.RetrievalTyping {
				return nil
			}
			if _, err := term.MakeRaw(fd); err != nil {
				return fmt.Errorf("failed to re-enter raw mode: %w", err)
			}
		case 0x7f, 0x08: // backspace
			c.Backspace()
		case '\r', '\n':
			// Passages contain no newlines.
		default:
			c.TypeRune(r)
		}
	}

	term.Restore(fd, oldState)
	fmt.Println()
	successColor.Printf("Challenge complete with %d errors.\n", c.Errors())
	return f.ProceedToMaster()
}

// runChallengeLines feeds whole lines through the challenge for piped input.
func runChallengeLines(f *flow.RetrievalFlow) error {
	c := f.Challenge()
	scanner := bufio.NewScanner(os.Stdin)
	for !c.Done() && scanner.Scan() {
		for _, r := range scanner.Text() {
			c.TypeRune(r)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if !c.Done() {
		return flow.ErrChallengeIncomplete
	}
	return f.ProceedToMaster()
}

// requestEmergencyFromChallenge files an emergency request mid-challenge.
func requestEmergencyFromChallenge(cmd *cobra.Command, f *flow.RetrievalFlow) error {
	if !confirm(fmt.Sprintf("Request emergency access? The passcode unlocks after %s", cfg.Delay())) {
		return nil
	}
	err := f.RequestEmergency(cmd.Context(), time.Now())
	if errors.Is(err, store.ErrActiveRequestExists) {
		dangerColor.Println("An emergency request is already pending for this vault.")
		return nil
	}
	if err != nil {
		return err
	}
	recordAudit(func() error { return auditLog.LogSuccess(audit.OpEmergencyRequest, f.Vault().Name) })
	successColor.Println("Emergency access requested.")
	return nil
}

// awaitEmergency shows the countdown, ticking through to the master step
// when --wait is set.
func awaitEmergency(f *flow.RetrievalFlow) error {
	remaining := f.Remaining(time.Now())
	fmt.Printf("Emergency access pending. Unlocks in %s.\n", formatDuration(remaining))

	if !retrieveWait {
		fmt.Println("Run again later, or use --wait to keep counting down.")
		return nil
	}

	// Remaining time is always recomputed from the stored unlock timestamp,
	// so a suspended laptop does not stretch the delay.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for now := range ticker.C {
		if f.Tick(now) {
			fmt.Print("\r\033[K")
			successColor.Println("Emergency delay elapsed.")
			return nil
		}
		fmt.Printf("\r\033[KUnlocks in %s", formatDuration(f.Remaining(now)))
	}
	return nil
}

// promptMaster asks for the master password until decryption succeeds.
func promptMaster(cmd *cobra.Command, f *flow.RetrievalFlow, name string) error {
	for {
		password, err := promptPassword("Master password: ")
		if err != nil {
			return err
		}
		if password == "" {
			return errAborted
		}

		err = f.SubmitMaster(cmd.Context(), password, time.Now())
		if errors.Is(err, flow.ErrInvalidMasterPassword) {
			recordAudit(func() error {
				return auditLog.LogError(audit.OpVaultRetrieve, name, "decrypt_failed", "invalid master password")
			})
			dangerColor.Println("Invalid master password. Please try again.")
			continue
		}
		return err
	}
}

// reveal prints the passcode and discards it once acknowledged.
func reveal(f *flow.RetrievalFlow, name string) error {
	secret, err := f.Secret()
	if err != nil {
		return err
	}
	recordAudit(func() error { return auditLog.LogSuccess(audit.OpVaultRetrieve, name) })

	fmt.Println()
	successColor.Printf("Passcode: %s\n", secret)
	fmt.Print("Press Enter to clear: ")
	readLine()

	f.Leave()
	// Scroll the passcode off a fresh screen line; it survives nowhere else.
	fmt.Print("\033[2A\033[K\n\033[K\n")
	return nil
}

// formatDuration renders a countdown as h:mm:ss.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
