package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinlock-app/pinlock/pkg/audit"
	"github.com/pinlock-app/pinlock/pkg/store"
)

var (
	scheduleDay   string
	scheduleStart string
	scheduleEnd   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled unlock windows",
	Long: `Manages weekly unlock windows. While a window is active, retrieval skips
the typing challenge. Times are local wall-clock, HH:MM or HH:MM:SS.`,
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add [vault]",
	Short: "Add an unlock window",
	Long: `Adds a weekly unlock window to a vault:

  pinlock schedule add 'iOS Screen Time' --day wed --start 09:00 --end 17:00

A window whose end is earlier than its start never matches; windows do not
wrap past midnight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		day, err := parseWeekday(scheduleDay)
		if err != nil {
			return err
		}

		sched := &store.ScheduledUnlock{
			VaultID:   v.ID,
			OwnerID:   ownerID(),
			DayOfWeek: day,
			StartTime: normalizeTime(scheduleStart),
			EndTime:   normalizeTime(scheduleEnd),
			Enabled:   true,
		}
		if err := st.InsertSchedule(cmd.Context(), sched); err != nil {
			return err
		}
		if sched.EndTime < sched.StartTime {
			fmt.Fprintf(os.Stderr, "warning: end time is before start time; this window will never match\n")
		}

		recordAudit(func() error { return auditLog.LogSuccess(audit.OpScheduleAdd, v.Name) })
		fmt.Printf("Window added: %s %s-%s (%s)\n", day, sched.StartTime, sched.EndTime, sched.ID)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list [vault]",
	Short: "List a vault's unlock windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := findVault(cmd, args[0])
		if err != nil {
			return err
		}

		schedules, err := st.ListSchedules(cmd.Context(), ownerID(), v.ID)
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No unlock windows configured")
			return nil
		}

		for _, s := range schedules {
			state := "enabled"
			if !s.Enabled {
				state = "disabled"
			}
			fmt.Printf("%-9s %s-%s  %-8s  %s\n", s.DayOfWeek, s.StartTime, s.EndTime, state, s.ID)
		}
		return nil
	},
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable an unlock window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd, args[0], true)
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable an unlock window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd, args[0], false)
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove an unlock window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := st.DeleteSchedule(cmd.Context(), ownerID(), args[0]); err != nil {
			return err
		}
		recordAudit(func() error { return auditLog.LogSuccess(audit.OpScheduleRemove, "") })
		fmt.Println("Window removed")
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleDisableCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)

	scheduleAddCmd.Flags().StringVar(&scheduleDay, "day", "", "Day of week (sun..sat or 0..6)")
	scheduleAddCmd.Flags().StringVar(&scheduleStart, "start", "", "Start time (HH:MM or HH:MM:SS)")
	scheduleAddCmd.Flags().StringVar(&scheduleEnd, "end", "", "End time (HH:MM or HH:MM:SS)")
	scheduleAddCmd.MarkFlagRequired("day")
	scheduleAddCmd.MarkFlagRequired("start")
	scheduleAddCmd.MarkFlagRequired("end")
}

func setScheduleEnabled(cmd *cobra.Command, id string, enabled bool) error {
	if err := st.SetScheduleEnabled(cmd.Context(), ownerID(), id, enabled); err != nil {
		return err
	}
	recordAudit(func() error { return auditLog.LogSuccess(audit.OpScheduleToggle, "") })
	if enabled {
		fmt.Println("Window enabled")
	} else {
		fmt.Println("Window disabled")
	}
	return nil
}

// parseWeekday accepts day names, three-letter abbreviations and 0-6.
func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(s) {
	case "0", "sun", "sunday":
		return time.Sunday, nil
	case "1", "mon", "monday":
		return time.Monday, nil
	case "2", "tue", "tuesday":
		return time.Tuesday, nil
	case "3", "wed", "wednesday":
		return time.Wednesday, nil
	case "4", "thu", "thursday":
		return time.Thursday, nil
	case "5", "fri", "friday":
		return time.Friday, nil
	case "6", "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid day %q (use sun..sat or 0..6)", s)
	}
}

// normalizeTime appends seconds to HH:MM input.
func normalizeTime(s string) string {
	if len(s) == 5 {
		return s + ":00"
	}
	return s
}
