package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how pinlock works",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(guideText)
	},
}

const guideText = `How pinlock works

1. Storing a passcode (pinlock store)
   pinlock generates a random 4-digit passcode and never shows it to you.
   Instead it presents a sequence of instructions to perform on the target
   device: enter a digit, delete a digit, wait, or a short distraction. The
   sequence mixes decoy digits with real ones, so you cannot tell which
   digits survive. Followed literally, the sequence leaves exactly the
   generated passcode entered on the device. It runs twice so the device can
   confirm the passcode, then the passcode is encrypted under a master
   password you choose and saved locally.

2. Retrieving it (pinlock retrieve)
   Retrieval is deliberately slow. By default you must retype one or more
   passages exactly before the master password prompt appears. Two ways
   around the challenge exist:

   - Scheduled windows (pinlock schedule): weekly time ranges in which the
     challenge is waived. Useful for a planned routine, like changing the
     passcode every Sunday morning.

   - Emergency access (pinlock emergency, or Ctrl+E during the challenge):
     files a request that matures after a delay (default 24 hours). Once
     matured, the challenge is waived until the request is used or
     cancelled.

   Either way, the master password is always required; pinlock never stores
   it.

3. Everything is local
   The encrypted passcode, schedules, requests and audit log live under
   ~/.pinlock. Export a vault with pinlock export; the artifact stays
   encrypted and still needs the master password.
`
