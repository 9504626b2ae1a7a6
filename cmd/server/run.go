package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/capture-engine/jobs"
)

var runNow string

func init() {
	runCmd.Flags().StringVar(&runNow, "now", "", "Evaluate the job as of this RFC 3339 instant")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobsCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var in jobs.Input
		if runNow != "" {
			t, err := time.Parse(time.RFC3339, runNow)
			if err != nil {
				return fmt.Errorf("invalid --now: %w", err)
			}
			in.Now = t
		}

		res := a.handler.Jobs.Run(cmd.Context(), args[0], in)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if res.Failed() {
			return fmt.Errorf("%s failed", args[0])
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List job names",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, name := range a.handler.Jobs.Names() {
			fmt.Println(name)
		}
		return nil
	},
}
