package main

import (
	"log"

	"github.com/spf13/cobra"
)

var seedScenario string

func init() {
	seedCmd.Flags().StringVar(&seedScenario, "scenario", "", "Reset the database and load a demo scenario")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write rule documents and the default reward catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if seedScenario != "" {
			if err := a.handler.LoadScenarioByID(ctx, seedScenario); err != nil {
				return err
			}
			log.Printf("🌱 Loaded scenario %s", seedScenario)
		}

		// Applied after the scenario so a custom rules file wins.
		f, err := a.rulesFile()
		if err != nil {
			return err
		}
		if err := a.handler.SeedRules(ctx, f); err != nil {
			return err
		}
		log.Printf("🌱 Seeded rules and reward catalog into %s", a.cfg.DBPath)
		return nil
	},
}
