package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var offboardCmd = &cobra.Command{
	Use:   "offboard <contractor-id>",
	Short: "Start offboarding: seed the task checklist and notify",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.StartOffboarding(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		env.deliver(cmd.Context(), res.Notifications)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(offboardCmd)
}
