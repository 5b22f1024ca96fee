package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewbase/lifecycle-engine/internal/model"
)

var (
	onboardName  string
	onboardUser  string
	onboardOwner string
)

var onboardCmd = &cobra.Command{
	Use:   "onboard <contractor-id>",
	Short: "Register a contractor and seed onboarding steps and document slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Engine.StartOnboarding(cmd.Context(), model.Contractor{
			ID:             args[0],
			DisplayName:    onboardName,
			UserID:         onboardUser,
			AccountOwnerID: onboardOwner,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "onboarding started for %s (%d items seeded)\n", args[0], n)
		return nil
	},
}

func init() {
	onboardCmd.Flags().StringVar(&onboardName, "name", "", "contractor display name")
	onboardCmd.Flags().StringVar(&onboardUser, "user", "", "contractor's user ID for notification routing")
	onboardCmd.Flags().StringVar(&onboardOwner, "owner", "", "account owner user ID for admin notifications")
	rootCmd.AddCommand(onboardCmd)
}
