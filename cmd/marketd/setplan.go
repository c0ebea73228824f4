package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marketdash/marketd/pkg/config"
	"github.com/marketdash/marketd/pkg/store"
)

// setPlanCmd switches a user between Free and Pro. There is no self-service
// upgrade endpoint; plan changes are an operator action.
func setPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-plan <email> <Free|Pro>",
		Short: "Change a user's plan tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]

			var plan string
			switch strings.ToLower(args[1]) {
			case "free":
				plan = "Free"
			case "pro":
				plan = "Pro"
			default:
				return fmt.Errorf("unknown plan %q (want Free or Pro)", args[1])
			}

			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			users, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer users.Close()

			if err := users.UpdatePlan(context.Background(), email, plan); err != nil {
				return err
			}

			fmt.Printf("%s is now on the %s plan\n", email, plan)
			return nil
		},
	}
}
