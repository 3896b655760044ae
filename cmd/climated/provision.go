package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/climate-core/internal/device"
	"github.com/nerrad567/climate-core/internal/location"
)

// newProvisionCmd registers devices directly in the local store, for
// installs where the API is disabled.
func newProvisionCmd(configPath func() string) *cobra.Command {
	var req device.ProvisionRequest

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Register a device before its first reading",
		Example: `  climated provision --uid temp001 --label "Salon sensor" --room-name Salon
  climated provision status temp001
  climated provision move temp001 bureau`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeStore, err := openProvisioner(cmd, configPath())
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := p.Provision(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&req.UID, "uid", "", "external device identifier (required)")
	cmd.Flags().StringVar(&req.Label, "label", "", "human-readable label (required)")
	cmd.Flags().StringVar(&req.Model, "model", "", "sensor model (default "+device.DefaultModel+")")
	cmd.Flags().StringVar(&req.RoomID, "room-id", "", "place the device in an existing room")
	cmd.Flags().StringVar(&req.RoomName, "room-name", "", "place the device in a room found or created by name")
	cmd.MarkFlagsMutuallyExclusive("room-id", "room-name")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("label")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status UID",
			Short: "Show a device and its current room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, closeStore, err := openProvisioner(cmd, configPath())
				if err != nil {
					return err
				}
				defer closeStore()

				st, err := p.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			},
		},
		&cobra.Command{
			Use:   "move UID ROOM_ID",
			Short: "Place a device in another room from now on",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, closeStore, err := openProvisioner(cmd, configPath())
				if err != nil {
					return err
				}
				defer closeStore()

				placement, err := p.Move(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, placement)
			},
		},
	)
	return cmd
}

// openProvisioner opens the migrated store and returns a Provisioner over it
// with a function that closes the store.
func openProvisioner(cmd *cobra.Command, configPath string) (*device.Provisioner, func(), error) {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := openMigratedStore(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	p := device.NewProvisioner(
		device.NewSQLiteRepository(db.Sqlx()),
		location.NewSQLiteRepository(db.Sqlx()),
	)
	return p, func() { db.Close() }, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
