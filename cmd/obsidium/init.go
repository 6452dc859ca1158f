package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/obsidium-dev/obsidium/internal/config"
	"github.com/obsidium-dev/obsidium/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		force  bool
		motd   string
		sqlite bool
	)

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a default obsidium.json",
		Long: `Write an obsidium.json with default settings.

Examples:
  obsidium init
  obsidium init ./server --sqlite --motd "My server"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if config.Exists(dir) && !force {
				return errors.New("E104").WithDetail(filepath.Join(dir, config.ConfigFileName))
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.New("E103").Wrap(err)
			}

			cfg := config.New()
			if motd != "" {
				cfg.Server.MOTD = motd
			}
			if sqlite {
				cfg.World = config.WorldConfig{Backend: config.BackendSQLite, Path: "world.db"}
				cfg.Bans = config.BansConfig{Backend: config.BackendSQLite, Path: "bans.db"}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			path := filepath.Join(dir, config.ConfigFileName)
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			success("Wrote %s", path)
			info("Start the server with: obsidium serve --config %s", dir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&motd, "motd", "", "Server list description")
	cmd.Flags().BoolVar(&sqlite, "sqlite", false, "Store the world and bans in SQLite")

	return cmd
}
