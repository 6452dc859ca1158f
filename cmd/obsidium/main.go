package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidium-dev/obsidium/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "obsidium",
		Short: "A Minecraft Java Edition protocol server",
		Long: `Obsidium speaks the Minecraft Java Edition protocol.

It answers server list pings, logs players in (offline or online mode,
with encryption and compression), runs the configuration phase and
places players in a flat world. Game connections are accepted over TCP,
and optionally over a WebSocket bridge and QUIC.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		pingCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.Format(err))
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
