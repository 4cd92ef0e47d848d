package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tomgun/saktris-game-sub005/internal/ui"
	"github.com/tomgun/saktris-game-sub005/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "saktris",
	Short:   "Play Saktris head to head over a direct peer-to-peer connection",
	Long:    `Saktris connects two players directly using WebRTC technology. One player hosts a room and shares the code, the other joins with it; after the handshake every move travels peer to peer with no server in the middle.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
