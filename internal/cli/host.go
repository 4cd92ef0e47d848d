package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomgun/saktris-game-sub005/internal/config"
	"github.com/tomgun/saktris-game-sub005/internal/game"
	"github.com/tomgun/saktris-game-sub005/internal/session"
	"github.com/tomgun/saktris-game-sub005/internal/ui"
)

var (
	flagDomain   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Host a new game and wait for an opponent",
	Long: `Host a new game room. The relay assigns a short code to share with
your opponent; once they join, the match runs directly peer to peer.

Examples:
  saktris host
  saktris host --domain play.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostGame()
	},
}

func hostGame() error {
	cfg, err := config.Load(config.Options{
		Domain:     flagDomain,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	defer stopSpinner()

	engine := game.NewGridEngine()
	view := newGameView(engine)

	var stopWaiting func()
	connector := &session.Connector{
		Config: cfg,
		RoomCode: func(code string) {
			stopSpinner()
			ui.RenderRoomInfo(code, cfg.Domain)
			fmt.Println()
			stopWaiting = ui.RunWaitingSpinner("Waiting for opponent to join...")
		},
	}

	s, err := connector.Host(context.Background(), engine, view.events())
	if stopWaiting != nil {
		stopWaiting()
	}
	if err != nil {
		return err
	}

	ui.PrintSuccess("Opponent connected!")
	return view.run(s)
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Custom relay domain")
	hostCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	hostCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	hostCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	hostCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
}
