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
	flagJoinDomain   string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
)

var joinCmd = &cobra.Command{
	Use:     "join <room-code>",
	Aliases: []string{"j"},
	Short:   "Join a hosted game by room code",
	Long: `Join a game using the code the host shared. Codes are short and
case-insensitive.

Examples:
  saktris join AB3XK9
  saktris join ab3xk9 --domain play.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinGame(args[0])
	},
}

func joinGame(code string) error {
	cfg, err := config.Load(config.Options{
		Domain:     flagJoinDomain,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	defer stopSpinner()

	engine := game.NewGridEngine()
	view := newGameView(engine)

	connector := &session.Connector{Config: cfg}
	s, err := connector.Join(context.Background(), code, engine, view.events())
	stopSpinner()
	if err != nil {
		return err
	}

	ui.PrintSuccess("Connected to host!")
	return view.run(s)
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinDomain, "domain", "d", "", "Custom relay domain")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagJoinTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagJoinTURNPass, "turn-pass", "p", "", "TURN password")
}
