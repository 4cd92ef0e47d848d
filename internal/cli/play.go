package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tomgun/saktris-game-sub005/internal/game"
	"github.com/tomgun/saktris-game-sub005/internal/lockstep"
	"github.com/tomgun/saktris-game-sub005/internal/session"
	"github.com/tomgun/saktris-game-sub005/internal/ui"
)

// readyWait bounds how long the guest waits for the seed assignment before
// giving up on the match.
const readyWait = 10 * time.Second

var (
	hostPieceStyle  = lipgloss.NewStyle().Foreground(ui.Primary).Bold(true)
	guestPieceStyle = lipgloss.NewStyle().Foreground(ui.Secondary).Bold(true)
	emptyCellStyle  = lipgloss.NewStyle().Foreground(ui.Muted)
)

// gameView drives one interactive match: it feeds player input into the
// session and prints what comes back from the peer.
type gameView struct {
	engine *game.GridEngine

	start    time.Time
	arrivals atomic.Uint64
	resyncs  atomic.Int32
	reason   atomic.Value

	done     chan struct{}
	doneOnce sync.Once
}

func newGameView(engine *game.GridEngine) *gameView {
	return &gameView{
		engine: engine,
		start:  time.Now(),
		done:   make(chan struct{}),
	}
}

func (v *gameView) events() session.Events {
	return session.Events{
		RemoteMove: func(cmd game.MoveCommand) {
			fmt.Printf("\n%s Opponent moved %s to %s\n", ui.IconPeer, cmd.From, cmd.To)
		},
		RemotePlace: func(cmd game.PlaceCommand) {
			fmt.Printf("\n%s Opponent placed piece %d on %s\n", ui.IconPeer, cmd.PieceKind, cmd.Square)
		},
		Arrival: func(draw lockstep.Draw, side game.Side) {
			v.arrivals.Add(1)
			fmt.Printf("%s Piece %d drawn for %s\n", ui.IconDice, draw.Kind+1, side)
		},
		Resynced: func() {
			v.resyncs.Add(1)
			ui.PrintWarning("board resynchronized from host")
		},
		Disconnected: func(reason string) {
			v.reason.Store(reason)
			v.doneOnce.Do(func() { close(v.done) })
		},
	}
}

// run readies up and loops on player commands until the session ends.
func (v *gameView) run(s *session.Session) error {
	defer s.Close()

	if err := v.ready(s); err != nil {
		return err
	}

	fmt.Println()
	ui.PrintSuccessf("Match started! You play as %s.", ui.BoldStyle.Render(s.Role().String()))
	printHelp()
	v.printBoard()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-v.done:
			fmt.Println()
			v.printSummary(s)
			return nil

		case line, ok := <-lines:
			if !ok {
				s.Leave()
				v.printSummary(s)
				return nil
			}
			if quit := v.dispatch(s, line); quit {
				v.printSummary(s)
				return nil
			}
		}
	}
}

// ready marks the local player ready, waiting out the seed assignment on
// the guest side.
func (v *gameView) ready(s *session.Session) error {
	deadline := time.Now().Add(readyWait)
	for {
		err := s.SetReady()
		if err == nil {
			return nil
		}
		if !errors.Is(err, session.ErrOutOfOrderProtocol) || time.Now().After(deadline) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// dispatch handles one input line. It reports whether the player quit.
func (v *gameView) dispatch(s *session.Session, line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "move", "m":
		if len(fields) != 3 {
			ui.PrintWarning("usage: move <from> <to>, e.g. move e2 e4")
			return false
		}
		v.report(s.SubmitMove(game.MoveCommand{From: fields[1], To: fields[2]}))

	case "place", "p":
		if len(fields) != 3 {
			ui.PrintWarning("usage: place <kind> <square>, e.g. place 3 d4")
			return false
		}
		kind, err := strconv.Atoi(fields[1])
		if err != nil {
			ui.PrintWarning("piece kind must be a number")
			return false
		}
		v.report(s.SubmitPlace(game.PlaceCommand{PieceKind: kind, Square: fields[2]}))

	case "board", "b":
		v.printBoard()

	case "reserve", "r":
		v.printReserves(s.Role())

	case "resign":
		s.Resign()
		return true

	case "quit", "q", "leave":
		s.Leave()
		return true

	case "help", "h", "?":
		printHelp()

	default:
		ui.PrintWarning("unknown command; type help")
	}
	return false
}

// report prints the outcome of a local command and the board after a
// successful one.
func (v *gameView) report(err error) {
	switch {
	case err == nil:
		v.printBoard()
	case errors.Is(err, session.ErrNotYourTurn):
		ui.PrintWarning("not your turn")
	case errors.Is(err, game.ErrRejected):
		ui.PrintWarning(err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		// The disconnect path prints the summary.
	default:
		ui.PrintError(err.Error())
	}
}

func (v *gameView) printBoard() {
	var b strings.Builder
	for rank := game.BoardSize; rank >= 1; rank-- {
		b.WriteString(ui.MutedStyle.Render(strconv.Itoa(rank)) + " ")
		for file := 0; file < game.BoardSize; file++ {
			square := string(rune('a'+file)) + strconv.Itoa(rank)
			kind, owner, ok := v.engine.PieceAt(square)
			switch {
			case !ok:
				b.WriteString(emptyCellStyle.Render("· "))
			case owner == game.SideHost:
				b.WriteString(hostPieceStyle.Render(strconv.Itoa(kind) + " "))
			default:
				b.WriteString(guestPieceStyle.Render(strconv.Itoa(kind) + " "))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(ui.MutedStyle.Render("  a b c d e f g h"))
	fmt.Println(ui.BoxStyle.Render(b.String()))
	fmt.Printf("%s %s to move\n", ui.IconGame, v.engine.CurrentTurnOwner())
}

func (v *gameView) printReserves(local game.Side) {
	mine := v.engine.Reserve(local)
	theirs := v.engine.Reserve(local.Opponent())
	fmt.Printf("%s Your reserve: %v  Opponent: %d pieces\n", ui.IconDice, mine, len(theirs))
}

func (v *gameView) printSummary(s *session.Session) {
	outcome := "session closed"
	if r, ok := v.reason.Load().(string); ok {
		outcome = r
	}

	fmt.Println()
	ui.RenderSessionSummary(ui.IconGame+" Match Summary", ui.SessionSummary{
		Role:     s.Role().String(),
		Outcome:  outcome,
		Turns:    v.engine.TurnIndex(),
		Arrivals: v.arrivals.Load(),
		Resyncs:  int(v.resyncs.Load()),
		Duration: fmt.Sprintf("%.0f seconds", time.Since(v.start).Seconds()),
	})
}

func printHelp() {
	fmt.Println(ui.MutedStyle.Render(`Commands:
  move <from> <to>     move your piece, e.g. move e2 e4
  place <kind> <sq>    place a reserve piece, e.g. place 3 d4
  board                show the board
  reserve              show piece reserves
  resign               resign the match
  quit                 leave the match`))
}
