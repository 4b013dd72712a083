package rules

import (
	"fmt"
	"strings"
)

// SlotID identifies a player position on the roster. The pursued player
// always occupies Pursued; pursuers are numbered from zero.
type SlotID int

const Pursued SlotID = -1

// NoMove is the target used for input that is not a square number. The
// board decides whether it is legal; Yard treats it as staying put.
const NoMove = -1

// StatusPlay is the status field of a view while the game goes on.
const StatusPlay = "Play"

func (s SlotID) IsPursued() bool {
	return s == Pursued
}

// Role is the name shown to the player occupying the slot.
func (s SlotID) Role() string {
	if s.IsPursued() {
		return "Fugitive"
	}
	return fmt.Sprintf("Detective %d", int(s))
}

// Board is the game rules engine. Implementations are not safe for
// concurrent use; callers serialize access.
type Board interface {
	// Start returns the square a player starts on.
	Start(slot SlotID) int
	// Install places a player on its starting square.
	Install(slot SlotID)
	// Erase removes a player from the board.
	Erase(slot SlotID)
	// Move applies a move and reports whether it was legal. Illegal moves
	// leave the board unchanged.
	Move(slot SlotID, target int) bool
	// Render describes the game from the player's point of view as
	// "<position>; <extra>; <status>".
	Render(slot SlotID) string
}

// View is a rendered board state split into its fields.
type View struct {
	Position string
	Extra    string
	Status   string
}

func ParseView(text string) (View, error) {
	fields := strings.SplitN(text, "; ", 3)
	if len(fields) != 3 {
		return View{}, fmt.Errorf("malformed view %q", text)
	}

	return View{
		Position: fields[0],
		Extra:    fields[1],
		Status:   fields[2],
	}, nil
}

// InPlay reports whether the game continues after this view.
func (v View) InPlay() bool {
	return v.Status == StatusPlay
}
