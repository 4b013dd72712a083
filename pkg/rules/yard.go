package rules

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	StatusCaught    = "Caught"
	StatusEscaped   = "Escaped"
	StatusAbandoned = "Abandoned"
)

type YardConfig struct {
	Width        int   `yaml:"width" json:"width"`
	Height       int   `yaml:"height" json:"height"`
	PursuedStart int   `yaml:"pursuedStart" json:"pursuedStart"`
	PursuerStart int   `yaml:"pursuerStart" json:"pursuerStart"`
	MaxRounds    int   `yaml:"maxRounds" json:"maxRounds"`
	Reveals      []int `yaml:"reveals" json:"reveals"`
}

func DefaultYard() YardConfig {
	return YardConfig{
		Width:        8,
		Height:       8,
		PursuedStart: 42,
		PursuerStart: 0,
		MaxRounds:    24,
		Reveals:      []int{3, 8, 13, 18, 24},
	}
}

// Yard is a chase on a rectangular grid of squares numbered row by row.
// Every piece moves one step in any of the eight directions per round.
// The pursuers win by standing on the pursued player's square; the
// pursued player wins by surviving MaxRounds moves. Pursuers only learn
// where the pursued player is on reveal rounds.
type Yard struct {
	config YardConfig

	positions map[SlotID]int
	moves     int
	lastSeen  int
	status    string
}

var _ Board = (*Yard)(nil)

func NewYard(config YardConfig) *Yard {
	return &Yard{
		config:    config,
		positions: make(map[SlotID]int),
		lastSeen:  -1,
		status:    StatusPlay,
	}
}

func (y *Yard) Start(slot SlotID) int {
	if slot.IsPursued() {
		return y.config.PursuedStart
	}
	return y.config.PursuerStart
}

func (y *Yard) Install(slot SlotID) {
	y.positions[slot] = y.Start(slot)
}

func (y *Yard) Erase(slot SlotID) {
	if _, ok := y.positions[slot]; !ok {
		return
	}
	delete(y.positions, slot)

	if slot.IsPursued() && y.status == StatusPlay {
		y.status = StatusAbandoned
	}
}

func (y *Yard) squares() int {
	return y.config.Width * y.config.Height
}

func (y *Yard) adjacent(from, to int) bool {
	if to < 0 || to >= y.squares() || from == to {
		return false
	}

	width := y.config.Width
	dx := from%width - to%width
	dy := from/width - to/width
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1
}

func (y *Yard) Move(slot SlotID, target int) bool {
	if y.status != StatusPlay {
		return false
	}

	from, ok := y.positions[slot]
	if !ok {
		return false
	}

	if slot.IsPursued() {
		y.moves++
	}

	legal := y.adjacent(from, target)
	if legal {
		y.positions[slot] = target
	}

	if slot.IsPursued() && slices.Contains(y.config.Reveals, y.moves) {
		y.lastSeen = y.positions[slot]
	}

	return legal
}

// settle decides the outcome once all moves of a round are in.
func (y *Yard) settle() {
	if y.status != StatusPlay {
		return
	}

	pursued, ok := y.positions[Pursued]
	if !ok {
		return
	}

	for slot, position := range y.positions {
		if !slot.IsPursued() && position == pursued {
			y.status = StatusCaught
			return
		}
	}

	if y.config.MaxRounds > 0 && y.moves >= y.config.MaxRounds {
		y.status = StatusEscaped
	}
}

func (y *Yard) pursuers() string {
	slots := make([]SlotID, 0, len(y.positions))
	for slot := range y.positions {
		if !slot.IsPursued() {
			slots = append(slots, slot)
		}
	}

	if len(slots) == 0 {
		return "none"
	}

	slices.Sort(slots)
	squares := make([]string, len(slots))
	for i, slot := range slots {
		squares[i] = strconv.Itoa(y.positions[slot])
	}
	return strings.Join(squares, " ")
}

func (y *Yard) Render(slot SlotID) string {
	y.settle()

	position := "-"
	if square, ok := y.positions[slot]; ok {
		position = strconv.Itoa(square)
	}

	if slot.IsPursued() {
		return fmt.Sprintf("%s; Detectives on %s; %s", position, y.pursuers(), y.status)
	}

	seen := "unknown"
	if y.lastSeen >= 0 {
		seen = strconv.Itoa(y.lastSeen)
	}
	return fmt.Sprintf("%s; Fugitive last seen on %s; %s", position, seen, y.status)
}
