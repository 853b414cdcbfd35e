// Package command maps recognised speech to a typed action.
//
// Matching is deliberately loose: a template matches when each of its fixed
// words occurs anywhere in the utterance, in any order, so stray words from
// the speech recogniser do not break a command.
package command

import (
	"slices"
	"strings"
)

// Action is the interpreted intent of an utterance.
type Action int

const (
	Unrecognized Action = iota
	PickPlace
	Rotate
	Parallel
	SavePreset
	LoadPreset
	Exit
)

var actionNames = [...]string{
	Unrecognized: "unrecognized",
	PickPlace:    "pick_place",
	Rotate:       "rotate",
	Parallel:     "parallel",
	SavePreset:   "save_preset",
	LoadPreset:   "load_preset",
	Exit:         "exit",
}

// String returns the action name. Motion actions share their name with the
// built-in program they run.
func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unrecognized"
}

// IsMotion reports whether the action runs a built-in motion program.
func (a Action) IsMotion() bool {
	return a == PickPlace || a == Rotate || a == Parallel
}

// Color is an object color the arm can be asked about.
type Color string

const (
	Red  Color = "red"
	Blue Color = "blue"
)

// Vocabulary is the closed set of recognised colors.
var Vocabulary = []Color{Red, Blue}

// Params carries the arguments of an action. Which fields are set depends
// on the action: Color1 and Color2 for two-object gestures, Color for
// single-object gestures, Name for preset actions.
type Params struct {
	Color1 Color  `json:"color1,omitempty"`
	Color2 Color  `json:"color2,omitempty"`
	Color  Color  `json:"color,omitempty"`
	Name   string `json:"name,omitempty"`
}

// String renders the parameters for announcements and logs.
func (p Params) String() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Color1 != "" && p.Color2 != "":
		return string(p.Color1) + " and " + string(p.Color2)
	case p.Color != "":
		return string(p.Color)
	}
	return ""
}

const (
	savePrefix = "save preset "
	loadPrefix = "load preset "
)

type template struct {
	action Action
	words  []string
	colors int
}

// templates are tried in order; the first one whose words and color
// requirement are met wins.
var templates = []template{
	{action: PickPlace, words: strings.Fields("pick up and put over"), colors: 2},
	{action: Rotate, words: strings.Fields("rotate 90 degrees"), colors: 1},
	{action: Parallel, words: strings.Fields("place parallel to"), colors: 2},
}

// Interpret parses an utterance. It never fails: text that matches nothing
// yields Unrecognized with empty Params.
func Interpret(text string) (Action, Params) {
	text = strings.ToLower(strings.TrimSpace(text))

	// Bare "save preset" or "load preset" after trimming still counts, with
	// an empty name.
	padded := text + " "
	switch {
	case strings.HasPrefix(padded, savePrefix):
		return SavePreset, Params{Name: strings.TrimSpace(text[len(savePrefix)-1:])}
	case strings.HasPrefix(padded, loadPrefix):
		return LoadPreset, Params{Name: strings.TrimSpace(text[len(loadPrefix)-1:])}
	}

	if isExit(text) {
		return Exit, Params{}
	}

	for _, t := range templates {
		if !containsAll(text, t.words) {
			continue
		}
		found := colorsByOccurrence(text)
		switch {
		case t.colors == 2 && len(found) == 2:
			return t.action, Params{Color1: found[0], Color2: found[1]}
		case t.colors == 1 && len(found) == 1:
			return t.action, Params{Color: found[0]}
		}
	}
	return Unrecognized, Params{}
}

func isExit(text string) bool {
	if strings.Contains(text, "shut down") {
		return true
	}
	for _, w := range strings.Fields(text) {
		if w == "exit" || w == "shutdown" {
			return true
		}
	}
	return false
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// colorsByOccurrence returns the vocabulary colors present in text, ordered
// by where each first appears.
func colorsByOccurrence(text string) []Color {
	type hit struct {
		color Color
		at    int
	}
	var hits []hit
	for _, c := range Vocabulary {
		if i := strings.Index(text, string(c)); i >= 0 {
			hits = append(hits, hit{c, i})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int { return a.at - b.at })
	out := make([]Color, len(hits))
	for i, h := range hits {
		out[i] = h.color
	}
	return out
}
