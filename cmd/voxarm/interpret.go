package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cjeanneret/VoxArm/internal/logic/command"
)

var (
	actionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type InterpretCommand struct {
	JSON bool `long:"json" description:"Print one JSON object per utterance"`
}

// interpretation is the JSON form of one interpreted utterance.
type interpretation struct {
	Text   string         `json:"text"`
	Action string         `json:"action"`
	Params command.Params `json:"params"`
}

func (c *InterpretCommand) Execute(args []string) error {
	if len(args) == 0 {
		return errors.New("give at least one utterance, e.g. voxarm interpret \"rotate red 90 degrees\"")
	}
	return c.interpret(stdout, args)
}

func (c *InterpretCommand) interpret(w io.Writer, utterances []string) error {
	enc := json.NewEncoder(w)
	for _, text := range utterances {
		action, params := command.Interpret(text)
		if c.JSON {
			if err := enc.Encode(interpretation{Text: text, Action: action.String(), Params: params}); err != nil {
				return err
			}
			continue
		}

		style := actionStyle
		if action == command.Unrecognized {
			style = unknownStyle
		}
		line := fmt.Sprintf("%-40q %s", text, style.Render(action.String()))
		if p := params.String(); p != "" {
			line += " " + p
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}
