package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/preset"
)

var (
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

type PresetsCommand struct{}

func (c *PresetsCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := newPresetStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return listPresets(ctx, stdout, store)
}

// listPresets prints one row per preset with the angle of every joint.
func listPresets(ctx context.Context, w io.Writer, store preset.Store) error {
	names, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list presets: %w", err)
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "no presets saved")
		return nil
	}

	headers := []string{"Preset"}
	for _, j := range arm.AllJoints() {
		headers = append(headers, j.String())
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		pose, err := store.Load(ctx, name)
		if err != nil {
			return fmt.Errorf("load preset %s: %w", name, err)
		}
		row := []string{name}
		for _, j := range arm.AllJoints() {
			row = append(row, strconv.Itoa(pose.Angle(j)))
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return tableNameStyle
			default:
				return tableCellStyle
			}
		})
	fmt.Fprintln(w, t.Render())
	return nil
}
