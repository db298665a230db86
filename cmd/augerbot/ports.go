package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/augerbot/pkg/robot"
	"github.com/gwillem/augerbot/pkg/serialport"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type PortsCommand struct {
	Prefix string `long:"prefix" description:"Device prefix to probe (default from config)"`
	Range  int    `long:"range" description:"Probe prefix0 .. prefix(N-1) (default from config)"`
	Baud   int    `long:"baud" description:"Baud rate used for probing (default from config)"`
	Save   bool   `long:"save" description:"Save the chosen port to the config file"`
}

type portRow struct {
	name   string
	listed bool
	opens  bool
}

// mergePorts combines the OS port list with the probe results, probed
// ports first.
func mergePorts(listed, probed []string) []portRow {
	var rows []portRow
	for _, name := range probed {
		rows = append(rows, portRow{name: name, listed: slices.Contains(listed, name), opens: true})
	}
	for _, name := range listed {
		if slices.Contains(probed, name) {
			continue
		}
		// Skip Bluetooth ports on macOS
		if strings.Contains(name, "Bluetooth") {
			continue
		}
		rows = append(rows, portRow{name: name, listed: true})
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func renderPorts(rows []portRow) string {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{r.name, yesNo(r.listed), yesNo(r.opens)})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "Listed", "Opens").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(rows) && rows[row].opens {
				return successStyle.Padding(0, 1)
			}
			return cellStyle
		})
	return t.Render()
}

func (c *PortsCommand) Execute(args []string) error {
	cfg, err := loadConfig(opts.Config, opts.EnvFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	prefix, searchRange, baud := cfg.Serial.Prefix, cfg.Serial.SearchRange, cfg.Serial.Baud
	if c.Prefix != "" {
		prefix = c.Prefix
	}
	if c.Range > 0 {
		searchRange = c.Range
	}
	if c.Baud > 0 {
		baud = c.Baud
	}

	fmt.Println(headerStyle.Render("Augerbot Ports"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()
	fmt.Printf("Probing %s0 .. %s%d at %d baud...\n\n", prefix, prefix, searchRange-1, baud)

	listed, err := serialport.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
	}
	probed := serialport.Discover(prefix, searchRange, baud)

	rows := mergePorts(listed, probed)
	if len(rows) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the controller is connected and powered on.")
		return nil
	}
	fmt.Println(renderPorts(rows))
	fmt.Println()

	var chosen string
	switch len(probed) {
	case 0:
		fmt.Println("No port under the prefix could be opened.")
		return nil
	case 1:
		chosen = probed[0]
	default:
		options := make([]huh.Option[string], 0, len(probed))
		for _, name := range probed {
			options = append(options, huh.NewOption(name, name))
		}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Which port is the robot controller on?").
					Description("Several ports answered").
					Options(options...).
					Value(&chosen),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Println()
			return nil
		}
	}

	fmt.Println(successStyle.Render("Controller port: ") + chosen)
	if !c.Save {
		fmt.Println(dimStyle.Render("Run with --save to store it in " + opts.Config))
		return nil
	}

	saved := robot.DefaultConfig()
	if existing, err := robot.LoadConfigFrom(opts.Config); err == nil {
		saved = *existing
	}
	saved.Serial.Port = chosen
	if err := saved.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	return nil
}
