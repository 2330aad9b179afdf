// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// printBanner prints a command title followed by dimmed detail lines
func printBanner(title string, details ...string) {
	fmt.Println(titleStyle.Render("GECOSTAT - " + strings.ToUpper(title)))
	for _, d := range details {
		fmt.Println(headerStyle.Render(d))
	}
	fmt.Println()
}

// printFrameError prints a frame error in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s %v\n", timestamp, errorStyle.Render("FRAME ERROR:"), err)
}

// printMessage prints a frame with its function name highlighted
func printMessage(msg *geco.Message) {
	lines := strings.SplitN(geco.FormatMessage(msg), "\n", 2)
	fmt.Println(labelStyle.Render(lines[0]))
	if len(lines) > 1 {
		fmt.Print(headerStyle.Render(strings.TrimSuffix(lines[1], "\n")))
		fmt.Println()
	}
}

// renderReadings boxes a register table
func renderReadings(title string, readings geco.Readings) string {
	if len(readings) == 0 {
		return warningStyle.Render(title + ": no registers decoded")
	}
	body := strings.TrimSuffix(geco.FormatReadings(readings), "\n")
	return labelStyle.Render(fmt.Sprintf("%s (%d):", title, len(readings))) + "\n" + boxStyle.Render(body)
}

// renderStatistics boxes the statistics summary
func renderStatistics(stats *geco.Statistics) string {
	body := strings.TrimSuffix(stats.String(), "\n")
	if stats.Errors() > 0 {
		return boxStyle.BorderForeground(lipgloss.Color("9")).Render(body)
	}
	return boxStyle.Render(body)
}
