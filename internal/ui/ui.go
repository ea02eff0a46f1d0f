// Package ui provides colored terminal output for the import CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgWhite)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Header prints a banner with the given title centered.
func Header(title string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(title, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress step, e.g. "[2/4] Importing files".
func Step(current, total int, message string) {
	stepColor.Printf("[%d/%d] %s\n", current, total, message)
}

// Success prints a green checkmark line.
func Success(message string) {
	successColor.Printf("✓ %s\n", message)
}

// Info prints a plain informational line.
func Info(message string) {
	infoColor.Println(message)
}

// Warning prints a yellow warning line.
func Warning(message string) {
	warningColor.Printf("⚠ %s\n", message)
}

// Error prints a red error line.
func Error(message string) {
	errorColor.Printf("✗ %s\n", message)
}

// BlueText prints text in blue without any prefix.
func BlueText(message string) {
	stepColor.Println(message)
}

// YellowText prints text in yellow without any prefix.
func YellowText(message string) {
	warningColor.Println(message)
}

// center left-pads text so it sits in the middle of width. Text longer than
// width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return fmt.Sprintf("%s%s", strings.Repeat(" ", padding), text)
}
