package main

import (
	"fmt"
	"os"
	"strings"
)

// uiMode selects how directory runs present progress: the Bubble Tea view,
// plain stderr lines, or whichever fits the attached terminal.
type uiMode int

const (
	uiModeAuto uiMode = iota
	uiModeOn
	uiModeOff
)

// readUIMode parses the --ui flag. An empty value counts as auto so the
// flag default and an explicit --ui= behave the same.
func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	}
	return uiModeAuto, fmt.Errorf("--ui must be auto, on, or off (got %q)", value)
}

func shouldUseTUI(mode uiMode) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	// auto: only draw the interactive view on a real terminal
	return isTerminal(os.Stdout)
}
