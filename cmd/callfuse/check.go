package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"callfuse/internal/driver"
	"callfuse/internal/ir"
)

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Parse and validate IR modules without transforming them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path, _, err := resolveInputPath(args)
	if err != nil {
		return err
	}
	files, err := collectInputs(path)
	if err != nil {
		return err
	}

	failed := 0
	for _, file := range files {
		if err := checkOne(file); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if !quiet(cmd) {
			line := fmt.Sprintf("%s: ok", file)
			if useColor(cmd, os.Stderr) {
				line = color.New(color.FgGreen).Sprint(line)
			}
			fmt.Fprintln(os.Stderr, line)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(files))
	}
	return nil
}

func checkOne(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := ir.Parse(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := ir.Validate(m); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// collectInputs expands a directory argument into its .cir files; a plain
// file is returned as-is.
func collectInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := driver.ListFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .cir files under %q", path)
	}
	return files, nil
}
