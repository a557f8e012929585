package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"callfuse/internal/ir"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Parse IR modules and print them in canonical form",
	Long:  "Parse .cir input and reprint it with positional register and block names, without running any transform. Useful for diffing against opt output.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	path, _, err := resolveInputPath(args)
	if err != nil {
		return err
	}
	files, err := collectInputs(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		m, err := ir.Parse(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if len(files) > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "; %s\n", file)
		}
		if err := ir.Fprint(out, m); err != nil {
			return err
		}
	}
	return nil
}
