package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"callfuse/internal/driver"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the callfuse disk cache",
	Long:  "Drop every cached transform result. The next opt run starts cold.",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, _ []string) error {
	cache, err := driver.OpenDiskCache("callfuse")
	if err != nil {
		return fmt.Errorf("failed to open disk cache: %w", err)
	}
	if err := cache.DropAll(); err != nil {
		return fmt.Errorf("failed to drop cache: %w", err)
	}
	if !quiet(cmd) {
		fmt.Fprintln(os.Stderr, "cache dropped")
	}
	return nil
}
