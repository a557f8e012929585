package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"callfuse/internal/driver"
	"callfuse/internal/observ"
)

var optCmd = &cobra.Command{
	Use:   "opt [flags] [path]",
	Short: "Merge duplicate calls in IR modules",
	Long:  "Rewrite one .cir file or every .cir file under a directory so that repeated calls to the same callee share a single call site.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOpt,
}

func init() {
	optCmd.Flags().StringP("output", "o", "", "output file (single input) or directory (directory input); default stdout")
	optCmd.Flags().Bool("dry-run", false, "transform and report statistics without writing output")
	optCmd.Flags().Int("jobs", 0, "parallel workers for directory runs (0 = auto)")
	optCmd.Flags().Bool("no-cache", false, "bypass the disk cache")
	optCmd.Flags().String("ui", "auto", "interactive progress for directory runs (auto|on|off)")
}

func runOpt(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	path, manifest, err := resolveInputPath(args)
	if err != nil {
		return err
	}
	if manifest != nil {
		if jobs == 0 {
			jobs = manifest.Config.Opt.Jobs
		}
		if manifest.Config.Opt.Cache != nil && !*manifest.Config.Opt.Cache {
			noCache = true
		}
	}

	opts := driver.Options{Jobs: jobs}
	if !noCache {
		cache, err := driver.OpenDiskCache("callfuse")
		if err != nil {
			return fmt.Errorf("failed to open disk cache: %w", err)
		}
		opts.Cache = cache
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %w", path, err)
	}

	timer := observ.NewTimer()
	phase := timer.Begin("opt")

	var (
		results []driver.FileResult
		total   observ.Stats
	)
	if info.IsDir() {
		results, err = runOptDir(cmd, path, opts, uiModeValue)
	} else {
		var res driver.FileResult
		res, err = driver.OptimizeFile(context.Background(), path, opts)
		results = []driver.FileResult{res}
	}
	if err != nil {
		return err
	}
	for _, res := range results {
		total.Add(res.Stats)
	}
	timer.End(phase, total.String())

	if !dryRun {
		if err := writeResults(cmd, results, info.IsDir(), path, output); err != nil {
			return err
		}
	}

	if !quiet(cmd) {
		printStats(cmd, total, len(results))
	}
	if showTimings(cmd) {
		fmt.Fprint(os.Stderr, timer.Summary())
	}
	return nil
}

func runOptDir(cmd *cobra.Command, dir string, opts driver.Options, mode uiMode) ([]driver.FileResult, error) {
	files, err := driver.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .cir files under %q", dir)
	}
	if shouldUseTUI(mode) && !quiet(cmd) {
		return runOptimizeWithUI(context.Background(), "callfuse opt", files, dir, opts)
	}
	return driver.OptimizeDir(context.Background(), dir, opts)
}

// writeResults routes transformed text to stdout, a file, or a mirror
// directory tree, depending on the input shape and -o.
func writeResults(cmd *cobra.Command, results []driver.FileResult, dirInput bool, inputPath, output string) error {
	if !dirInput {
		res := results[0]
		if output == "" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), res.Output)
			return err
		}
		return os.WriteFile(output, []byte(res.Output), 0o644)
	}

	if output == "" {
		return fmt.Errorf("directory input needs -o <dir> (or --dry-run)")
	}
	for _, res := range results {
		rel, err := filepath.Rel(inputPath, res.Path)
		if err != nil {
			return err
		}
		dst := filepath.Join(output, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, []byte(res.Output), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func printStats(cmd *cobra.Command, total observ.Stats, files int) {
	line := fmt.Sprintf("%d file(s): %s", files, total)
	if useColor(cmd, os.Stderr) {
		if total.Changed() {
			line = color.New(color.FgGreen).Sprint(line)
		} else {
			line = color.New(color.Faint).Sprint(line)
		}
	}
	fmt.Fprintln(os.Stderr, line)
}
