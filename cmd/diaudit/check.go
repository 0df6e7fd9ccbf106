package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"diaudit/internal/air"
	"diaudit/internal/aircompat"
	"diaudit/internal/cache"
	"diaudit/internal/config"
	"diaudit/internal/definiteinit"
	"diaudit/internal/diagfmt"
	"diaudit/internal/scheduler"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

var checkCmd = &cobra.Command{
	Use:   "check <file.air>",
	Short: "Run definite-initialization checking over an air module",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	checkCmd.Flags().Int("jobs", 0, "max parallel workers across functions (0=auto)")
	checkCmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	checkCmd.Flags().Bool("copy-addr-forwarding", false, "allow load promotion across a reaching copy_addr (experimental)")
	checkCmd.Flags().Int("max-diagnostics", 64, "maximum diagnostics reported per function")
	checkCmd.Flags().Bool("disk-cache", false, "skip functions whose fingerprint is already cached")
	checkCmd.Flags().String("cache-dir", ".diaudit-cache", "directory for --disk-cache's on-disk entries")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	withNotes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return err
	}
	fullpath, err := cmd.Flags().GetBool("fullpath")
	if err != nil {
		return err
	}
	copyAddrForwarding, err := cmd.Flags().GetBool("copy-addr-forwarding")
	if err != nil {
		return err
	}
	maxDiagnostics, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return err
	}
	useDiskCache, err := cmd.Flags().GetBool("disk-cache")
	if err != nil {
		return err
	}
	cacheDir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return err
	}
	colorMode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load diaudit.toml: %w", err)
	}
	passOpts := definiteinit.Options{
		EnableCopyAddrForwarding:  copyAddrForwarding || cfg.Pass.EnableCopyAddrForwarding,
		MaxDiagnosticsPerFunction: maxDiagnostics,
	}
	if !cmd.Flags().Changed("max-diagnostics") && cfg.Pass.MaxDiagnosticsPerFunction > 0 {
		passOpts.MaxDiagnosticsPerFunction = cfg.Pass.MaxDiagnosticsPerFunction
	}

	content, err := os.ReadFile(path) // #nosec G304 -- path is caller-controlled CLI input
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	fs := source.NewFileSet()
	fs.Add(path, content, 0)

	typeInterner := types.NewInterner()
	strInterner := source.NewInterner()

	module, err := air.ParseModule(string(content), typeInterner, strInterner)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var diskCache *cache.DiskCache
	if useDiskCache || cfg.Cache.Enabled {
		dir := cacheDir
		if !cmd.Flags().Changed("cache-dir") && cfg.Cache.Dir != "" {
			dir = cfg.Cache.Dir
		}
		diskCache, err = cache.Open(dir)
		if err != nil {
			return fmt.Errorf("failed to open disk cache %s: %w", dir, err)
		}
	}

	oracle := &aircompat.DefaultOracle{Types: typeInterner}
	bag, stats, err := scheduler.RunModule(context.Background(), module, oracle, scheduler.Options{
		Pass:  passOpts,
		Jobs:  jobs,
		Cache: diskCache,
		Strs:  strInterner,
		Types: typeInterner,
	})
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	bag.Sort()

	pathMode := diagfmt.PathModeAuto
	if fullpath {
		pathMode = diagfmt.PathModeAbsolute
	}
	if !quiet || bag.HasErrors() || bag.HasWarnings() {
		switch format {
		case "json":
			if err := diagfmt.JSON(cmd.OutOrStdout(), bag, fs, diagfmt.JSONOpts{
				IncludePositions: true,
				PathMode:         pathMode,
				IncludeNotes:     withNotes,
				IncludeFixes:     true,
			}); err != nil {
				return fmt.Errorf("failed to render diagnostics as JSON: %w", err)
			}
		default:
			diagfmt.Pretty(cmd.OutOrStdout(), bag, fs, diagfmt.PrettyOpts{
				Color:     resolveColor(colorMode),
				Context:   1,
				PathMode:  pathMode,
				ShowNotes: withNotes,
				ShowFixes: true,
			})
		}
	}

	if showTimings && !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "loads promoted: %d, assigns rewritten: %d, diagnostics: %d, cache hits: %d\n",
			stats.NumLoadsPromoted.Load(), stats.NumAssignsRewritten.Load(), stats.NumDiagnostics.Load(), stats.CacheHits.Load())
	}

	if bag.HasErrors() {
		return errCheckFailed
	}
	return nil
}

// errCheckFailed is the non-nil error main's os.Exit(1) path needs once the
// diagnostics have been rendered. rootCmd does not silence errors, so cobra
// also prints this message (and the command's usage) on stderr.
var errCheckFailed = fmt.Errorf("diaudit: one or more functions failed definite-initialization checking")

func resolveColor(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "on":
		return true
	case "off":
		return false
	default:
		return !color.NoColor
	}
}
