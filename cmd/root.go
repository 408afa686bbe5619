package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/horizon-research/AriaDatasetProcessing/internal/dispatch"
	"github.com/horizon-research/AriaDatasetProcessing/internal/manifest"
	"github.com/horizon-research/AriaDatasetProcessing/internal/output"
	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

var (
	outDir       string
	workers      int
	skipExisting bool
	noVerify     bool
	timeoutSec   int
	maxFiles     int
	suffix       string
	userAgent    string
	proxyURL     string
	headers      []string
	debug        bool
)

var AriaFetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "ariafetch [manifest]",
	Short:   "Ariafetch downloads recording files referenced by a nested manifest document",
	Version: AriaFetchVersion,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		manifestPath := utils.DefaultManifestPath
		if len(args) > 0 {
			manifestPath = args[0]
		}
		doc, err := manifest.Load(manifestPath)
		if err != nil {
			output.PrintError(fmt.Sprintf("Failed to load manifest: %v", err))
			os.Exit(1)
		}
		entries := manifest.FilterEligible(manifest.FindEntries(doc), suffix)
		if len(entries) == 0 {
			output.PrintInfo(fmt.Sprintf("No %s files found in the provided manifest", suffix))
			return
		}
		found := len(entries)
		entries = manifest.Limit(entries, maxFiles)
		if len(entries) < found {
			output.PrintInfo(fmt.Sprintf("Found %d %s files, downloading first %d", found, suffix, len(entries)))
		} else {
			output.PrintInfo(fmt.Sprintf("Found %d %s files, downloading all", found, suffix))
		}

		opts := dispatch.Options{
			OutDir:       outDir,
			Workers:      workers,
			Verify:       !noVerify && !skipExisting,
			SkipExisting: skipExisting,
			ClientConfig: utils.HTTPClientConfig{
				Timeout:   time.Duration(timeoutSec) * time.Second,
				UserAgent: userAgent,
				ProxyURL:  proxyURL,
				Headers:   utils.ParseHeaderArgs(headers),
			},
		}
		if err := dispatch.Run(entries, opts); err != nil {
			fmt.Println()
			output.PrintError("Encountered failed download(s)")
			os.Exit(1)
		}
		output.PrintSuccess("All applicable files processed")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outDir, "outdir", "o", "./downloads", "Output directory for downloaded files")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 2, "Number of concurrent downloads")
	rootCmd.Flags().IntVarP(&timeoutSec, "timeout", "t", 30, "Per-request timeout in seconds")
	rootCmd.Flags().IntVarP(&maxFiles, "max-files", "n", -1, "Download first N files (-1 for all)")
	rootCmd.Flags().StringVarP(&suffix, "suffix", "s", ".vrs", "Case-insensitive filename suffix to download")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")

	// flags without shorthand
	rootCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Accept any existing file without verifying")
	rootCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Disable SHA1/size verification")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
