package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/horizon-research/AriaDatasetProcessing/internal/fetch"
	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

type Options struct {
	OutDir       string
	Workers      int
	Verify       bool
	SkipExisting bool
	ClientConfig utils.HTTPClientConfig
	Quiet        bool // suppress the live display (used by tests)
}

// Run drains all entries through a fixed pool of workers and blocks until
// every descriptor has been processed. A failing descriptor never aborts the
// batch; Run returns an aggregate error when any descriptor failed.
func Run(entries []utils.Descriptor, opts Options) error {
	log := utils.GetLogger("dispatcher")
	numWorkers := max(1, opts.Workers)
	log.Info().Int("totalFiles", len(entries)).Int("workers", numWorkers).Msg("Initiating download")

	progressManager := NewProgressManager()
	if !opts.Quiet {
		progressManager.StartDisplay()
	}

	var wg sync.WaitGroup
	errorCh := make(chan error, len(entries))
	entriesCh := make(chan utils.Descriptor, len(entries))
	for _, entry := range entries {
		entriesCh <- entry
	}
	close(entriesCh)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger := log.With().Int("workerID", workerID).Logger()
			for entry := range entriesCh {
				if err := processEntry(entry, opts, progressManager, logger); err != nil {
					errorCh <- err
				}
			}
		}(i + 1)
	}
	wg.Wait()

	if !opts.Quiet {
		progressManager.Stop()
		progressManager.ShowSummary()
	}
	close(errorCh)
	var errs []error
	for err := range errorCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("batch completed with %d errors: %v", len(errs), errs)
	}
	return nil
}

// processEntry owns one descriptor end to end: skip decision, transfer,
// post-download verification. Panics are converted to a failed outcome at
// this boundary so sibling workers and queued entries are unaffected.
func processEntry(entry utils.Descriptor, opts Options, progressManager *ProgressManager, logger zerolog.Logger) (err error) {
	jobID := uuid.NewString()
	name := utils.SanitizeFilename(entry.Name)
	progressManager.Register(jobID, name, entry.SizeBytes)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error processing %s: panic: %v", name, r)
			progressManager.Finish(jobID, StatusFail, fmt.Sprintf("panic: %v", r))
		}
	}()

	if entry.SourceURL == "" {
		logger.Warn().Str("file", name).Msg("Manifest entry has no download URL, skipping")
		progressManager.Finish(jobID, StatusSkip, "no download_url")
		return nil
	}
	destPath := filepath.Join(opts.OutDir, name)

	if _, statErr := os.Stat(destPath); statErr == nil {
		if opts.SkipExisting {
			logger.Debug().Str("file", name).Msg("File exists, skipping without verification")
			progressManager.Finish(jobID, StatusSkip, "already exists")
			return nil
		}
		if opts.Verify {
			result, verifyErr := fetch.Verify(destPath, entry)
			if verifyErr == nil && result.Satisfied() {
				logger.Debug().Str("file", name).Msg("File exists and verified, skipping")
				progressManager.Finish(jobID, StatusSkip, "already verified")
				return nil
			}
			logger.Debug().Str("file", name).Msg("Existing file failed verification, re-fetching")
		}
	}

	client := utils.NewAriaHTTPClient(opts.ClientConfig)
	isS3 := fetch.IsS3URL(entry.SourceURL)
	var s3Client *awss3.Client
	if isS3 {
		s3Client, err = fetch.GetS3Client()
		if err != nil {
			logger.Error().Err(err).Str("file", name).Msg("S3 client setup failed")
			progressManager.Finish(jobID, StatusFail, err.Error())
			return fmt.Errorf("error preparing S3 client for %s: %v", entry.SourceURL, err)
		}
	}
	// Total bytes come from the descriptor when present, else a best-effort
	// probe, else the GET response itself (servers behind presigned URLs
	// often reject HEAD but still send a Content-Length).
	var totalFn func(int64)
	if entry.SizeBytes < 0 {
		if total := remoteSize(entry.SourceURL, client, s3Client); total > 0 {
			progressManager.SetTotal(jobID, total)
		}
		totalFn = func(total int64) {
			progressManager.SetTotal(jobID, total)
		}
	}

	progressCh := make(chan int64)
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		for bytesDownloaded := range progressCh {
			progressManager.Update(jobID, bytesDownloaded)
		}
	}()
	var dlErr error
	if isS3 {
		dlErr = fetch.PerformS3Download(entry.SourceURL, destPath, s3Client, progressCh)
	} else {
		dlErr = fetch.PerformResumableDownload(entry.SourceURL, destPath, client, progressCh, totalFn)
	}
	close(progressCh)
	progressWg.Wait()

	if dlErr != nil {
		logger.Error().Err(dlErr).Str("file", name).Msg("Download failed")
		progressManager.Finish(jobID, StatusFail, dlErr.Error())
		return fmt.Errorf("error downloading %s: %v", entry.SourceURL, dlErr)
	}

	if opts.Verify {
		result, verifyErr := fetch.Verify(destPath, entry)
		if verifyErr != nil {
			logger.Warn().Err(verifyErr).Str("file", name).Msg("Verification could not run")
			progressManager.Finish(jobID, StatusWarn, "verification error")
			return nil
		}
		if !result.Satisfied() {
			// Mismatches are warnings; the file stays on disk for inspection.
			logger.Warn().Str("file", name).Bool("sizeMismatch", result.Size == fetch.MatchNo).Bool("checksumMismatch", result.Checksum == fetch.MatchNo).Msg("Verification mismatch, file kept")
			progressManager.Finish(jobID, StatusWarn, mismatchMessage(result))
			return nil
		}
		logger.Debug().Str("file", name).Msg("Verification passed")
	}
	progressManager.Finish(jobID, StatusOK, "")
	return nil
}

func mismatchMessage(result fetch.VerificationResult) string {
	switch {
	case result.Size == fetch.MatchNo && result.Checksum == fetch.MatchNo:
		return "size and sha1 mismatch"
	case result.Size == fetch.MatchNo:
		return "size mismatch"
	default:
		return "sha1 mismatch"
	}
}

func remoteSize(url string, client *utils.AriaHTTPClient, s3Client *awss3.Client) int64 {
	if s3Client != nil {
		if size, err := fetch.GetS3ObjectSize(url, s3Client); err == nil {
			return size
		}
		return -1
	}
	return fetch.RemoteContentLength(url, client)
}
