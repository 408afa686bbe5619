package fetch

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// RemoteContentLength asks the server for the resource size via HEAD.
// Best-effort; returns -1 when the size can't be determined.
func RemoteContentLength(url string, client *utils.AriaHTTPClient) int64 {
	req, err := http.NewRequest("HEAD", url, nil)
	if err != nil {
		return -1
	}
	resp, err := client.Do(req)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return -1
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || size <= 0 {
		return -1
	}
	return size
}

// PerformResumableDownload streams url into outputPath + ".part" and renames
// to outputPath on success. A pre-existing staging file is resumed with a
// Range request; if the server answers a range request with a full 200 body,
// the partial bytes are discarded and the download restarts from zero. On
// any error the staging file is left in place for a later resume. When the
// GET response advertises a Content-Length, totalFn (if non-nil) receives
// the full resource size before the body stream starts.
func PerformResumableDownload(url string, outputPath string, client *utils.AriaHTTPClient, progressCh chan<- int64, totalFn func(int64)) error {
	log := utils.GetLogger("transfer")
	outputDir := filepath.Dir(outputPath)
	stagingPath := outputPath + utils.StagingSuffix
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}

	var resumeOffset int64 = 0
	var fileMode int = os.O_CREATE | os.O_WRONLY
	if fileInfo, err := os.Stat(stagingPath); err == nil {
		resumeOffset = fileInfo.Size()
		fileMode |= os.O_APPEND
		log.Debug().Str("file", filepath.Base(stagingPath)).Int64("size", resumeOffset).Msg("Resuming incomplete download")
	} else {
		fileMode |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(stagingPath, fileMode, 0644)
	if err != nil {
		return fmt.Errorf("error creating staging file: %v", err)
	}
	defer outFile.Close()

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("error creating GET request: %v", err)
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
		log.Debug().Int64("resumeOffset", resumeOffset).Msg("Setting Range header for resume")
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error executing GET request: %v", err)
	}
	defer resp.Body.Close()

	if resumeOffset > 0 {
		switch resp.StatusCode {
		case http.StatusPartialContent:
			progressCh <- resumeOffset
		case http.StatusOK:
			// Server ignored the Range header; appending the full body after
			// the partial bytes would corrupt the file, so start over.
			log.Warn().Str("file", filepath.Base(outputPath)).Msg("Server doesn't support resume, starting from beginning")
			outFile.Close()
			outFile, err = os.OpenFile(stagingPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return fmt.Errorf("error creating staging file: %v", err)
			}
			defer outFile.Close()
			resumeOffset = 0
		default:
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	} else if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// A 206 Content-Length only covers the remaining range, so the resumed
	// offset is added back to report the full resource size.
	if totalFn != nil && resp.ContentLength > 0 {
		totalFn(resumeOffset + resp.ContentLength)
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	var newBytes int64 = 0
	var totalDownloaded int64 = resumeOffset
	for {
		bytesRead, err := resp.Body.Read(buffer)
		if bytesRead > 0 {
			_, writeErr := outFile.Write(buffer[:bytesRead])
			if writeErr != nil {
				return fmt.Errorf("error writing to staging file: %v", writeErr)
			}
			newBytes += int64(bytesRead)
			totalDownloaded += int64(bytesRead)
			progressCh <- int64(bytesRead)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("error reading response body: %v", err)
		}
	}
	log.Debug().Int64("resumeOffset", resumeOffset).Int64("downloadedThisSession", newBytes).Int64("totalDownloaded", totalDownloaded).Msg("Transfer completed")
	if err := os.Rename(stagingPath, outputPath); err != nil {
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	return nil
}
