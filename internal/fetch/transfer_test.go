package fetch

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

func testClient() *utils.AriaHTTPClient {
	return utils.NewAriaHTTPClient(utils.HTTPClientConfig{Timeout: 5 * time.Second})
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// rangeServer honors Range requests with 206 partial content.
func rangeServer(data []byte, lastRange *atomic.Value) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		rangeHeader := r.Header.Get("Range")
		if lastRange != nil {
			lastRange.Store(rangeHeader)
		}
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}
		offset, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"), 10, 64)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)-int(offset)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[offset:])
	}))
}

func TestDownloadFresh(t *testing.T) {
	data := testData(64 * 1024)
	server := rangeServer(data, nil)
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "a.vrs")
	progressCh := make(chan int64, 1024)
	err := PerformResumableDownload(server.URL, outPath, testClient(), progressCh, nil)
	require.NoError(t, err)
	close(progressCh)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	_, err = os.Stat(outPath + utils.StagingSuffix)
	assert.True(t, os.IsNotExist(err), "staging file should be promoted away")

	var progressed int64
	for n := range progressCh {
		progressed += n
	}
	assert.Equal(t, int64(len(data)), progressed)
}

func TestDownloadResume(t *testing.T) {
	data := testData(64 * 1024)
	var lastRange atomic.Value
	server := rangeServer(data, &lastRange)
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "a.vrs")
	// Simulate an interrupted transfer: first half already staged.
	require.NoError(t, os.WriteFile(outPath+utils.StagingSuffix, data[:32*1024], 0644))

	progressCh := make(chan int64, 1024)
	err := PerformResumableDownload(server.URL, outPath, testClient(), progressCh, nil)
	require.NoError(t, err)
	close(progressCh)

	assert.Equal(t, "bytes=32768-", lastRange.Load())
	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, data, got, "resumed file must be byte-identical to a fresh download")

	// Progress includes the resumed offset credit.
	var progressed int64
	for n := range progressCh {
		progressed += n
	}
	assert.Equal(t, int64(len(data)), progressed)
}

func TestDownloadRestartWhenRangeIgnored(t *testing.T) {
	data := testData(16 * 1024)
	// Server always answers 200 with the full body, ignoring Range.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "a.vrs")
	stale := []byte(strings.Repeat("x", 1000))
	require.NoError(t, os.WriteFile(outPath+utils.StagingSuffix, stale, 0644))

	progressCh := make(chan int64, 1024)
	err := PerformResumableDownload(server.URL, outPath, testClient(), progressCh, nil)
	require.NoError(t, err)
	close(progressCh)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, data, got, "stale partial bytes must be discarded, not prepended")
}

func TestDownloadErrorKeepsStaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "a.vrs")
	partial := []byte("partial-bytes")
	require.NoError(t, os.WriteFile(outPath+utils.StagingSuffix, partial, 0644))

	progressCh := make(chan int64, 16)
	err := PerformResumableDownload(server.URL, outPath, testClient(), progressCh, nil)
	require.Error(t, err)

	got, readErr := os.ReadFile(outPath + utils.StagingSuffix)
	require.NoError(t, readErr, "staging file must survive a failed attempt")
	assert.Equal(t, partial, got)
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "no partial file may appear at the destination")
}

func TestDownloadSlowStreamOutlivesTimeout(t *testing.T) {
	// Each chunk arrives well within the timeout, but the whole body takes
	// longer than it. A transfer that keeps moving bytes must not be cut off.
	data := testData(5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		flusher := w.(http.Flusher)
		for off := 0; off < len(data); off += 1000 {
			w.Write(data[off : off+1000])
			flusher.Flush()
			time.Sleep(150 * time.Millisecond)
		}
	}))
	defer server.Close()

	client := utils.NewAriaHTTPClient(utils.HTTPClientConfig{Timeout: 300 * time.Millisecond})
	outPath := filepath.Join(t.TempDir(), "a.vrs")
	progressCh := make(chan int64, 64)
	err := PerformResumableDownload(server.URL, outPath, client, progressCh, nil)
	require.NoError(t, err, "a progressing body stream must outlive the timeout")

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadStalledHeadersTimeOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := utils.NewAriaHTTPClient(utils.HTTPClientConfig{Timeout: 200 * time.Millisecond})
	outPath := filepath.Join(t.TempDir(), "a.vrs")
	progressCh := make(chan int64, 16)
	err := PerformResumableDownload(server.URL, outPath, client, progressCh, nil)
	require.Error(t, err, "a server that never sends headers must fail the timeout")
}

func TestDownloadReportsTotalFromResponse(t *testing.T) {
	data := testData(64 * 1024)
	server := rangeServer(data, nil)
	defer server.Close()

	var reported atomic.Int64
	totalFn := func(n int64) { reported.Store(n) }

	outPath := filepath.Join(t.TempDir(), "a.vrs")
	progressCh := make(chan int64, 1024)
	err := PerformResumableDownload(server.URL, outPath, testClient(), progressCh, totalFn)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), reported.Load())

	// On a resumed transfer the 206 Content-Length covers only the remaining
	// range; the reported total must still be the full resource size.
	reported.Store(0)
	require.NoError(t, os.Remove(outPath))
	require.NoError(t, os.WriteFile(outPath+utils.StagingSuffix, data[:32*1024], 0644))
	err = PerformResumableDownload(server.URL, outPath, testClient(), progressCh, totalFn)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), reported.Load())
}

func TestRemoteContentLength(t *testing.T) {
	data := testData(4096)
	server := rangeServer(data, nil)
	defer server.Close()
	assert.Equal(t, int64(len(data)), RemoteContentLength(server.URL, testClient()))

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer empty.Close()
	assert.Equal(t, int64(-1), RemoteContentLength(empty.URL, testClient()))
}
