package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/horizon-research/AriaDatasetProcessing/internal/output"
	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// Per-descriptor outcomes, also used as display states.
const (
	StatusOK   = "ok"
	StatusSkip = "skip"
	StatusWarn = "warn"
	StatusFail = "fail"
)

type ProgressInfo struct {
	Name       string
	TotalSize  int64
	Downloaded int64
	Speed      float64
	Status     string
	Message    string
	Completed  bool
	StartTime  time.Time
	Index      int
}

// ProgressManager is the single writer to the terminal. Workers publish
// into the guarded map; one display goroutine redraws on a ticker.
type ProgressManager struct {
	progressMap     map[string]*ProgressInfo
	mutex           sync.RWMutex
	doneCh          chan struct{}
	displayWg       sync.WaitGroup
	lastUpdateTimes map[string]time.Time
	lastDownloaded  map[string]int64
	numLines        int
	count           int
}

func NewProgressManager() *ProgressManager {
	return &ProgressManager{
		progressMap:     make(map[string]*ProgressInfo),
		doneCh:          make(chan struct{}),
		lastUpdateTimes: make(map[string]time.Time),
		lastDownloaded:  make(map[string]int64),
	}
}

func (pm *ProgressManager) Register(id string, name string, totalSize int64) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	pm.count++
	pm.progressMap[id] = &ProgressInfo{
		Name:      name,
		TotalSize: totalSize,
		StartTime: time.Now(),
		Index:     pm.count,
	}
	pm.lastUpdateTimes[id] = time.Now()
	pm.lastDownloaded[id] = 0
}

func (pm *ProgressManager) SetTotal(id string, totalSize int64) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if info, exists := pm.progressMap[id]; exists {
		info.TotalSize = totalSize
	}
}

func (pm *ProgressManager) Update(id string, bytesDownloaded int64) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if info, exists := pm.progressMap[id]; exists {
		info.Downloaded += bytesDownloaded
	}
}

// Finish records a descriptor's terminal outcome.
func (pm *ProgressManager) Finish(id string, status string, message string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if info, exists := pm.progressMap[id]; exists {
		info.Completed = true
		info.Status = status
		info.Message = message
	}
}

func (pm *ProgressManager) StartDisplay() {
	pm.displayWg.Add(1)
	go func() {
		defer pm.displayWg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pm.updateDisplay()
			case <-pm.doneCh:
				pm.updateDisplay()
				return
			}
		}
	}()
}

func (pm *ProgressManager) Stop() {
	close(pm.doneCh)
	pm.displayWg.Wait()
}

func (pm *ProgressManager) sortedIDs() []string {
	ids := make([]string, 0, len(pm.progressMap))
	for id := range pm.progressMap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return pm.progressMap[ids[i]].Index < pm.progressMap[ids[j]].Index
	})
	return ids
}

func (pm *ProgressManager) updateDisplay() {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if pm.numLines != 0 {
		fmt.Printf("\033[%dA\033[J", pm.numLines)
	}
	availableLines := output.GetTerminalHeight() - 3
	lineCount := 0
	for _, id := range pm.sortedIDs() {
		if lineCount >= availableLines {
			break
		}
		info := pm.progressMap[id]
		name := info.Name
		if len(name) > 25 {
			name = "..." + name[len(name)-22:]
		}
		if info.Completed {
			label := strings.ToUpper(info.Status)
			line := fmt.Sprintf("  %s %-4s %s  %s", output.StatusIndicator(info.Status), label, name, output.FDebug(utils.FormatBytes(uint64(info.Downloaded))))
			if info.Message != "" {
				line += "  " + output.FDebug(info.Message)
			}
			fmt.Println(line)
			lineCount++
			continue
		}
		if info.Downloaded == 0 {
			fmt.Printf("  %s %s %s\n", output.StatusIndicator("pending"), output.FPending("Waiting..."), name)
			lineCount++
			continue
		}
		now := time.Now()
		lastTime, exists := pm.lastUpdateTimes[id]
		if !exists {
			lastTime = info.StartTime
		}
		timeDiff := now.Sub(lastTime).Seconds()
		if timeDiff > 0 {
			byteDiff := info.Downloaded - pm.lastDownloaded[id]
			info.Speed = float64(byteDiff) / timeDiff
			pm.lastUpdateTimes[id] = now
			pm.lastDownloaded[id] = info.Downloaded
		}
		if info.TotalSize > 0 {
			bar := output.PrintProgressBar(info.Downloaded, info.TotalSize, 30)
			fmt.Printf("  %s %s %s/%s %s\n", name, bar, utils.FormatBytes(uint64(info.Downloaded)), utils.FormatBytes(uint64(info.TotalSize)), output.FDebug(utils.FormatSpeed(int64(info.Speed), 1)))
		} else {
			// total size unknown
			fmt.Printf("  %s %s %s %s\n", name, output.StyleSymbols["arrow"], utils.FormatBytes(uint64(info.Downloaded)), output.FDebug(utils.FormatSpeed(int64(info.Speed), 1)))
		}
		lineCount++
	}
	pm.numLines = lineCount
}

func (pm *ProgressManager) ShowSummary() {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	fmt.Println()
	counts := map[string]int{}
	var totalBytes int64
	var longest float64
	for _, info := range pm.progressMap {
		counts[info.Status]++
		totalBytes += info.Downloaded
		if elapsed := time.Since(info.StartTime).Seconds(); elapsed > longest {
			longest = elapsed
		}
	}
	fmt.Println("  " + output.FSuccess(fmt.Sprintf("OK %d", counts[StatusOK])) + output.FDebug("  ·  ") +
		output.FInfo(fmt.Sprintf("SKIP %d", counts[StatusSkip])) + output.FDebug("  ·  ") +
		output.FWarning(fmt.Sprintf("WARN %d", counts[StatusWarn])) + output.FDebug("  ·  ") +
		output.FError(fmt.Sprintf("FAIL %d", counts[StatusFail])))
	if longest > 0 {
		fmt.Printf("  Total Data: %s, Overall Speed: %s, Time Elapsed: %.2fs\n", utils.FormatBytes(uint64(totalBytes)), utils.FormatSpeed(totalBytes, longest), longest)
	}
	fmt.Println()
}
