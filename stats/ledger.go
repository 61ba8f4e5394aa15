// Package stats implements a thread-safe accumulator for per-chapter
// outcomes: an explicit struct the batch driver owns and threads
// through, rather than mutable package state.
package stats

import (
	"sort"
	"sync"
	"time"
)

// Outcome enumerates how one chapter's processing ended.
type Outcome string

const (
	Success          Outcome = "success"
	SuccessCached    Outcome = "success-cached"
	SuccessDirectory Outcome = "success-directory"
	SuccessShort     Outcome = "success-short"
	Skipped          Outcome = "skipped"
	Empty            Outcome = "empty"
	Failed           Outcome = "failed"
	Errored          Outcome = "error"
)

// IsSuccessful reports whether an outcome counts toward success_count.
// skipped and success-cached are both terminal successes (spec.md §8's
// idempotence invariant): a re-run that finds valid prior output or a
// valid cache entry never dispatches an HTTP call, but it is not a
// failure.
func (o Outcome) IsSuccessful() bool {
	switch o {
	case Success, SuccessCached, SuccessDirectory, SuccessShort, Skipped:
		return true
	default:
		return false
	}
}

// FileStat is one chapter's recorded outcome.
type FileStat struct {
	Path              string
	Outcome           Outcome
	ElapsedSeconds    float64
	OriginalLength    int
	CondensedLength   int
	CondensationRatio float64 // percent; zero when not applicable
	ChapterNumber     int     // 0 when the filename carried no recognizable number
}

// Ledger accumulates per-file outcomes and derives the final report.
// All mutation happens under a single short-lived lock.
type Ledger struct {
	mu sync.Mutex

	startTime time.Time
	endTime   time.Time

	totalFiles int
	fileStats  map[string]FileStat

	successCount int
	failedCount  int
	retryCount   int

	condensationRatios      []float64
	totalCharsOriginal      int
	totalCharsCondensed     int
}

// New starts a ledger for a batch of totalFiles chapters.
func New(totalFiles int) *Ledger {
	return &Ledger{
		startTime:  time.Now(),
		totalFiles: totalFiles,
		fileStats:  make(map[string]FileStat, totalFiles),
	}
}

// Record stores one chapter's outcome and updates the running aggregates.
func (l *Ledger) Record(stat FileStat) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fileStats[stat.Path] = stat

	switch {
	case stat.Outcome.IsSuccessful():
		l.successCount++
		if stat.Outcome == Success && stat.OriginalLength > 0 && stat.CondensedLength > 0 {
			l.condensationRatios = append(l.condensationRatios, stat.CondensationRatio)
			l.totalCharsOriginal += stat.OriginalLength
			l.totalCharsCondensed += stat.CondensedLength
		}
	case stat.Outcome == Failed || stat.Outcome == Errored:
		l.failedCount++
	}
}

// RecordRetry tallies one outer Pipeline-level retry. Retries inside the
// adapter are not individually recorded; only the outer retry count is.
func (l *Ledger) RecordRetry() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryCount++
}

// Finish stamps the ledger's end time. Call once, after every chapter
// has been recorded.
func (l *Ledger) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endTime = time.Now()
}

// Report is the final, read-only summary.
type Report struct {
	TotalRuntime        time.Duration
	TotalFiles          int
	SuccessCount        int
	FailedCount         int
	SuccessRate         float64
	RetryCount          int
	FailedPaths         []string
	MinRatio            float64
	MeanRatio           float64
	MaxRatio            float64
	TotalCharsOriginal  int
	TotalCharsCondensed int
	OverallRatio        float64
	AvgChapterSeconds   float64
	ChaptersPerHour     float64
}

// Report computes the final summary from the accumulated state.
func (l *Ledger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	end := l.endTime
	if end.IsZero() {
		end = time.Now()
	}
	runtime := end.Sub(l.startTime)

	var failed []FileStat
	var totalElapsed float64
	var processed int
	for _, fs := range l.fileStats {
		if fs.Outcome == Failed || fs.Outcome == Errored {
			failed = append(failed, fs)
		}
		totalElapsed += fs.ElapsedSeconds
		processed++
	}
	sort.Slice(failed, func(i, j int) bool {
		if failed[i].ChapterNumber != failed[j].ChapterNumber {
			return failed[i].ChapterNumber < failed[j].ChapterNumber
		}
		return failed[i].Path < failed[j].Path
	})
	failedPaths := make([]string, len(failed))
	for i, fs := range failed {
		failedPaths[i] = fs.Path
	}

	report := Report{
		TotalRuntime:        runtime,
		TotalFiles:          l.totalFiles,
		SuccessCount:        l.successCount,
		FailedCount:         l.failedCount,
		RetryCount:          l.retryCount,
		FailedPaths:         failedPaths,
		TotalCharsOriginal:  l.totalCharsOriginal,
		TotalCharsCondensed: l.totalCharsCondensed,
	}

	if l.totalFiles > 0 {
		report.SuccessRate = float64(l.successCount) / float64(l.totalFiles) * 100
	}
	if processed > 0 {
		report.AvgChapterSeconds = totalElapsed / float64(processed)
		if report.AvgChapterSeconds > 0 {
			report.ChaptersPerHour = 3600 / report.AvgChapterSeconds
		}
	}
	if l.totalCharsOriginal > 0 {
		report.OverallRatio = float64(l.totalCharsCondensed) / float64(l.totalCharsOriginal) * 100
	}
	if len(l.condensationRatios) > 0 {
		minV, maxV, sum := l.condensationRatios[0], l.condensationRatios[0], 0.0
		for _, r := range l.condensationRatios {
			if r < minV {
				minV = r
			}
			if r > maxV {
				maxV = r
			}
			sum += r
		}
		report.MinRatio = minV
		report.MaxRatio = maxV
		report.MeanRatio = sum / float64(len(l.condensationRatios))
	}

	return report
}

// TotalAccountedFor reports whether every recorded outcome sums to the
// declared total_files.
func (l *Ledger) TotalAccountedFor() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fileStats) == l.totalFiles
}
