// Package batch enumerates a chapter list, schedules each chapter on a
// fixed-size worker pool (or runs sequentially for small batches),
// tracks progress, and honors cooperative cancellation and per-family
// pool exhaustion.
package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bookeating/novelcondenser-go/credential"
	"github.com/bookeating/novelcondenser-go/pipeline"
	"github.com/bookeating/novelcondenser-go/stats"
)

// APIFamily selects which credential family (or both) a batch draws from.
type APIFamily string

const (
	FamilyGemini APIFamily = "gemini"
	FamilyOpenAI APIFamily = "openai"
	FamilyMixed  APIFamily = "mixed"
)

// Progress is the (completed, total, status) tuple the Driver reports
// after every chapter. Callback invocation never holds a pool or ledger
// lock.
type Progress struct {
	Completed int
	Total     int
	Status    string
}

// ProgressFunc receives one Progress update per completed chapter.
type ProgressFunc func(Progress)

// Driver runs one batch of chapter paths through a Pipeline.
type Driver struct {
	Pipeline    *pipeline.Pipeline
	Pools       map[credential.Family]*credential.Pool
	Family      APIFamily
	WorkerCount int
	Force       bool
	OnProgress  ProgressFunc

	stop atomic.Bool
}

// Stop requests cooperative cancellation: no new chapter is claimed
// after this is called, but chapters already in flight run to
// completion.
func (d *Driver) Stop() { d.stop.Store(true) }

// Run drives paths through the Pipeline and returns the count of
// chapters that reached a successful outcome plus a map of the ones
// that did not, keyed by path.
func (d *Driver) Run(ctx context.Context, paths []string, outputDir string) (successCount int, failedMap map[string]stats.Outcome) {
	workers := d.WorkerCount
	if workers <= 0 {
		workers = d.maxConcurrency()
	}

	total := len(paths)
	failedMap = make(map[string]stats.Outcome)
	var mu sync.Mutex
	var completed int

	report := func(status string) {
		if d.OnProgress == nil {
			return
		}
		mu.Lock()
		completed++
		c := completed
		mu.Unlock()
		d.OnProgress(Progress{Completed: c, Total: total, Status: status})
	}

	process := func(index int, path string) {
		if d.stop.Load() {
			mu.Lock()
			failedMap[path] = stats.Failed
			mu.Unlock()
			report("cancelled")
			return
		}

		family := d.resolveFamily(index)
		if family == "" {
			mu.Lock()
			failedMap[path] = stats.Failed
			mu.Unlock()
			report("pool exhausted")
			return
		}

		chapterNumber, _ := pipeline.ParseChapterNumber(path)
		fs := d.Pipeline.Process(ctx, pipeline.Job{SourcePath: path, OutputDir: outputDir, Family: family, ChapterNumber: chapterNumber})
		if !fs.Outcome.IsSuccessful() {
			mu.Lock()
			failedMap[path] = fs.Outcome
			mu.Unlock()
		} else {
			mu.Lock()
			successCount++
			mu.Unlock()
		}
		report(string(fs.Outcome))

		if d.familyPool(family) != nil && d.familyPool(family).SessionFatal() {
			if d.Family != FamilyMixed {
				d.stop.Store(true)
			}
		}
	}

	if workers < 2 || total < 2 {
		for i, path := range paths {
			process(i, path)
		}
		return successCount, failedMap
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				process(i, paths[i])
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return successCount, failedMap
}

// resolveFamily implements mixed-mode parity assignment and the
// pool-exhaustion short-circuit: when only one family still has live
// credentials, it absorbs every chapter; when both are exhausted it
// returns "" so the caller marks the chapter failed without dispatching.
func (d *Driver) resolveFamily(index int) credential.Family {
	if d.Family != FamilyMixed {
		f := credential.Family(d.Family)
		if pool := d.familyPool(f); pool == nil || pool.SessionFatal() {
			return ""
		}
		return f
	}

	geminiLive := d.liveFamily(credential.Gemini)
	openaiLive := d.liveFamily(credential.OpenAI)
	switch {
	case geminiLive && openaiLive:
		if index%2 == 0 {
			return credential.Gemini
		}
		return credential.OpenAI
	case geminiLive:
		return credential.Gemini
	case openaiLive:
		return credential.OpenAI
	default:
		return ""
	}
}

func (d *Driver) liveFamily(f credential.Family) bool {
	pool := d.familyPool(f)
	return pool != nil && !pool.SessionFatal()
}

func (d *Driver) familyPool(f credential.Family) *credential.Pool {
	return d.Pools[f]
}

// maxConcurrency returns the selected family's concurrency ceiling; in
// mixed mode it sums each configured family's ceiling. It falls back to
// 1 if no pool is configured.
func (d *Driver) maxConcurrency() int {
	if d.Family != FamilyMixed {
		if pool := d.familyPool(credential.Family(d.Family)); pool != nil {
			return pool.MaxConcurrency()
		}
		return 1
	}
	total := 0
	for _, pool := range d.Pools {
		total += pool.MaxConcurrency()
	}
	if total < 1 {
		total = 1
	}
	return total
}
