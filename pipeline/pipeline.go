// Package pipeline implements the single-chapter decision tree running
// from raw bytes on disk to a
// recorded outcome — skip check, encoding-cascade read, cache lookup,
// directory/short-input passthrough, or a full condense-and-persist
// round trip through a Provider Adapter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bookeating/novelcondenser-go/cache"
	"github.com/bookeating/novelcondenser-go/credential"
	"github.com/bookeating/novelcondenser-go/prompt"
	"github.com/bookeating/novelcondenser-go/provider"
	"github.com/bookeating/novelcondenser-go/stats"
)

// Job names one chapter to run through the pipeline and which
// credential family should service it (the Batch Driver resolves
// mixed-mode parity before constructing the Job). ChapterNumber is
// parsed by the caller via ParseChapterNumber; zero means the filename
// carried no recognizable chapter number.
type Job struct {
	SourcePath    string
	OutputDir     string
	Family        credential.Family
	ChapterNumber int
}

// Ratios carries the configured condensation target, used to render
// the prompt template.
type Ratios struct {
	Min    int // percent
	Max    int // percent
	Target int // percent, for reporting only
}

// Pipeline wires together the collaborators one chapter invocation
// needs. All fields are shared, read-mostly across concurrent
// invocations from the Batch Driver's worker pool; the collaborators
// (cache.Store, credential.Pool, stats.Ledger) carry their own locks.
type Pipeline struct {
	Cache    *cache.Store
	Prompts  prompt.Set
	Pools    map[credential.Family]*credential.Pool
	Adapters map[credential.Family]provider.Adapter
	Ledger   *stats.Ledger
	Ratios   Ratios
	Params   provider.GenerationParams
	Force    bool
}

var directoryMarkerRe = regexp.MustCompile(`第.{1,6}章|第.{1,6}回|第.{1,6}节|序章|序幕|引子|尾声`)

const (
	skipMinBytes  = 300
	shortInputMin = 100
)

// Process runs one chapter through the full decision tree and returns
// its recorded FileStat. It never panics on a malformed or missing
// input file; every failure mode maps to one of stats.Outcome's values.
func (p *Pipeline) Process(ctx context.Context, job Job) stats.FileStat {
	start := time.Now()
	filename := filepath.Base(job.SourcePath)
	outputPath := filepath.Join(job.OutputDir, filename)

	stat := func(outcome stats.Outcome) stats.FileStat {
		return stats.FileStat{
			Path:           job.SourcePath,
			Outcome:        outcome,
			ElapsedSeconds: time.Since(start).Seconds(),
			ChapterNumber:  job.ChapterNumber,
		}
	}

	if !p.Force && looksLikeValidOutput(outputPath) {
		return p.finish(stat(stats.Skipped))
	}
	os.Remove(outputPath) // stale or invalid; next steps write a fresh one

	raw, err := os.ReadFile(job.SourcePath)
	if err != nil {
		p.writeText(outputPath, fmt.Sprintf("# 读取失败\n\n%s\n", err))
		return p.finish(stat(stats.Errored))
	}

	text, _, ok := DecodeText(raw)
	if !ok {
		p.writeText(outputPath, "# 读取失败\n\n原因: 无法识别文件编码\n")
		return p.finish(stat(stats.Errored))
	}

	if strings.TrimSpace(text) == "" {
		return p.finish(stat(stats.Empty))
	}

	originalLength := len([]rune(text))

	if !p.Force && p.Cache != nil {
		if condensed, hit := p.Cache.Lookup(filename, cache.Hash(raw)); hit {
			p.writeText(outputPath, condensed)
			fs := stat(stats.SuccessCached)
			fs.OriginalLength = originalLength
			fs.CondensedLength = len([]rune(condensed))
			return p.finish(fs)
		}
	}

	if isDirectoryFile(text) || IsTOCFilename(filename) {
		p.writeText(outputPath, text)
		fs := stat(stats.SuccessDirectory)
		fs.OriginalLength = originalLength
		fs.CondensedLength = originalLength
		return p.finish(fs)
	}

	if len([]rune(text)) < shortInputMin {
		p.writeText(outputPath, text)
		fs := stat(stats.SuccessShort)
		fs.OriginalLength = originalLength
		fs.CondensedLength = originalLength
		return p.finish(fs)
	}

	condensed, err := p.condense(ctx, job.Family, text, originalLength)
	if err != nil {
		p.writeText(outputPath, failureStub(time.Now()))
		return p.finish(stat(stats.Failed))
	}

	p.writeText(outputPath, condensed)
	if p.Cache != nil {
		p.Cache.Put(filename, cache.Entry{
			ContentHash:      cache.Hash(raw),
			CondensedContent: condensed,
			Timestamp:        time.Now(),
			OriginalLength:   originalLength,
			CondensedLength:  len([]rune(condensed)),
		})
	}

	fs := stat(stats.Success)
	fs.OriginalLength = originalLength
	fs.CondensedLength = len([]rune(condensed))
	if originalLength > 0 {
		fs.CondensationRatio = float64(fs.CondensedLength) / float64(originalLength) * 100
	}
	return p.finish(fs)
}

func (p *Pipeline) finish(fs stats.FileStat) stats.FileStat {
	if p.Ledger != nil {
		p.Ledger.Record(fs)
	}
	return fs
}

// looksLikeValidOutput implements the skip check's positive condition:
// an existing output of sufficient size whose first 100 characters
// carry none of the stub failure's error keywords.
func looksLikeValidOutput(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() < skipMinBytes {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 300) // generous byte budget for a 100-rune prefix
	n, _ := f.Read(buf)
	head := string(buf[:n])
	runes := []rune(head)
	if len(runes) > 100 {
		head = string(runes[:100])
	}
	return !strings.Contains(head, "错误") && !strings.Contains(head, "失败")
}

// isDirectoryFile implements the table-of-contents heuristic: five or
// more lines, none exceeding 50 characters, with over 20% of the
// non-blank lines matching a chapter-marker pattern.
func isDirectoryFile(text string) bool {
	lines := strings.Split(text, "\n")
	if len(lines) < 5 {
		return false
	}

	nonBlank, matched := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if len([]rune(trimmed)) > 50 {
			return false
		}
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		nonBlank++
		if directoryMarkerRe.MatchString(trimmed) {
			matched++
		}
	}
	if nonBlank == 0 {
		return false
	}
	return float64(matched)/float64(nonBlank) > 0.2
}

// failureStub is the stub output a chapter gets when every condense
// attempt is exhausted, deliberately carrying the "失败" keyword so the
// next run's skip check does not treat it as valid output.
func failureStub(at time.Time) string {
	return fmt.Sprintf(
		"# 脱水处理失败\n\n原因: API处理失败\n\n时间: %s\n\n请重试或联系管理员。",
		at.Format("2006-01-02 15:04:05"),
	)
}

// condense splits the input into chunks, runs each chunk through up to
// three adapter attempts against fresh credentials, and joins the
// chunk outputs back together.
func (p *Pipeline) condense(ctx context.Context, family credential.Family, text string, originalLength int) (string, error) {
	pool, ok := p.Pools[family]
	if !ok || pool == nil {
		return "", fmt.Errorf("pipeline: no credential pool configured for family %q", family)
	}
	adapter, ok := p.Adapters[family]
	if !ok || adapter == nil {
		return "", fmt.Errorf("pipeline: no adapter configured for family %q", family)
	}

	chunks := provider.Split(text)
	minCount := originalLength * p.Ratios.Min / 100
	maxCount := originalLength * p.Ratios.Max / 100
	basePrompt := prompt.RenderCount(
		prompt.RenderRatio(p.Prompts.Condenser, p.Ratios.Min, p.Ratios.Max),
		originalLength, minCount, maxCount,
	)

	outputs := make([]string, len(chunks))
	for i, chunk := range chunks {
		var meta *provider.ChunkMeta
		chunkPrefix := ""
		if len(chunks) > 1 {
			meta = &provider.ChunkMeta{Index: i + 1, Total: len(chunks)}
			chunkPrefix = provider.ChunkPrefix(p.Prompts.ChunkPrefix, meta.Index, meta.Total)
		}
		systemPrompt := strings.Replace(basePrompt, "{chunk_prefix}", chunkPrefix, 1)

		out, err := p.condenseChunk(ctx, pool, adapter, systemPrompt, chunk, meta)
		if err != nil {
			return "", err
		}
		outputs[i] = out
	}

	return provider.Join(outputs), nil
}

// condenseChunk runs the per-chunk, up-to-three-attempt acquire/condense
// loop against fresh credentials.
func (p *Pipeline) condenseChunk(ctx context.Context, pool *credential.Pool, adapter provider.Adapter, systemPrompt, userText string, meta *provider.ChunkMeta) (string, error) {
	const maxAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 && p.Ledger != nil {
			p.Ledger.RecordRetry()
		}

		rec, err := pool.Acquire(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, credential.ErrPoolExhausted) {
				return "", lastErr
			}
			continue
		}

		req := provider.Request{
			SystemPrompt: systemPrompt,
			UserText:     userText,
			Credential: provider.Credential{
				Key:     rec.Key,
				BaseURL: rec.BaseURL,
				Model:   rec.Model,
			},
			Params: p.Params,
			Chunk:  meta,
		}

		out, err := adapter.Condense(ctx, req)
		if err == nil {
			pool.ReportSuccess(rec.Key)
			return out, nil
		}

		lastErr = err
		pool.ReportError(rec.Key, classifyForPool(err))
	}

	return "", lastErr
}

// classifyForPool maps a surfaced AdapterError's Kind onto the
// credential pool's narrower cooldown vocabulary: transport and
// malformed_response failures are not a credential's fault specifically,
// so they fold into "general".
func classifyForPool(err error) credential.ErrorKind {
	var adapterErr *provider.Error
	if errors.As(err, &adapterErr) {
		switch adapterErr.Kind {
		case provider.KindRateLimit:
			return credential.ErrorRateLimit
		case provider.KindInvalidKey:
			return credential.ErrorInvalidKey
		}
	}
	return credential.ErrorGeneral
}

func (p *Pipeline) writeText(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
