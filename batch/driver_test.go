package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bookeating/novelcondenser-go/cache"
	"github.com/bookeating/novelcondenser-go/credential"
	"github.com/bookeating/novelcondenser-go/pipeline"
	"github.com/bookeating/novelcondenser-go/prompt"
	"github.com/bookeating/novelcondenser-go/provider"
	"github.com/bookeating/novelcondenser-go/stats"
)

type stubAdapter struct {
	fail bool
}

func (a *stubAdapter) Condense(_ context.Context, req provider.Request) (string, error) {
	if a.fail {
		return "", provider.NewError(provider.KindGeneral, errGeneral)
	}
	return "condensed:" + req.UserText, nil
}

var errGeneral = genericErr("adapter failure")

type genericErr string

func (e genericErr) Error() string { return string(e) }

func writeFixtures(t *testing.T, n int) (dir string, paths []string) {
	t.Helper()
	dir = t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "ch_"+string(rune('a'+i))+".txt")
		content := "this is a chapter of more than one hundred characters so it does not hit the short-input passthrough path at all, repeated content here."
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

func newDriver(t *testing.T, adapter provider.Adapter, family APIFamily) (*Driver, string) {
	t.Helper()
	outDir := t.TempDir()
	c, err := cache.New(outDir)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	pool := credential.New(credential.Gemini, []credential.Config{{Key: "k1", RPM: 60}})
	p := &pipeline.Pipeline{
		Cache:    c,
		Prompts:  prompt.NewSet(nil, ""),
		Pools:    map[credential.Family]*credential.Pool{credential.Gemini: pool},
		Adapters: map[credential.Family]provider.Adapter{credential.Gemini: adapter},
		Ledger:   stats.New(1),
		Ratios:   pipeline.Ratios{Min: 30, Max: 50, Target: 40},
		Params:   provider.DefaultGenerationParams(),
	}
	return &Driver{
		Pipeline: p,
		Pools:    p.Pools,
		Family:   family,
	}, outDir
}

func TestDriver_SequentialFallbackForSmallBatch(t *testing.T) {
	_, paths := writeFixtures(t, 1)
	d, outDir := newDriver(t, &stubAdapter{}, FamilyGemini)

	success, failed := d.Run(context.Background(), paths, outDir)
	if success != 1 || len(failed) != 0 {
		t.Fatalf("success=%d failed=%v", success, failed)
	}
}

func TestDriver_ParallelSuccess(t *testing.T) {
	_, paths := writeFixtures(t, 4)
	d, outDir := newDriver(t, &stubAdapter{}, FamilyGemini)
	d.WorkerCount = 3

	success, failed := d.Run(context.Background(), paths, outDir)
	if success != 4 || len(failed) != 0 {
		t.Fatalf("success=%d failed=%v", success, failed)
	}
}

// S3 at the batch level: a credential exhausted to session_fatal stops
// the family, and every remaining chapter is reported failed.
func TestDriver_SessionFatalStopsDispatch(t *testing.T) {
	_, paths := writeFixtures(t, 3)
	d, outDir := newDriver(t, &stubAdapter{fail: true}, FamilyGemini)
	d.WorkerCount = 1

	pool := d.Pools[credential.Gemini]
	for i := 0; i < 20; i++ {
		pool.ReportError("k1", credential.ErrorGeneral)
	}
	if !pool.SessionFatal() {
		t.Fatal("expected pool to be session-fatal after 20 errors")
	}

	success, failed := d.Run(context.Background(), paths, outDir)
	if success != 0 {
		t.Fatalf("success = %d, want 0", success)
	}
	if len(failed) != len(paths) {
		t.Fatalf("failed = %d, want %d", len(failed), len(paths))
	}
}
