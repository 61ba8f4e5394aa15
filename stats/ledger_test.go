package stats

import "testing"

func TestLedger_RecordAndReport(t *testing.T) {
	l := New(3)
	l.Record(FileStat{Path: "a.txt", Outcome: Success, OriginalLength: 1000, CondensedLength: 400, CondensationRatio: 40, ElapsedSeconds: 2})
	l.Record(FileStat{Path: "b.txt", Outcome: SuccessCached, ElapsedSeconds: 0.01})
	l.Record(FileStat{Path: "c.txt", Outcome: Failed, ElapsedSeconds: 5})
	l.Finish()

	report := l.Report()
	if report.SuccessCount != 2 {
		t.Fatalf("success count = %d, want 2", report.SuccessCount)
	}
	if report.FailedCount != 1 {
		t.Fatalf("failed count = %d, want 1", report.FailedCount)
	}
	if len(report.FailedPaths) != 1 || report.FailedPaths[0] != "c.txt" {
		t.Fatalf("failed paths = %v", report.FailedPaths)
	}
	if report.OverallRatio != 40 {
		t.Fatalf("overall ratio = %v, want 40", report.OverallRatio)
	}
}

// Every recorded outcome must sum to the declared total file count.
func TestLedger_TotalsAccountForEveryFile(t *testing.T) {
	l := New(2)
	l.Record(FileStat{Path: "a.txt", Outcome: Empty})
	l.Record(FileStat{Path: "b.txt", Outcome: SuccessDirectory})

	if !l.TotalAccountedFor() {
		t.Fatal("expected every declared file to be accounted for")
	}
}

func TestLedger_RetryCount(t *testing.T) {
	l := New(1)
	l.RecordRetry()
	l.RecordRetry()
	if got := l.Report().RetryCount; got != 2 {
		t.Fatalf("retry count = %d, want 2", got)
	}
}
