package errs

import "testing"

func TestRecordIncrementsCounter(t *testing.T) {
	Reset()
	before := Count(DoubleFree)
	d := Record(DoubleFree, "slot %d double free", 7)
	after := Count(DoubleFree)

	if after != before+1 {
		t.Fatalf("expected count to increment by 1, got before=%d after=%d", before, after)
	}
	if d.Kind != DoubleFree {
		t.Errorf("expected Kind DoubleFree, got %v", d.Kind)
	}
	if d.Severity != SeverityError {
		t.Errorf("expected DoubleFree severity to default to Error, got %v", d.Severity)
	}
}

func TestResetReturnsAndClearsCounters(t *testing.T) {
	Reset()
	Record(RetireLeakOnShutdown, "leaked")
	Record(RetireLeakOnShutdown, "leaked again")

	counts := Reset()
	if counts[RetireLeakOnShutdown] != 2 {
		t.Fatalf("expected 2 RetireLeakOnShutdown records, got %d", counts[RetireLeakOnShutdown])
	}
	if Count(RetireLeakOnShutdown) != 0 {
		t.Fatalf("expected counter cleared after Reset, got %d", Count(RetireLeakOnShutdown))
	}
}

func TestDefaultSeverity(t *testing.T) {
	cases := map[Kind]Severity{
		CorruptHeader:            SeverityError,
		DoubleFree:               SeverityError,
		UnknownAddress:           SeverityError,
		PrecondViolation:         SeverityError,
		RetireLeakOnShutdown:     SeverityWarn,
		DestructorRemainingNodes: SeverityWarn,
	}
	for k, want := range cases {
		if got := DefaultSeverity(k); got != want {
			t.Errorf("DefaultSeverity(%v) = %v, want %v", k, got, want)
		}
	}
}
