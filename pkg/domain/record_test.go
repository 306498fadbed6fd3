package domain

import (
	"context"
	"errors"
	"testing"
)

func TestRecordEligible(t *testing.T) {
	cases := []struct {
		name   string
		record Record
		want   bool
	}{
		{"empty", Record{}, false},
		{"subject only", Record{Name: "Rex"}, false},
		{"subject with one parent", Record{Name: "Rex", MotherName: "Luna"}, false},
		{"both parents", Record{Name: "Rex", MotherName: "Luna", FatherName: "Max"}, true},
		{"subject link", Record{Name: "Rex", Link: "https://canecorsopedigree.com/rex"}, true},
		{"mother link", Record{Name: "Rex", MotherLink: "https://canecorsopedigree.com/luna"}, true},
		{"father link", Record{Name: "Rex", FatherLink: "https://canecorsopedigree.com/max"}, true},
		{"blank name with link", Record{Name: "  ", Link: "https://canecorsopedigree.com/rex"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.record.Eligible(); got != tc.want {
				t.Fatalf("Eligible() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseSex(t *testing.T) {
	if ParseSex("MALE") != SexMale {
		t.Fatalf("expected male")
	}
	if ParseSex(" female ") != SexFemale {
		t.Fatalf("expected female")
	}
	if ParseSex("other") != SexUnspecified {
		t.Fatalf("expected unknown values to map to unspecified")
	}
}

func TestUnavailableWrapsSentinel(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Unavailable("insert", cause)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if Unavailable("noop", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestNormalizeLimit(t *testing.T) {
	for in, want := range map[int]int{0: 20, -1: 20, 5: 5, 20: 20, 50: 20} {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

type staticRule struct {
	name string
	res  Result
	err  error
}

func (r staticRule) Name() string { return r.name }
func (r staticRule) Evaluate(context.Context, Record) (Result, error) {
	return r.res, r.err
}

func TestRulesEngineAggregates(t *testing.T) {
	engine := NewRulesEngine(
		staticRule{name: "warn", res: Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}}},
	)
	engine.Register(staticRule{name: "block", res: Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}}})

	res, err := engine.Evaluate(context.Background(), Record{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || !res.HasBlocking() {
		t.Fatalf("unexpected result %+v", res)
	}
	if blocking := res.Blocking(); len(blocking) != 1 || blocking[0].Rule != "block" {
		t.Fatalf("unexpected blocking set %+v", blocking)
	}

	boom := errors.New("boom")
	engine.Register(staticRule{name: "err", err: boom})
	if _, err := engine.Evaluate(context.Background(), Record{}); !errors.Is(err, boom) {
		t.Fatalf("expected rule error, got %v", err)
	}

	var nilEngine *RulesEngine
	if res, err := nilEngine.Evaluate(context.Background(), Record{}); err != nil || len(res.Violations) != 0 {
		t.Fatalf("nil engine should evaluate to empty result")
	}
}

func TestInsufficientDataErrorMessage(t *testing.T) {
	if (InsufficientDataError{}).Error() != "insufficient data to save record" {
		t.Fatalf("unexpected bare message")
	}
	err := InsufficientDataError{Violations: []Violation{{Message: "a"}, {Message: "b"}}}
	if err.Error() != "insufficient data to save record: a; b" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
