package acquire

import (
	"testing"
	"time"
)

func TestTimeEstimator(t *testing.T) {
	start := time.Unix(1000, 0)
	e := TimeEstimator{Start: start, Expected: 8 * time.Second}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"before start", -time.Second, 0},
		{"at start", 0, 0},
		{"halfway", 4 * time.Second, 47.5},
		{"at expected", 8 * time.Second, SoftCeiling},
		{"well past expected", time.Minute, SoftCeiling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(start.Add(tt.elapsed))
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTimeEstimator_ZeroExpected(t *testing.T) {
	e := TimeEstimator{Start: time.Now()}
	if got := e.Estimate(time.Now()); got != SoftCeiling {
		t.Errorf("expected %v, got %v", SoftCeiling, got)
	}
}

func TestByteEstimator(t *testing.T) {
	e := NewByteEstimator(1000)
	if got := e.Estimate(time.Time{}); got != 0 {
		t.Errorf("expected 0 before any bytes, got %v", got)
	}

	e.Add(500)
	if got := e.Estimate(time.Time{}); got != 47.5 {
		t.Errorf("expected 47.5 at half, got %v", got)
	}

	e.Add(500)
	if got := e.Estimate(time.Time{}); got != SoftCeiling {
		t.Errorf("expected %v when all bytes read, got %v", SoftCeiling, got)
	}

	// More bytes than declared must not push past the ceiling.
	e.Add(4000)
	if got := e.Estimate(time.Time{}); got != SoftCeiling {
		t.Errorf("expected %v after overrun, got %v", SoftCeiling, got)
	}
	if e.Read() != 5000 {
		t.Errorf("expected 5000 bytes recorded, got %d", e.Read())
	}
}

func TestSelectEstimator(t *testing.T) {
	if _, ok := SelectEstimator(2048, time.Now(), time.Second).(*ByteEstimator); !ok {
		t.Error("expected byte estimator when size is known")
	}
	if _, ok := SelectEstimator(-1, time.Now(), time.Second).(TimeEstimator); !ok {
		t.Error("expected time estimator when size is unknown")
	}
	if _, ok := SelectEstimator(0, time.Now(), time.Second).(TimeEstimator); !ok {
		t.Error("expected time estimator when size is zero")
	}
}

type fixedEstimator float64

func (f fixedEstimator) Estimate(time.Time) float64 { return float64(f) }

func TestGauge_Monotonic(t *testing.T) {
	g := newGauge(fixedEstimator(40))

	var got []float64
	record := func(p float64) { got = append(got, p) }

	g.advance(time.Now(), record)
	g.advance(time.Now(), record) // unchanged, not reported
	g.use(fixedEstimator(20))
	g.advance(time.Now(), record) // lower, not reported
	g.use(fixedEstimator(60))
	g.advance(time.Now(), record)
	g.use(fixedEstimator(250))
	g.advance(time.Now(), record) // capped

	want := []float64{40, 60, SoftCeiling}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestGauge_PinAndComplete(t *testing.T) {
	g := newGauge(fixedEstimator(10))

	var got []float64
	record := func(p float64) { got = append(got, p) }

	g.advance(time.Now(), record)
	g.pin(record)
	g.advance(time.Now(), record) // below pinned value
	g.complete(record)
	g.complete(record) // only once
	g.advance(time.Now(), record)
	g.pin(record)

	want := []float64{10, SoftCeiling, Complete}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if g.value() != Complete {
		t.Errorf("expected final value %v, got %v", Complete, g.value())
	}
}
