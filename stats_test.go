package ecmsim

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	dist := summarize([]float64{4, 1, 3, 2})
	if dist.Count != 4 || dist.Mean != 2.5 || dist.Median != 2.5 {
		t.Fatalf("summarize() = count %d mean %v median %v", dist.Count, dist.Mean, dist.Median)
	}
	if math.Abs(dist.Std-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("Std = %v, want population std %v", dist.Std, math.Sqrt(1.25))
	}
	if dist.Min != 1 || dist.Max != 4 || dist.P95 != 4 {
		t.Fatalf("min/max/p95 = %v/%v/%v", dist.Min, dist.Max, dist.P95)
	}
	if dist.Values[0] != 1 || dist.Values[3] != 4 {
		t.Fatalf("Values not sorted: %v", dist.Values)
	}

	total := 0
	for _, bin := range dist.Histogram {
		total += bin.Count
	}
	if len(dist.Histogram) != histogramBins || total != 4 {
		t.Fatalf("histogram has %d bins holding %d values", len(dist.Histogram), total)
	}
	if dist.Histogram[0].Count != 1 || dist.Histogram[histogramBins-1].Count != 1 {
		t.Fatalf("extreme values not in the edge bins: %+v", dist.Histogram)
	}
}

func TestSummarizeDegenerate(t *testing.T) {
	empty := summarize(nil)
	if empty.Count != 0 || len(empty.Histogram) != 0 {
		t.Fatalf("summarize(nil) = %+v", empty)
	}

	same := summarize([]float64{3, 3, 3})
	if same.Std != 0 || same.Median != 3 || same.P95 != 3 {
		t.Fatalf("summarize(constant) = %+v", same)
	}
	total := 0
	for _, bin := range same.Histogram {
		total += bin.Count
	}
	if total != 3 {
		t.Fatalf("histogram of a constant sample holds %d values, want 3", total)
	}

	odd := summarize([]float64{5, 1, 9})
	if odd.Median != 5 {
		t.Fatalf("Median = %v, want 5", odd.Median)
	}
}

func TestDeliveryRatio(t *testing.T) {
	tests := []struct {
		transmitted, dropped int
		want                 float64
	}{
		{0, 0, 1.0},
		{9, 1, 0.9},
		{0, 5, 0.0},
	}
	for _, tt := range tests {
		if got := deliveryRatio(tt.transmitted, tt.dropped); got != tt.want {
			t.Fatalf("deliveryRatio(%d, %d) = %v, want %v", tt.transmitted, tt.dropped, got, tt.want)
		}
	}
}
