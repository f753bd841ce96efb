package workflow

import (
	"testing"
	"time"
)

func TestPathFor_Prescription(t *testing.T) {
	path, err := PathFor(ClassificationPrescription)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 11 {
		t.Fatalf("expected 11 states, got %d", len(path))
	}
	if path[0] != StatusConsultationPending {
		t.Errorf("expected first state consultation_pending, got %s", path[0])
	}
	if path[len(path)-1] != StatusCompleted {
		t.Errorf("expected last state completed, got %s", path[len(path)-1])
	}
}

func TestPathFor_OTC(t *testing.T) {
	path, err := PathFor(ClassificationOTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(path) != 6 {
		t.Fatalf("expected 6 states, got %d", len(path))
	}
	if path[0] != StatusPaymentPending {
		t.Errorf("expected first state payment_pending, got %s", path[0])
	}
}

func TestPathFor_Invalid(t *testing.T) {
	if _, err := PathFor("subscription"); err != ErrInvalidClassification {
		t.Errorf("expected ErrInvalidClassification, got %v", err)
	}
}

func TestPathFor_ReturnsCopy(t *testing.T) {
	path, _ := PathFor(ClassificationOTC)
	path[0] = StatusCancelled

	fresh, _ := PathFor(ClassificationOTC)
	if fresh[0] != StatusPaymentPending {
		t.Error("mutating a returned path must not affect the definition")
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	if IsTerminal(StatusProviderReview) {
		t.Error("provider_review must not be terminal")
	}
}

func TestCategoryTable_Exhaustive(t *testing.T) {
	for _, s := range AllStatuses {
		if _, ok := categories[s]; !ok {
			t.Errorf("status %s missing from category table", s)
		}
	}
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		status Status
		want   Category
	}{
		{StatusConsultationPending, CategoryPending},
		{StatusPaymentPending, CategoryPending},
		{StatusProviderReview, CategoryInProgress},
		{StatusPharmacyReady, CategoryReady},
		{StatusOrderDelivered, CategoryCompleted},
		{StatusCompleted, CategoryCompleted},
		{StatusCancelled, CategoryCancelled},
		{StatusRefunded, CategoryCancelled},
	}
	for _, tt := range tests {
		if got := CategoryFor(tt.status); got != tt.want {
			t.Errorf("CategoryFor(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestDwellFor_Default(t *testing.T) {
	if DwellFor(StatusCompleted) != DefaultDwell {
		t.Errorf("expected default dwell for completed, got %s", DwellFor(StatusCompleted))
	}
	if DwellFor(StatusOrderShipped) != 72*time.Hour {
		t.Errorf("expected 72h dwell for order_shipped, got %s", DwellFor(StatusOrderShipped))
	}
}

func TestEstimateCompletion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := []Status{StatusOrderShipped, StatusOrderDelivered, StatusCompleted}

	// 72h + 1h + 1h (default) from index 0.
	got := EstimateCompletion(path, 0, now)
	want := now.Add(74 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}

	// From the last index only the final state counts.
	got = EstimateCompletion(path, 2, now)
	want = now.Add(DefaultDwell)
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestPaths_EndInCompleted(t *testing.T) {
	for _, c := range []Classification{ClassificationPrescription, ClassificationOTC} {
		path, err := PathFor(c)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", c, err)
		}
		if path[len(path)-1] != StatusCompleted {
			t.Errorf("%s path must end in completed, got %s", c, path[len(path)-1])
		}
		for _, s := range path[:len(path)-1] {
			if IsTerminal(s) {
				t.Errorf("%s path contains terminal state %s before the end", c, s)
			}
		}
	}
}
