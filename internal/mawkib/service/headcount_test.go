package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hajjtech/mawkib/internal/mawkib/metrics"
	"github.com/hajjtech/mawkib/internal/mawkib/sensor/sim"
	"github.com/hajjtech/mawkib/internal/mawkib/service"
)

func newReconciler(cam *sim.Camera, window, quorum int) *service.Reconciler {
	return service.NewReconciler(cam, window, quorum, silentLogger(), metrics.New(prometheus.NewRegistry()))
}

func TestReconcile_ModeWins(t *testing.T) {
	cam := &sim.Camera{}
	cam.QueueCounts(3, 3, 4)

	rec, err := newReconciler(cam, 3, 2).Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.StableCount != 3 {
		t.Errorf("StableCount = %d, want 3 (mode of 3,3,4)", rec.StableCount)
	}
	if !rec.Matched {
		t.Errorf("expected a match against expected=3")
	}
}

func TestReconcile_MedianWhenNoMode(t *testing.T) {
	cam := &sim.Camera{}
	cam.QueueCounts(2, 3, 4)

	rec, err := newReconciler(cam, 3, 2).Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.StableCount != 3 {
		t.Errorf("StableCount = %d, want 3 (median of 2,3,4)", rec.StableCount)
	}
}

func TestReconcile_Mismatch(t *testing.T) {
	cam := &sim.Camera{}
	cam.QueueCounts(2, 2, 2)

	rec, err := newReconciler(cam, 3, 2).Reconcile(context.Background(), 3)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rec.Matched {
		t.Errorf("counted %d against expected 3, should not match", rec.StableCount)
	}
}

func TestReconcile_FailedCaptureConsumesSlotNotQuorum(t *testing.T) {
	cam := &sim.Camera{CaptureErr: errors.New("camera offline")}

	_, err := newReconciler(cam, 3, 2).Reconcile(context.Background(), 3)
	if !errors.Is(err, service.ErrInsufficientSamples) {
		t.Fatalf("err = %v, want ErrInsufficientSamples", err)
	}
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name    string
		samples []int
		want    int
	}{
		{"unanimous", []int{5, 5, 5}, 5},
		{"majority mode", []int{5, 5, 6}, 5},
		{"no mode odd median", []int{4, 5, 9}, 5},
		{"tied modes fall back to median", []int{4, 4, 6, 6}, 5},
		{"even median rounds", []int{4, 5}, 5},
		{"single sample", []int{7}, 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := service.Aggregate(tc.samples); got != tc.want {
				t.Errorf("Aggregate(%v) = %d, want %d", tc.samples, got, tc.want)
			}
		})
	}
}
