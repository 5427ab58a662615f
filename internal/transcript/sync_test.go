package transcript

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/MrWong99/voicecanvas/internal/observe"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeView records scroll effects.
type fakeView struct {
	mu      sync.Mutex
	visible bool
	scrolls []time.Time
}

func (v *fakeView) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

func (v *fakeView) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls = append(v.scrolls, time.Now())
}

func (v *fakeView) setVisible(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = b
}

func (v *fakeView) calls() []time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]time.Time(nil), v.scrolls...)
}

func noopMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestSynchronizer_BurstCoalescesIntoOneEffect(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()
		v := &fakeView{visible: true}
		s.Attach(v)

		start := time.Now()
		s.Notify() // t=0
		time.Sleep(50 * time.Millisecond)
		s.Notify() // t=50
		time.Sleep(200 * time.Millisecond)
		s.Notify() // t=250

		time.Sleep(199 * time.Millisecond) // t=449
		synctest.Wait()
		if n := len(v.calls()); n != 0 {
			t.Fatalf("scrolls before t=450: %d, want 0", n)
		}

		time.Sleep(2 * time.Millisecond) // t=451
		synctest.Wait()
		calls := v.calls()
		if len(calls) != 1 {
			t.Fatalf("scrolls = %d, want exactly 1", len(calls))
		}
		if got := calls[0].Sub(start); got != 450*time.Millisecond {
			t.Errorf("effect fired at t=%v, want t=450ms", got)
		}

		time.Sleep(time.Second)
		synctest.Wait()
		if n := len(v.calls()); n != 1 {
			t.Errorf("scrolls after quiet period = %d, want 1", n)
		}
	})
}

func TestSynchronizer_SpacedNotificationsFireSeparately(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()
		v := &fakeView{visible: true}
		s.Attach(v)

		s.Notify()
		time.Sleep(300 * time.Millisecond)
		s.Notify()
		time.Sleep(300 * time.Millisecond)
		synctest.Wait()

		if n := len(v.calls()); n != 2 {
			t.Errorf("scrolls = %d, want 2", n)
		}
	})
}

func TestSynchronizer_AbsentViewIsNoOp(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(0, WithSyncMetrics(m))
		defer s.Stop()

		s.Notify()
		time.Sleep(DefaultScrollDelay + time.Millisecond)
		synctest.Wait()
		if s.Pending() {
			t.Error("timer still pending after it should have fired")
		}
	})
}

func TestSynchronizer_HiddenViewSkipsAndDoesNotQueue(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()
		v := &fakeView{visible: false}
		s.Attach(v)

		s.Notify()
		time.Sleep(250 * time.Millisecond)
		synctest.Wait()

		v.setVisible(true)
		time.Sleep(time.Second)
		synctest.Wait()
		if n := len(v.calls()); n != 0 {
			t.Errorf("scrolls = %d, want 0 (missed scroll must not be queued)", n)
		}
	})
}

func TestSynchronizer_DetachBeforeFire(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()
		v := &fakeView{visible: true}
		s.Attach(v)

		s.Notify()
		time.Sleep(100 * time.Millisecond)
		s.Detach()
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()
		if n := len(v.calls()); n != 0 {
			t.Errorf("scrolls = %d, want 0 after detach", n)
		}
	})
}

func TestSynchronizer_ViewCheckedAtFireTime(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()

		s.Notify()
		time.Sleep(100 * time.Millisecond)
		v := &fakeView{visible: true}
		s.Attach(v)
		time.Sleep(150 * time.Millisecond)
		synctest.Wait()
		if n := len(v.calls()); n != 1 {
			t.Errorf("scrolls = %d, want 1 for a view attached before the timer fired", n)
		}
	})
}

func TestSynchronizer_StopCancelsPending(t *testing.T) {
	m := noopMetrics(t)
	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		v := &fakeView{visible: true}
		s.Attach(v)

		s.Notify()
		time.Sleep(100 * time.Millisecond)
		s.Stop()
		s.Notify()
		time.Sleep(time.Second)
		synctest.Wait()

		if n := len(v.calls()); n != 0 {
			t.Errorf("scrolls = %d, want 0 after Stop", n)
		}
		if s.Pending() {
			t.Error("Pending after Stop")
		}
	})
}

func TestSynchronizer_RecordsOutcomes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	synctest.Test(t, func(t *testing.T) {
		s := NewSynchronizer(200*time.Millisecond, WithSyncMetrics(m))
		defer s.Stop()

		s.Notify() // no view: skipped
		time.Sleep(300 * time.Millisecond)

		s.Attach(&fakeView{visible: true})
		s.Notify() // scrolled
		time.Sleep(300 * time.Millisecond)
		synctest.Wait()
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "voicecanvas.scroll.effects" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				o, _ := dp.Attributes.Value("outcome")
				got[o.AsString()] = dp.Value
			}
		}
	}
	if got["scrolled"] != 1 || got["skipped"] != 1 {
		t.Errorf("outcomes = %v, want scrolled=1 skipped=1", got)
	}
}

func TestNewSynchronizer_DefaultDelay(t *testing.T) {
	t.Parallel()
	if d := NewSynchronizer(-time.Second, WithSyncMetrics(noopMetrics(t))).Delay(); d != DefaultScrollDelay {
		t.Errorf("delay = %v, want %v", d, DefaultScrollDelay)
	}
}
