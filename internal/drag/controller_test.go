package drag

import (
	"maps"
	"testing"

	"go.uber.org/zap"

	"options-dashboard-sync/internal/service"
)

// fakeSurface 单 goroutine 使用的图表表面
type fakeSurface struct {
	top       float64
	listeners map[EventKind]map[int]Listener
	next      int
	cursor    Cursor
	moved     map[string]float64
}

func newFakeSurface(top float64) *fakeSurface {
	return &fakeSurface{
		top:       top,
		listeners: map[EventKind]map[int]Listener{},
		moved:     map[string]float64{},
	}
}

func (f *fakeSurface) Top() float64 { return f.top }

func (f *fakeSurface) Listen(kind EventKind, fn Listener) func() {
	if f.listeners[kind] == nil {
		f.listeners[kind] = map[int]Listener{}
	}
	id := f.next
	f.next++
	f.listeners[kind][id] = fn
	return func() { delete(f.listeners[kind], id) }
}

func (f *fakeSurface) SetCursor(c Cursor) { f.cursor = c }

func (f *fakeSurface) MoveMarker(name string, price float64) { f.moved[name] = price }

func (f *fakeSurface) fire(kind EventKind, ev PointerEvent) bool {
	claimed := false
	for _, fn := range maps.Clone(f.listeners[kind]) {
		if fn(ev) {
			claimed = true
		}
	}
	return claimed
}

func (f *fakeSurface) count(kind EventKind) int { return len(f.listeners[kind]) }

// linear 价格 100 对应 y=0，每 1 元 10 像素
type linear struct{}

func (linear) PriceToPixel(price float64) (float64, bool) { return (100 - price) * 10, true }
func (linear) PixelToPrice(y float64) (float64, bool)     { return 100 - y/10, true }

func at(y float64) PointerEvent { return PointerEvent{Button: ButtonPrimary, ClientY: y} }

func newTestController(top float64, opts ...Option) (*Controller, *fakeSurface) {
	s := newFakeSurface(top)
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewController(s, linear{}, opts...), s
}

func TestController_MissClaimsNothing(t *testing.T) {
	c, s := newTestController(20)
	c.SetMarkers(map[string]float64{"SL": 95}) // y = 50 (+20 top)

	calls := 0
	c.SetUpdateHandler(func(string, float64) bool { calls++; return true })

	if s.fire(PointerDown, at(20+50+5.5)) {
		t.Error("pointer-down beyond threshold must not be claimed")
	}
	if _, ok := c.Session(); ok {
		t.Error("no session expected")
	}
	if s.count(PointerMove) != 0 || s.count(PointerUp) != 0 {
		t.Error("move/up listeners must not be attached without a session")
	}
	s.fire(PointerMove, at(0))
	if calls != 0 {
		t.Errorf("update handler called %d times", calls)
	}
}

func TestController_DragAcceptedAndVetoed(t *testing.T) {
	c, s := newTestController(20)
	c.SetMarkers(map[string]float64{"SL": 95, "TP": 105})

	accept := true
	var proposals []float64
	c.SetUpdateHandler(func(name string, price float64) bool {
		if name != "SL" {
			t.Errorf("unexpected line %s", name)
		}
		proposals = append(proposals, price)
		return accept
	})

	if !s.fire(PointerDown, at(20+50+5)) {
		t.Fatal("pointer-down within 5px should be claimed")
	}
	sess, ok := c.Session()
	if !ok || sess.LineID != "SL" || sess.OriginalPrice != 95 {
		t.Fatalf("unexpected session %+v", sess)
	}
	if s.cursor != CursorGrabbing {
		t.Error("cursor should switch to grabbing")
	}

	s.fire(PointerMove, at(20+60)) // 94
	if got := c.Markers()["SL"]; got != 94 || s.moved["SL"] != 94 {
		t.Errorf("accepted move should apply, marker=%v moved=%v", got, s.moved["SL"])
	}

	accept = false
	s.fire(PointerMove, at(20+100)) // 90
	if got := c.Markers()["SL"]; got != 94 || s.moved["SL"] != 94 {
		t.Errorf("vetoed move must leave marker unchanged, got %v", got)
	}
	if _, ok := c.Session(); !ok {
		t.Error("session must survive a veto")
	}
	if len(proposals) != 2 || proposals[1] != 90 {
		t.Errorf("unexpected proposals %v", proposals)
	}

	s.fire(PointerUp, at(20+100))
	if _, ok := c.Session(); ok {
		t.Error("pointer-up should end the session")
	}
	if s.count(PointerMove) != 0 || s.count(PointerUp) != 0 {
		t.Error("move/up listeners should be detached")
	}
	if s.cursor != CursorDefault {
		t.Error("cursor should be restored")
	}
}

func TestController_NoHandlerAcceptsAll(t *testing.T) {
	c, s := newTestController(0)
	c.SetMarkers(map[string]float64{"L1": 50})

	s.fire(PointerDown, at(500))
	s.fire(PointerMove, at(480))
	if got := c.Markers()["L1"]; got != 52 {
		t.Errorf("expected 52, got %v", got)
	}
}

func TestController_ClosestMarkerWins(t *testing.T) {
	c, s := newTestController(0)
	// A 在 y=500，B 在 y=504，C 与 A 重合
	c.SetMarkers(map[string]float64{"B": 49.6, "A": 50, "C": 50})

	s.fire(PointerDown, at(503))
	if sess, _ := c.Session(); sess.LineID != "B" {
		t.Errorf("closest marker should win, got %q", sess.LineID)
	}
	s.fire(PointerUp, at(503))

	s.fire(PointerDown, at(500))
	if sess, _ := c.Session(); sess.LineID != "A" {
		t.Errorf("ties should break by name, got %q", sess.LineID)
	}
}

func TestController_IgnoresSecondaryButton(t *testing.T) {
	c, s := newTestController(0)
	c.SetMarkers(map[string]float64{"L1": 50})
	if s.fire(PointerDown, PointerEvent{Button: 2, ClientY: 500}) {
		t.Error("secondary button must not be claimed")
	}
	if _, ok := c.Session(); ok {
		t.Error("no session expected")
	}
}

func TestController_SetMarkersChangeDetection(t *testing.T) {
	c, _ := newTestController(0)
	if !c.SetMarkers(map[string]float64{"TP": 105, "SL": 95}) {
		t.Error("first set should report a change")
	}
	if c.SetMarkers(map[string]float64{"SL": 95.004, "TP": 105}) {
		t.Error("differences within price epsilon should not report a change")
	}
	if !c.SetMarkers(map[string]float64{"SL": 95.5, "TP": 105}) {
		t.Error("a real move should report a change")
	}

	external := map[string]float64{"X": 1}
	c.SetMarkers(external)
	external["X"] = 2
	if c.Markers()["X"] != 1 {
		t.Error("controller must own its copy of the markers")
	}
}

func TestController_RemovedMarkerEndsSession(t *testing.T) {
	c, s := newTestController(0)
	c.SetMarkers(map[string]float64{"SL": 95, "TP": 105})
	s.fire(PointerDown, at(50))

	c.SetMarkers(map[string]float64{"TP": 105})
	if _, ok := c.Session(); ok {
		t.Error("session should end when its marker disappears")
	}
	if s.count(PointerMove) != 0 {
		t.Error("move listener should be detached")
	}
}

func TestController_Deactivate(t *testing.T) {
	c, s := newTestController(0)
	c.SetMarkers(map[string]float64{"SL": 95})
	s.fire(PointerDown, at(50))

	c.Deactivate()
	c.Deactivate()

	for _, kind := range []EventKind{PointerDown, PointerMove, PointerUp} {
		if n := s.count(kind); n != 0 {
			t.Errorf("%s: %d listeners leaked", kind, n)
		}
	}
	if _, ok := c.Session(); ok {
		t.Error("deactivate should drop the session")
	}
}

func TestController_TickSizeSnapping(t *testing.T) {
	c, s := newTestController(0, WithTickSize(0.05))
	c.SetMarkers(map[string]float64{"L1": 50})

	s.fire(PointerDown, at(500))
	s.fire(PointerMove, at(487))   // 51.3
	s.fire(PointerMove, at(486))   // 51.4
	s.fire(PointerMove, at(485.3)) // 51.47 -> 51.45
	if got := c.Markers()["L1"]; got != 51.45 {
		t.Errorf("expected snapped 51.45, got %v", got)
	}
}

func TestController_OptionsFromConfig(t *testing.T) {
	cfg := service.DefaultConfig().Drag
	cfg.Threshold = 2
	c, s := newTestController(0, OptionsFromConfig(cfg)...)
	c.SetMarkers(map[string]float64{"L1": 50})

	if s.fire(PointerDown, at(503)) {
		t.Error("3px away should miss with a 2px threshold")
	}
	if !s.fire(PointerDown, at(502)) {
		t.Error("2px away should hit with a 2px threshold")
	}
}
