package layer

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/observer"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/wire"
	"gridlayer.ai/internal/testutil"
)

// scriptedCodec hands out pre-built headers and synthetic heights so tests
// can use coordinates the real 10-bit patch ids cannot express.
type scriptedCodec struct {
	headers []wire.PatchHeader
	next    int

	headerCalls, gridCalls, reconstructCalls int
	groups                                   []wire.GroupHeader
	values                                   func(call, n int) []float32
	gridErr                                  error
}

func (s *scriptedCodec) DecodeHeader(*bitpack.Cursor) (wire.PatchHeader, error) {
	s.headerCalls++
	if s.next >= len(s.headers) {
		return wire.PatchHeader{}, fmt.Errorf("script exhausted: %w", bitpack.ErrTruncated)
	}
	h := s.headers[s.next]
	s.next++
	return h, nil
}

func (s *scriptedCodec) DecodeGrid(_ *bitpack.Cursor, _ wire.PatchHeader, size int) ([]int32, error) {
	s.gridCalls++
	if s.gridErr != nil {
		return nil, s.gridErr
	}
	return make([]int32, size*size), nil
}

func (s *scriptedCodec) Reconstruct(_ []int32, h wire.PatchHeader, g wire.GroupHeader) ([]float32, error) {
	s.reconstructCalls++
	s.groups = append(s.groups, g)
	n := int(g.PatchSize) * int(g.PatchSize)
	if s.values != nil {
		return s.values(s.reconstructCalls, n), nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(h.X*100 + h.Y)
	}
	return out, nil
}

func (s *scriptedCodec) calls() int {
	return s.headerCalls + s.gridCalls + s.reconstructCalls
}

func hdr(x, y uint32) wire.PatchHeader {
	return wire.PatchHeader{X: x, Y: y, QuantWBits: 0x11, DCOffset: 1, Range: 2, PatchIDs: x<<5 | y}
}

var endHdr = wire.PatchHeader{QuantWBits: wire.EndOfPatches}

type harness struct {
	dec    *Decoder
	events *observer.Publisher[LandPatchEvent]
	logs   *bytes.Buffer
	got    []LandPatchEvent
}

func newHarness(pc PatchCodec, persist, subscribe bool) *harness {
	h := &harness{logs: &bytes.Buffer{}}
	logger := log.New(h.logs, "", 0)
	h.events = observer.NewPublisher[LandPatchEvent]("land", logger)
	if subscribe {
		h.events.Subscribe(func(ev LandPatchEvent) { h.got = append(h.got, ev) })
	}
	h.dec = NewDecoder(Config{Codec: pc, Events: h.events, PersistState: persist, Logger: logger})
	return h
}

func (h *harness) coords() string {
	parts := make([]string, 0, len(h.got))
	for _, ev := range h.got {
		parts = append(parts, fmt.Sprintf("%d,%d", ev.X, ev.Y))
	}
	return strings.Join(parts, " ")
}

func newSim(edge int) *simulator.Simulator {
	return simulator.New(uuid.New(), "Ahern", edge)
}

func landMsg(data []byte) Message {
	return Message{Type: wire.Land, Data: data}
}

func TestLand_StopsAtSentinelInStreamOrder(t *testing.T) {
	h := newHarness(nil, true, true)
	sim := newSim(16)
	data := testutil.LandStream(16,
		testutil.Flat(4, 1, 10),
		testutil.Flat(0, 0, 11),
		testutil.Flat(15, 15, 12),
	)
	if err := h.dec.Decode(sim, landMsg(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := h.coords(); got != "4,1 0,0 15,15" {
		t.Fatalf("events: got %q", got)
	}
	for _, ev := range h.got {
		if ev.Origin != sim || ev.PatchSize != 16 || len(ev.Heights) != 256 {
			t.Fatalf("bad event payload: %+v", ev)
		}
	}
	if p := sim.Terrain()[1*16+4]; p == nil || p.Heights[0] != 10 {
		t.Fatalf("cache slot y*16+x not written: %+v", p)
	}
	if st := h.dec.Stats(); st.LandPatches != 3 || st.Messages != 1 || st.Aborted != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if h.logs.Len() != 0 {
		t.Fatalf("unexpected diagnostics: %s", h.logs.String())
	}
}

func TestLand_ImmediateSentinelYieldsNothing(t *testing.T) {
	h := newHarness(nil, true, true)
	sim := newSim(16)
	if err := h.dec.Decode(sim, landMsg(testutil.LandStream(16))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(h.got) != 0 || len(sim.LoadedPatches()) != 0 {
		t.Fatalf("expected no output, got %d events", len(h.got))
	}
}

func TestLand_TwoPatchScenario(t *testing.T) {
	h := newHarness(nil, false, true)
	sim := newSim(32)
	data := testutil.LandStream(16, testutil.Flat(0, 0, 1), testutil.Flat(31, 0, 2))
	if err := h.dec.Decode(sim, landMsg(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := h.coords(); got != "0,0 31,0" {
		t.Fatalf("events: got %q", got)
	}
}

func TestLand_InvalidCoordinateKeepsEarlierPatches(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0), hdr(33, 0), hdr(1, 1), endHdr}}
	h := newHarness(pc, true, true)
	sim := newSim(32)

	if err := h.dec.Decode(sim, landMsg(testutil.HeaderOnly(16, uint8(wire.Land)))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := h.coords(); got != "0,0" {
		t.Fatalf("events: got %q", got)
	}
	if pc.headerCalls != 2 {
		t.Fatalf("expected the stream to stop at the bad header, header calls=%d", pc.headerCalls)
	}
	if c := strings.Count(h.logs.String(), "kind=invalid_coordinate"); c != 1 {
		t.Fatalf("expected one bounds diagnostic, got %d:\n%s", c, h.logs.String())
	}
	for _, want := range []string{"level=warn", "x=33", "y=0", "dc_offset=1", "range=2", "patch_ids=", "patches=1"} {
		if !strings.Contains(h.logs.String(), want) {
			t.Fatalf("diagnostic missing %q: %s", want, h.logs.String())
		}
	}
	if len(sim.LoadedPatches()) != 1 || sim.PatchAt(0, 0) == nil {
		t.Fatalf("cache should hold only the valid patch")
	}
	if st := h.dec.Stats(); st.Aborted != 1 || st.LandPatches != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestLand_KthHeaderOutOfBounds(t *testing.T) {
	for k := 1; k <= 4; k++ {
		headers := make([]wire.PatchHeader, 0, 6)
		for i := 1; i < k; i++ {
			headers = append(headers, hdr(uint32(i), 0))
		}
		headers = append(headers, hdr(0, 16), hdr(2, 2), endHdr)
		h := newHarness(&scriptedCodec{headers: headers}, false, true)

		if err := h.dec.Decode(newSim(16), landMsg(testutil.HeaderOnly(16, 0))); err != nil {
			t.Fatalf("k=%d: decode: %v", k, err)
		}
		if len(h.got) != k-1 {
			t.Fatalf("k=%d: got %d events want %d", k, len(h.got), k-1)
		}
	}
}

func TestLand_RepeatedMessageOverwritesIdentically(t *testing.T) {
	h := newHarness(nil, true, false)
	sim := newSim(16)
	grid := make([]int32, 40)
	grid[0], grid[3], grid[39] = 9, -4, 2
	data := testutil.LandStream(16, testutil.Patch{X: 2, Y: 3, QuantWBits: 0x24, DCOffset: 20, Range: 30, Coeffs: grid})

	if err := h.dec.Decode(sim, landMsg(data)); err != nil {
		t.Fatalf("first decode: %v", err)
	}
	first := append([]float32(nil), sim.PatchAt(2, 3).Heights...)
	if err := h.dec.Decode(sim, landMsg(data)); err != nil {
		t.Fatalf("second decode: %v", err)
	}
	if !reflect.DeepEqual(first, sim.PatchAt(2, 3).Heights) {
		t.Fatalf("cache changed between identical messages")
	}
	if len(sim.LoadedPatches()) != 1 {
		t.Fatalf("expected one cached patch, got %d", len(sim.LoadedPatches()))
	}
}

func TestLand_SkippedWithoutConsumers(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0), endHdr}}
	h := newHarness(pc, false, false)

	if err := h.dec.Decode(newSim(16), landMsg(testutil.HeaderOnly(16, 0))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.calls() != 0 {
		t.Fatalf("decode primitives invoked %d times with no consumer", pc.calls())
	}
	if st := h.dec.Stats(); st.LandSkipped != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestLand_PersistAloneStillDecodes(t *testing.T) {
	h := newHarness(nil, true, false)
	sim := newSim(16)
	if err := h.dec.Decode(sim, landMsg(testutil.LandStream(16, testutil.Flat(1, 2, 5)))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p := sim.PatchAt(1, 2); p == nil || p.Heights[100] != 5 {
		t.Fatalf("expected cached patch, got %+v", p)
	}
}

func TestLand_SubscriberOnlyDoesNotTouchCache(t *testing.T) {
	h := newHarness(nil, false, true)
	sim := newSim(16)
	if err := h.dec.Decode(sim, landMsg(testutil.LandStream(16, testutil.Flat(1, 2, 5)))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(h.got) != 1 || len(sim.LoadedPatches()) != 0 {
		t.Fatalf("events=%d cached=%d", len(h.got), len(sim.LoadedPatches()))
	}
}

func TestLand_PanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	h := newHarness(nil, false, false)
	h.events.Subscribe(func(LandPatchEvent) { panic("subscriber bug") })
	var got []LandPatchEvent
	h.events.Subscribe(func(ev LandPatchEvent) { got = append(got, ev) })
	sim := newSim(16)

	data := testutil.LandStream(16, testutil.Flat(0, 0, 1), testutil.Flat(1, 0, 2))
	for i := 0; i < 2; i++ {
		if err := h.dec.Decode(sim, landMsg(data)); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
	}
	if len(got) != 4 {
		t.Fatalf("healthy subscriber got %d events want 4", len(got))
	}
	if c := strings.Count(h.logs.String(), "kind=subscriber_failed"); c != 4 {
		t.Fatalf("expected 4 subscriber failures logged, got %d", c)
	}
}

func TestLand_TruncationPropagatesAndKeepsEarlierPatches(t *testing.T) {
	h := newHarness(nil, true, true)
	sim := newSim(16)
	data := testutil.LandStream(16, testutil.Flat(0, 0, 1), testutil.Flat(1, 0, 2))
	// Cut inside the second patch header.
	cut := data[:4+9+3]

	err := h.dec.Decode(sim, landMsg(cut))
	if !errors.Is(err, bitpack.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
	if len(h.got) != 1 || sim.PatchAt(0, 0) == nil {
		t.Fatalf("earlier patch lost: events=%d", len(h.got))
	}
}

func TestLand_UnsupportedPatchSizeIsContained(t *testing.T) {
	h := newHarness(nil, true, true)
	data := testutil.LandStream(8, testutil.Flat(0, 0, 1), testutil.Flat(1, 0, 1))
	if err := h.dec.Decode(newSim(16), landMsg(data)); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(h.got) != 0 {
		t.Fatalf("expected no events, got %d", len(h.got))
	}
	if c := strings.Count(h.logs.String(), "kind=undecodable_patch"); c != 1 {
		t.Fatalf("expected one diagnostic, got %d: %s", c, h.logs.String())
	}
}

func TestLand_GridErrorIsContained(t *testing.T) {
	pc := &scriptedCodec{
		headers: []wire.PatchHeader{hdr(1, 1), hdr(2, 2), endHdr},
		gridErr: errors.New("corrupt coefficient prefix"),
	}
	h := newHarness(pc, true, true)
	sim := newSim(16)
	if err := h.dec.Decode(sim, landMsg(testutil.HeaderOnly(16, uint8(wire.Land)))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.headerCalls != 1 || pc.gridCalls != 1 || pc.reconstructCalls != 0 {
		t.Fatalf("expected abort after first grid: header=%d grid=%d reconstruct=%d", pc.headerCalls, pc.gridCalls, pc.reconstructCalls)
	}
	if len(h.got) != 0 || len(sim.LoadedPatches()) != 0 {
		t.Fatalf("undecodable patch was delivered")
	}
	if c := strings.Count(h.logs.String(), "kind=undecodable_patch"); c != 1 {
		t.Fatalf("expected one diagnostic, got %d: %s", c, h.logs.String())
	}
	if st := h.dec.Stats(); st.Aborted != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestDecodeWithoutSimulatorIsContained(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0), endHdr}}
	h := newHarness(pc, true, true)
	if err := h.dec.Decode(nil, landMsg(testutil.HeaderOnly(16, uint8(wire.Land)))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.calls() != 0 || len(h.got) != 0 {
		t.Fatalf("decoded without a simulator: calls=%d events=%d", pc.calls(), len(h.got))
	}
	if !strings.Contains(h.logs.String(), "level=error kind=no_simulator sim=<nil> layer=LAND") {
		t.Fatalf("log: %q", h.logs.String())
	}
}

func TestGroupHeaderTruncation(t *testing.T) {
	h := newHarness(nil, true, true)
	err := h.dec.Decode(newSim(16), Message{Type: wire.Land, Data: []byte{0, 16}})
	if !errors.Is(err, bitpack.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestWind_PairsComponentsAndOverridesStride(t *testing.T) {
	pc := &scriptedCodec{
		headers: []wire.PatchHeader{hdr(0, 0), endHdr, hdr(5, 5)},
		values: func(call, n int) []float32 {
			out := make([]float32, n)
			for i := range out {
				if call == 1 {
					out[i] = float32(i)
				} else {
					out[i] = -float32(i)
				}
			}
			return out
		},
	}
	h := newHarness(pc, true, true)
	sim := newSim(16)

	var w bitpack.Writer
	testutil.WriteGroupHeader(&w, 300, 16, uint8(wire.Wind))
	if err := h.dec.Decode(sim, Message{Type: wire.Wind, Data: w.Bytes()}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.headerCalls != 2 || pc.reconstructCalls != 2 {
		t.Fatalf("expected exactly two patches, headers=%d reconstructs=%d", pc.headerCalls, pc.reconstructCalls)
	}
	for _, g := range pc.groups {
		if g.Stride != 16 {
			t.Fatalf("stride not normalized to patch size: %d", g.Stride)
		}
	}
	field, ok := sim.Wind()
	if !ok {
		t.Fatalf("wind not cached")
	}
	for i, v := range field {
		if v.X != float32(i) || v.Y != -float32(i) {
			t.Fatalf("cell %d: got %+v", i, v)
		}
	}
	if len(h.got) != 0 {
		t.Fatalf("wind must not publish land events")
	}
}

func TestWind_RealCodecIgnoresTrailingBytes(t *testing.T) {
	h := newHarness(nil, true, false)
	sim := newSim(16)
	data := testutil.WindStream(testutil.Flat(0, 0, 2.5), testutil.Flat(0, 0, -1))
	data = append(data, 0xde, 0xad, 0xbe, 0xef)

	if err := h.dec.Decode(sim, Message{Type: wire.Wind, Data: data}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	field, _ := sim.Wind()
	for i, v := range field {
		if v != (simulator.Vector2{X: 2.5, Y: -1}) {
			t.Fatalf("cell %d: got %+v", i, v)
		}
	}
	if st := h.dec.Stats(); st.WindFields != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestWind_DecodedEvenWithoutConsumers(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0), hdr(0, 0)}}
	h := newHarness(pc, false, false)
	sim := newSim(16)
	if err := h.dec.Decode(sim, Message{Type: wire.Wind, Data: testutil.HeaderOnly(16, uint8(wire.Wind))}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.reconstructCalls != 2 {
		t.Fatalf("wind skipped: reconstruct calls=%d", pc.reconstructCalls)
	}
	if _, ok := sim.Wind(); ok {
		t.Fatalf("wind cached with persistence disabled")
	}
}

func TestWind_WrongPatchSizeIsContained(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0), hdr(0, 0)}}
	h := newHarness(pc, true, false)
	sim := newSim(16)
	if err := h.dec.Decode(sim, Message{Type: wire.Wind, Data: testutil.HeaderOnly(32, uint8(wire.Wind))}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := sim.Wind(); ok {
		t.Fatalf("malformed wind replaced the cached field")
	}
	if !strings.Contains(h.logs.String(), "kind=undecodable_patch") {
		t.Fatalf("expected diagnostic, got %q", h.logs.String())
	}
}

func TestWind_Truncated(t *testing.T) {
	h := newHarness(nil, true, false)
	data := testutil.WindStream(testutil.Flat(0, 0, 1), testutil.Flat(0, 0, 1))
	err := h.dec.Decode(newSim(16), Message{Type: wire.Wind, Data: data[:len(data)-6]})
	if !errors.Is(err, bitpack.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestWater_LoggedAndDiscarded(t *testing.T) {
	pc := &scriptedCodec{headers: []wire.PatchHeader{hdr(0, 0)}}
	h := newHarness(pc, true, true)
	data := append(testutil.HeaderOnly(16, uint8(wire.Water)), 1, 2, 3)
	if err := h.dec.Decode(newSim(16), Message{Type: wire.Water, Data: data}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.calls() != 0 {
		t.Fatalf("water must not be decoded")
	}
	lines := strings.Split(strings.TrimSpace(h.logs.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "level=error kind=unimplemented_layer") {
		t.Fatalf("expected one error line, got %q", h.logs.String())
	}
}

func TestUnknownLayer_LoggedAndDiscarded(t *testing.T) {
	pc := &scriptedCodec{}
	h := newHarness(pc, true, true)
	if err := h.dec.Decode(newSim(16), Message{Type: wire.Other, Data: testutil.HeaderOnly(16, 0x4c)}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.calls() != 0 {
		t.Fatalf("unknown layer must not be decoded")
	}
	lines := strings.Split(strings.TrimSpace(h.logs.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "level=warn kind=unrecognized_layer") || !strings.Contains(lines[0], "type=0x4c") {
		t.Fatalf("expected one warning line, got %q", h.logs.String())
	}
	if st := h.dec.Stats(); st.Discarded != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestCloud_NoObservableEffect(t *testing.T) {
	pc := &scriptedCodec{}
	h := newHarness(pc, true, true)
	sim := newSim(16)
	data := append(testutil.HeaderOnly(16, uint8(wire.Cloud)), 0xff, 0xff)
	if err := h.dec.Decode(sim, Message{Type: wire.Cloud, Data: data}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pc.calls() != 0 || h.logs.Len() != 0 || len(h.got) != 0 {
		t.Fatalf("cloud had an effect: calls=%d logs=%q events=%d", pc.calls(), h.logs.String(), len(h.got))
	}
	if _, ok := sim.Wind(); ok || len(sim.LoadedPatches()) != 0 {
		t.Fatalf("cloud touched the cache")
	}
	if cloud, _ := sim.Cloud(); cloud != (simulator.CloudField{}) {
		t.Fatalf("cloud field not empty: %+v", cloud)
	}
}

type captureSink struct{ got []Diagnostic }

func (s *captureSink) WriteDiagnostic(d Diagnostic) error {
	s.got = append(s.got, d)
	return nil
}

func TestDiagnosticsReachSink(t *testing.T) {
	sink := &captureSink{}
	dec := NewDecoder(Config{Logger: log.New(&bytes.Buffer{}, "", 0), Sink: sink})
	if err := dec.Decode(newSim(16), Message{Type: wire.Water, Data: testutil.HeaderOnly(16, uint8(wire.Water))}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].Kind != KindUnimplemented || sink.got[0].Sim != "Ahern" || sink.got[0].Time.IsZero() {
		t.Fatalf("sink: %+v", sink.got)
	}
}
