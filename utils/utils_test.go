package utils

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

// ---------------------------------------------------------------------------
// CAN map loading
// ---------------------------------------------------------------------------

func TestLoadCANMap_CSV(t *testing.T) {
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"PAD_CURVATURE", "PAD_STICKS", "PAD_TRIGGERS_BUTTONS", "WHEEL_PEDALS"}, m.FrameNames())

	fd, err := m.FrameByID(0x102)
	require.NoError(t, err)
	assert.Equal(t, "PAD_CURVATURE", fd.Name)
	assert.Equal(t, 8, fd.DLC)
	assert.Equal(t, 20, fd.CycleMS)
	require.Len(t, fd.Signals, 2)
	assert.Equal(t, "curve_radius", fd.Signals[0].Name)
	assert.Equal(t, ValueFloat32, fd.Signals[0].ValueType)

	sticks, err := m.FrameByName("PAD_STICKS")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), sticks.ID)
	assert.Len(t, sticks.Signals, 4)
}

func TestLoadCANMap_DBC(t *testing.T) {
	csvMap, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	dbcMap, err := LoadCANMap("../config/can/pad2can.dbc")
	require.NoError(t, err)

	assert.Equal(t, csvMap.FrameNames(), dbcMap.FrameNames())
	for id, want := range csvMap.ByID {
		got, err := dbcMap.FrameByID(id)
		require.NoError(t, err)
		assert.Equal(t, want.DLC, got.DLC, want.Name)
		require.Len(t, got.Signals, len(want.Signals), want.Name)
		for i := range want.Signals {
			assert.Equal(t, want.Signals[i].Name, got.Signals[i].Name)
			assert.Equal(t, want.Signals[i].StartBit, got.Signals[i].StartBit)
			assert.Equal(t, want.Signals[i].BitLength, got.Signals[i].BitLength)
			assert.Equal(t, want.Signals[i].ValueType, got.Signals[i].ValueType)
		}
	}

	// Both maps must produce identical payloads.
	values := map[string]float64{"curve_radius": -950, "curvature": -0.0010526}
	a, _, err := csvMap.EncodeFrame("PAD_CURVATURE", values)
	require.NoError(t, err)
	b, _, err := dbcMap.EncodeFrame("PAD_CURVATURE", values)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	wheel := map[string]float64{"steering": -12345, "throttle": 200, "rpm": 43981, "gear": -2}
	a, _, err = csvMap.EncodeFrame("WHEEL_PEDALS", wheel)
	require.NoError(t, err)
	b, _, err = dbcMap.EncodeFrame("WHEEL_PEDALS", wheel)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

const header = "direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment,value_type\n"

func TestReadCANMap_Errors(t *testing.T) {
	tests := map[string]string{
		"missing column":    "frame_id,frame_name\n0x1,A\n",
		"bad dlc":           header + "tx,0x1,A,10,9,s,0,8,little,false,1,0,0,0,0,,,int\n",
		"bits beyond dlc":   header + "tx,0x1,A,10,1,s,4,8,little,false,1,0,0,0,0,,,int\n",
		"float not 32 bits": header + "tx,0x1,A,10,2,s,0,16,little,false,1,0,0,0,0,,,float\n",
		"big beyond dlc":    header + "tx,0x1,A,10,1,s,7,16,big,false,1,0,0,0,0,,,int\n",
		"big crosses byte":  header + "tx,0x1,A,10,1,s,0,8,big,false,1,0,0,0,0,,,int\n",
		"bad endianness":    header + "tx,0x1,A,10,1,s,0,8,middle,false,1,0,0,0,0,,,int\n",
		"unknown type":      header + "tx,0x1,A,10,1,s,0,8,little,false,1,0,0,0,0,,,complex\n",
		"inconsistent dlc":  header + "tx,0x1,A,10,1,s,0,8,little,false,1,0,0,0,0,,,int\ntx,0x1,A,10,2,t,8,8,little,false,1,0,0,0,0,,,int\n",
		"bad id":            header + "tx,zz,A,10,1,s,0,8,little,false,1,0,0,0,0,,,int\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCANMap(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestReadCANMap_ValueTypeOptional(t *testing.T) {
	legacy := strings.TrimSuffix(header, ",value_type\n") + "\n" +
		"tx,0x10,A,10,2,speed,0,16,little,true,0.01,0,-300,300,0,m/s,\n"
	m, err := ReadCANMap(strings.NewReader(legacy))
	require.NoError(t, err)
	fd, err := m.FrameByName("A")
	require.NoError(t, err)
	assert.Equal(t, ValueInt, fd.Signals[0].ValueType)
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

func testMap(t *testing.T) *CANMap {
	t.Helper()
	doc := header +
		"tx,0x20,MIX,10,8,speed,0,16,little,true,0.01,0,-300,300,0,m/s,,int\n" +
		"tx,0x20,MIX,10,8,gear,16,4,little,true,1,0,-8,7,0,,,int\n" +
		"tx,0x20,MIX,10,8,flag,20,1,little,false,1,0,0,1,1,,,int\n" +
		"tx,0x20,MIX,10,8,yaw,32,32,little,true,1,0,0,0,0,rad/s,,float\n" +
		"tx,0x21,WIDE,10,8,value,0,64,little,true,1,0,0,0,0,,,double\n"
	m, err := ReadCANMap(strings.NewReader(doc))
	require.NoError(t, err)
	return m
}

func TestCodec_RoundTrip(t *testing.T) {
	m := testMap(t)

	in := map[string]float64{"speed": -12.34, "gear": -3, "yaw": 0.123456}
	payload, id, err := m.EncodeFrame("MIX", in)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20), id)
	assert.Len(t, payload, 8)

	out, err := m.DecodeFrame(id, payload)
	require.NoError(t, err)
	assert.InDelta(t, -12.34, out["speed"], 1e-9)
	assert.Equal(t, -3.0, out["gear"])
	assert.Equal(t, 1.0, out["flag"], "missing values use the default")
	assert.Equal(t, float64(float32(0.123456)), out["yaw"])

	payload, id, err = m.EncodeFrame("WIDE", map[string]float64{"value": math.Pi})
	require.NoError(t, err)
	out, err = m.DecodeFrame(id, payload)
	require.NoError(t, err)
	assert.Equal(t, math.Pi, out["value"])
}

func TestCodec_Saturation(t *testing.T) {
	m := testMap(t)

	payload, id, err := m.EncodeFrame("MIX", map[string]float64{"speed": 1000, "gear": -100})
	require.NoError(t, err)
	out, err := m.DecodeFrame(id, payload)
	require.NoError(t, err)
	assert.InDelta(t, 300, out["speed"], 1e-9)
	assert.Equal(t, -8.0, out["gear"])
}

func TestCodec_Float32LittleEndian(t *testing.T) {
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)

	payload, _, err := m.EncodeFrame("PAD_CURVATURE", map[string]float64{"curve_radius": 20, "curvature": 0.05})
	require.NoError(t, err)

	assert.Equal(t, math.Float32bits(20), uint32(payload[0])|uint32(payload[1])<<8|uint32(payload[2])<<16|uint32(payload[3])<<24)
	assert.Equal(t, math.Float32bits(0.05), uint32(payload[4])|uint32(payload[5])<<8|uint32(payload[6])<<16|uint32(payload[7])<<24)
}

func TestCodec_BigEndian(t *testing.T) {
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)

	in := map[string]float64{
		"steering": 0x1234,
		"throttle": 200,
		"brake":    1,
		"rpm":      0xABCD,
		"gear":     -2,
	}
	payload, id, err := m.EncodeFrame("WHEEL_PEDALS", in)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x60), id)
	assert.Equal(t, []byte{0x12, 0x34, 200, 1, 0, 0xAB, 0xCD, 0xFE}, payload)

	out, err := m.DecodeFrame(id, payload)
	require.NoError(t, err)
	for k, v := range in {
		assert.Equal(t, v, out[k], k)
	}
	assert.Equal(t, 0.0, out["clutch"])

	payload, _, err = m.EncodeFrame("WHEEL_PEDALS", map[string]float64{"steering": -32767})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x01}, payload[:2])
}

func TestSignalDef_Range(t *testing.T) {
	m, err := LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	fd, err := m.FrameByName("PAD_CURVATURE")
	require.NoError(t, err)

	radius, _ := fd.Signal("curve_radius")
	lo, hi := radius.Range()
	assert.Equal(t, -100000.0, lo)
	assert.Equal(t, 100000.0, hi)

	// Raw bits bound a scaled integer more tightly than an open min/max.
	lo, hi = SignalDef{BitLength: 16, Signed: true, Factor: 0.01}.Range()
	assert.InDelta(t, -327.68, lo, 1e-9)
	assert.InDelta(t, 327.67, hi, 1e-9)

	lo, hi = SignalDef{BitLength: 8, Factor: 1, Min: 0, Max: 1000}.Range()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 255.0, hi)

	lo, hi = SignalDef{BitLength: 32, ValueType: ValueFloat32}.Range()
	assert.Equal(t, -math.MaxFloat32, lo)
	assert.Equal(t, math.MaxFloat32, hi)
}

func TestEncodeEinrideFrame(t *testing.T) {
	m := testMap(t)

	f, err := m.EncodeEinrideFrame("MIX", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20), f.ID)
	assert.Equal(t, uint8(8), f.Length)
	assert.False(t, f.IsExtended)

	_, err = m.EncodeEinrideFrame("NOPE", nil)
	assert.Error(t, err)
}

func TestDecodeFrame_ShortPayload(t *testing.T) {
	m := testMap(t)
	_, err := m.DecodeFrame(0x20, []byte{1, 2})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Transports
// ---------------------------------------------------------------------------

func TestFormatSLCAN(t *testing.T) {
	f := can.Frame{ID: 0x102, Length: 3, Data: can.Data{0xDE, 0xAD, 0x01}}
	assert.Equal(t, "t1023DEAD01\r", FormatSLCAN(f))

	f = can.Frame{ID: 0x1ABCDE, IsExtended: true, Length: 1, Data: can.Data{0x7F}}
	assert.Equal(t, "T001ABCDE17F\r", FormatSLCAN(f))

	f = can.Frame{ID: 0x7FF, IsRemote: true, Length: 2}
	assert.Equal(t, "r7FF2\r", FormatSLCAN(f))
}

type fakePort struct {
	bytes.Buffer
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSLCANWriter(t *testing.T) {
	port := &fakePort{}
	w, err := newSLCANWriter(port, 500000)
	require.NoError(t, err)
	assert.Equal(t, "C\rS6\rO\r", port.String())

	port.Reset()
	require.NoError(t, w.WriteFrame(context.Background(), can.Frame{ID: 0x100, Length: 4, Data: can.Data{0, 128, 200, 255}}))
	assert.Equal(t, "t100400080C8FF\r", port.String())

	require.NoError(t, w.Close())
	assert.True(t, port.closed)

	_, err = newSLCANWriter(&fakePort{}, 42)
	assert.Error(t, err)
}

func TestLogWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewLogWriter(&out)

	require.NoError(t, w.WriteFrame(context.Background(), can.Frame{ID: 0x100, Length: 2, Data: can.Data{0x01, 0x02}}))
	assert.True(t, strings.HasPrefix(out.String(), "100#"), out.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, w.WriteFrame(ctx, can.Frame{ID: 0x100}))
}

func TestLogWriter_CloseLeavesOutputOpen(t *testing.T) {
	out := &fakePort{}
	w := NewLogWriter(out)
	require.NoError(t, w.Close())
	assert.False(t, out.closed)
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestLogger_Levels(t *testing.T) {
	var out bytes.Buffer
	l := NewWriterLogger(&out, WARN)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)
	l.Critical("boom")

	s := out.String()
	assert.NotContains(t, s, "hidden")
	assert.Contains(t, s, "[WARN] shown 2")
	assert.Contains(t, s, "[CRITICAL] boom")
	assert.False(t, l.Enabled(DEBUG))
	assert.True(t, l.Enabled(ERROR))

	l.SetMinLevel(TRACE)
	assert.True(t, l.Enabled(TRACE))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, CRITICAL, ParseLevel("critical"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
