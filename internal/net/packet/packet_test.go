package packet

import (
	"testing"

	"go.uber.org/zap"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriterWithOpcode(COpcodeChat)
	w.WriteC(7)
	w.WriteH(513)
	w.WriteD(-42)
	w.WriteDU(3_000_000_000)
	w.WriteQ(0x0102030405060708)
	w.WriteS("hello")
	w.WriteS("法師") // Big5 round trip

	r := NewReader(w.Bytes())
	if r.Opcode() != COpcodeChat {
		t.Fatalf("opcode = %d", r.Opcode())
	}
	if v := r.ReadC(); v != 7 {
		t.Fatalf("ReadC = %d", v)
	}
	if v := r.ReadH(); v != 513 {
		t.Fatalf("ReadH = %d", v)
	}
	if v := r.ReadD(); v != -42 {
		t.Fatalf("ReadD = %d", v)
	}
	if v := r.ReadDU(); v != 3_000_000_000 {
		t.Fatalf("ReadDU = %d", v)
	}
	if v := r.ReadQ(); v != 0x0102030405060708 {
		t.Fatalf("ReadQ = %x", v)
	}
	if v := r.ReadS(); v != "hello" {
		t.Fatalf("ReadS = %q", v)
	}
	if v := r.ReadS(); v != "法師" {
		t.Fatalf("ReadS big5 = %q", v)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}

func TestReaderPastEnd(t *testing.T) {
	r := NewReader([]byte{0x01, 0x00, 0xAA})
	if v := r.ReadC(); v != 0xAA {
		t.Fatalf("ReadC = %d", v)
	}
	// Every read past the end yields zero values, never panics.
	if r.ReadC() != 0 || r.ReadH() != 0 || r.ReadD() != 0 || r.ReadQ() != 0 || r.ReadS() != "" {
		t.Fatalf("reads past end must be zero")
	}
}

func TestClassificationIsTotal(t *testing.T) {
	// Any opcode, including ones no table lists, resolves to a thread class.
	for _, op := range []Opcode{COpcodePing, COpcodeCastSpell, 0xFFFF, 0x0999} {
		p := Classify(op)
		if p != ProcessInline && p != ProcessMainThread {
			t.Fatalf("Classify(%d) = %v", op, p)
		}
	}
	// Unknowns take the safe side.
	if Classify(0xFFFF) != ProcessMainThread {
		t.Fatalf("unknown opcode must classify to the world thread")
	}
}

func TestClassificationIsDeterministic(t *testing.T) {
	cases := []struct {
		op   Opcode
		want Processing
	}{
		{COpcodePing, ProcessInline},
		{COpcodeChat, ProcessInline},
		{COpcodeTimeSyncResponse, ProcessInline},
		{COpcodeQuestQuery, ProcessInline},
		{COpcodeCastSpell, ProcessMainThread},
		{COpcodeUseItem, ProcessMainThread},
		{COpcodeResurrectResponse, ProcessMainThread},
		{COpcodeMoveWorldportAck, ProcessMainThread},
		{COpcodeGroupAccept, ProcessMainThread},
		{COpcodeTradeAccept, ProcessMainThread},
	}
	for _, c := range cases {
		for i := 0; i < 3; i++ {
			if got := Classify(c.op); got != c.want {
				t.Fatalf("Classify(%#x) = %v, want %v", uint16(c.op), got, c.want)
			}
		}
	}
}

func TestDispatchStatusGate(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var calls int
	reg.Register(COpcodeCastSpell, []SessionStatus{StatusInWorld}, func(sess any, r *Reader) {
		calls++
	})

	data := NewWriterWithOpcode(COpcodeCastSpell).Bytes()
	if err := reg.Dispatch(nil, StatusAuthed, data); err == nil {
		t.Fatalf("cast before world entry must be refused")
	}
	if err := reg.Dispatch(nil, StatusInWorld, data); err != nil {
		t.Fatalf("dispatch in world: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times", calls)
	}
}

func TestDispatchUnknownOpcodeIgnored(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	data := NewWriterWithOpcode(0x0999).Bytes()
	if err := reg.Dispatch(nil, StatusInWorld, data); err != nil {
		t.Fatalf("unknown opcode must be silently ignored, got %v", err)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(COpcodeChat, []SessionStatus{StatusInWorld}, func(sess any, r *Reader) {
		panic("malformed chat body")
	})
	data := NewWriterWithOpcode(COpcodeChat).Bytes()
	if err := reg.Dispatch(nil, StatusInWorld, data); err == nil {
		t.Fatalf("panicking handler must surface as an error")
	}
}
