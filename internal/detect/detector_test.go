package detect

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  Signal
	}{
		{name: "empty", chunk: "", want: SignalNone},
		{name: "noise", chunk: "loading...", want: SignalNone},
		{name: "other error", chunk: "Com_ERROR: EXE_DISCONNECTED", want: SignalNone},
		{name: "connected", chunk: "not allowing server to override saved dvar foo", want: SignalConnected},
		{name: "full", chunk: "Com_ERROR: EXE_SERVERISFULL", want: SignalServerFull},
		{name: "both", chunk: "EXE_SERVERISFULL\nnot allowing server to override saved dvar cg_fov", want: SignalConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.chunk); got != tt.want {
				t.Fatalf("Classify(%q) = %s, want %s", tt.chunk, got, tt.want)
			}
		})
	}
}

func TestClassifySequence(t *testing.T) {
	deltas := []string{"", "loading...", "not allowing server to override saved dvar foo"}
	want := []Signal{SignalNone, SignalNone, SignalConnected}
	for i, delta := range deltas {
		if got := Classify(delta); got != want[i] {
			t.Fatalf("read %d: got %s want %s", i+1, got, want[i])
		}
	}
}
