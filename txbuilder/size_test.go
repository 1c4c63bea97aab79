package txbuilder

import "testing"

func TestEstimateInputSize(t *testing.T) {
	tests := []struct {
		name      string
		script    []byte
		wantSize  int
		wantKnown bool
	}{
		{"P2PKH", p2pkhScript(t), 148, true},
		{"P2SH", p2shScript(t), 300, true},
		{"P2WPKH", p2wpkhScript(t), 108, true},
		{"bare multisig", dataScript(t), InputBaseSize, false},
		{"empty", nil, InputBaseSize, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, known := EstimateInputSize(tt.script)
			if size != tt.wantSize || known != tt.wantKnown {
				t.Errorf("EstimateInputSize() = %d, %v, want %d, %v", size, known, tt.wantSize, tt.wantKnown)
			}
		})
	}
}

func TestEstimateOutputSize(t *testing.T) {
	if got := EstimateOutputSize(Output{Address: testP2WPKHAddress}); got != AddressOutputSize {
		t.Errorf("address output size = %d, want %d", got, AddressOutputSize)
	}
	if got := EstimateOutputSize(Output{Script: dataScript(t)}); got != 113 {
		t.Errorf("data output size = %d, want 113", got)
	}
}

func TestScriptType(t *testing.T) {
	tests := []struct {
		script      []byte
		want        string
		wantWitness bool
	}{
		{p2pkhScript(t), ScriptTypePubKeyHash, false},
		{p2shScript(t), ScriptTypeScriptHash, false},
		{p2wpkhScript(t), ScriptTypeWitnessV0PKH, true},
		{dataScript(t), ScriptTypeMultisig, false},
		{[]byte{0x6a, 0x01, 0x00}, ScriptTypeNullData, false},
		{[]byte{0xff}, ScriptTypeNonStandard, false},
	}

	for _, tt := range tests {
		got := ScriptType(tt.script)
		if got != tt.want {
			t.Errorf("ScriptType(%x) = %q, want %q", tt.script, got, tt.want)
		}
		if IsWitnessType(got) != tt.wantWitness {
			t.Errorf("IsWitnessType(%q) = %v, want %v", got, !tt.wantWitness, tt.wantWitness)
		}
	}
}
