package chain

import (
	"encoding/json"
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestParseReserves(t *testing.T) {
	// reserve0 = 1e18, reserve1 = 2e18, third word is the timestamp and
	// must be ignored.
	word := func(v sdkmath.Int) string {
		h := v.BigInt().Text(16)
		return strings.Repeat("0", 64-len(h)) + h
	}
	r0 := sdkmath.NewInt(1_000_000_000_000_000_000)
	r1 := r0.MulRaw(2)
	result := "0x" + word(r0) + word(r1) + word(sdkmath.NewInt(1700000000))

	got0, got1, err := parseReserves(result)
	if err != nil {
		t.Fatalf("parseReserves: %v", err)
	}
	if !got0.Equal(r0) {
		t.Errorf("reserve0: got %s, want %s", got0, r0)
	}
	if !got1.Equal(r1) {
		t.Errorf("reserve1: got %s, want %s", got1, r1)
	}
}

func TestParseReservesRejectsShortResult(t *testing.T) {
	if _, _, err := parseReserves("0x1234"); err == nil {
		t.Fatal("expected error for truncated result")
	}
}

func TestHexQuantityDecoding(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    uint64
		wantErr bool
	}{
		{name: "block number", raw: `"0x10d4f"`, want: 68943},
		{name: "zero", raw: `"0x0"`, want: 0},
		{name: "not hex", raw: `"0xzz"`, wantErr: true},
		{name: "not a string", raw: `42`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeHexUint64(json.RawMessage(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeHexUint64: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDecodeHexIntBigQuantity(t *testing.T) {
	// A gas-priced wei amount well past uint64.
	raw := json.RawMessage(`"0x152d02c7e14af6800000"`)
	got, err := decodeHexInt(raw)
	if err != nil {
		t.Fatalf("decodeHexInt: %v", err)
	}
	want, ok := sdkmath.NewIntFromString("100000000000000000000000")
	if !ok {
		t.Fatal("bad want constant")
	}
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestABIWordPadding(t *testing.T) {
	addr := padAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	if len(addr) != 64 {
		t.Fatalf("padded address length: got %d, want 64", len(addr))
	}
	if !strings.HasSuffix(addr, "c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2") {
		t.Errorf("address not preserved: %s", addr)
	}
	if !strings.HasPrefix(addr, strings.Repeat("0", 24)) {
		t.Errorf("address not left-padded: %s", addr)
	}

	word := padInt(sdkmath.NewInt(255))
	if len(word) != 64 || !strings.HasSuffix(word, "ff") {
		t.Errorf("unexpected int word: %s", word)
	}

	if got := encodeHexUint64(68943); got != "0x10d4f" {
		t.Errorf("encodeHexUint64: got %s, want 0x10d4f", got)
	}
}
