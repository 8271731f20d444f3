package hook

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stakecast/pkg/types"
)

var user = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	p := Payload{User: user, MarketID: 7, Outcome: types.Above}
	raw := Encode(p)
	if len(raw) != PayloadLen {
		t.Fatalf("encoded length = %d, want %d", len(raw), PayloadLen)
	}

	dec := Decode(raw)
	if dec.Status != StatusOK {
		t.Fatalf("status = %v, reason = %v, want OK", dec.Status, dec.Reason)
	}
	if dec.Payload != p {
		t.Errorf("decoded = %+v, want %+v", dec.Payload, p)
	}
}

func TestDecodeEmpty(t *testing.T) {
	t.Parallel()

	if dec := Decode(nil); dec.Status != StatusEmpty {
		t.Errorf("nil payload status = %v, want Empty", dec.Status)
	}
	if dec := Decode([]byte{}); dec.Status != StatusEmpty {
		t.Errorf("zero-length payload status = %v, want Empty", dec.Status)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	valid := Encode(Payload{User: user, MarketID: 7, Outcome: types.Below})

	badOutcome := Encode(Payload{User: user, MarketID: 7})
	badOutcome[52] = 2

	zeroID := Encode(Payload{User: user, MarketID: 7, Outcome: types.Above})
	for i := 20; i < 52; i++ {
		zeroID[i] = 0
	}

	overflowID := Encode(Payload{User: user, MarketID: 1, Outcome: types.Above})
	overflowID[20] = 0xff // high byte set: id exceeds uint64

	tests := []struct {
		name string
		data []byte
	}{
		{"one byte short", valid[:52]},
		{"one byte long", append(append([]byte{}, valid...), 0)},
		{"way too short", valid[:4]},
		{"outcome byte 2", badOutcome},
		{"zero market id", zeroID},
		{"market id overflow", overflowID},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dec := Decode(tt.data)
			if dec.Status != StatusMalformed {
				t.Fatalf("status = %v, want Malformed", dec.Status)
			}
			if !errors.Is(dec.Reason, types.ErrInvalidHookData) {
				t.Errorf("reason = %v, want ErrInvalidHookData kind", dec.Reason)
			}
		})
	}
}

func TestDecodeBigEndianMarketID(t *testing.T) {
	t.Parallel()

	raw := Encode(Payload{User: user, MarketID: 0x0102, Outcome: types.Above})
	if raw[50] != 0x01 || raw[51] != 0x02 {
		t.Fatalf("market id bytes = %x %x, want big-endian 01 02", raw[50], raw[51])
	}
	dec := Decode(raw)
	if dec.Payload.MarketID != 0x0102 {
		t.Errorf("market id = %d, want %d", dec.Payload.MarketID, 0x0102)
	}
}
