// payload.go decodes the packed prediction payload attached to a swap.
//
// Wire format (fixed-width, no padding, 53 bytes total):
//
//	[0:20]  actualUser — address of the trader the prediction belongs to
//	[20:52] marketId   — 32-byte big-endian unsigned integer
//	[52]    outcome    — 0 = Below, 1 = Above
//
// An empty payload means "no prediction requested". The swap call path is
// shared with other consumers, so anything that does not match the contract
// exactly — wrong length, zero market id, out-of-range outcome — is reported
// as Malformed and, in the default permissive mode, skipped rather than
// aborting the swap.
package hook

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakecast/pkg/types"
)

// PayloadLen is the exact length of a prediction payload.
const PayloadLen = 53

// Payload is a decoded prediction request.
type Payload struct {
	User     common.Address
	MarketID uint64
	Outcome  types.Outcome
}

// Status tags the outcome of a decode attempt.
type Status int

const (
	StatusOK        Status = iota // valid prediction payload
	StatusEmpty                   // no payload attached, no-op
	StatusMalformed               // not ours or corrupt; Reason explains
)

// Decoded is the tagged result of Decode. Reason is set only for
// StatusMalformed and always wraps types.ErrInvalidHookData.
type Decoded struct {
	Status  Status
	Payload Payload
	Reason  error
}

func malformed(format string, args ...interface{}) Decoded {
	return Decoded{
		Status: StatusMalformed,
		Reason: fmt.Errorf(format+": %w", append(args, types.ErrInvalidHookData)...),
	}
}

// Decode parses a payload without panicking on any input. Every field is
// bounds-checked; there is no unchecked offset arithmetic.
func Decode(data []byte) Decoded {
	if len(data) == 0 {
		return Decoded{Status: StatusEmpty}
	}
	if len(data) != PayloadLen {
		return malformed("payload length %d, want %d", len(data), PayloadLen)
	}

	user := common.BytesToAddress(data[0:20])
	marketID := new(big.Int).SetBytes(data[20:52])
	outcome := types.Outcome(data[52])

	if marketID.Sign() == 0 {
		return malformed("market id is zero")
	}
	// Engine market ids are uint64; a larger id cannot name one of ours,
	// so the payload belongs to a different consumer.
	if !marketID.IsUint64() {
		return malformed("market id %s exceeds uint64", marketID)
	}
	if !outcome.Valid() {
		return malformed("outcome byte %d", data[52])
	}

	return Decoded{
		Status: StatusOK,
		Payload: Payload{
			User:     user,
			MarketID: marketID.Uint64(),
			Outcome:  outcome,
		},
	}
}

// Encode packs a payload into the 53-byte wire format. Used by callers that
// attach predictions to their swaps, and by tests.
func Encode(p Payload) []byte {
	out := make([]byte, PayloadLen)
	copy(out[0:20], p.User.Bytes())
	new(big.Int).SetUint64(p.MarketID).FillBytes(out[20:52])
	out[52] = byte(p.Outcome)
	return out
}
