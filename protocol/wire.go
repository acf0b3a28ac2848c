package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/andrebq/spdz-mpc/field"
)

const segmentSep = "|"

// encodeCommand builds a single control-message frame: a one-byte
// command code optionally followed by a pipe-delimited hex payload.
func encodeCommand(code Code, segments ...field.Elem) []byte {
	buf := make([]byte, 1, 1+32*len(segments))
	buf[0] = byte(code)
	if len(segments) == 0 {
		return buf
	}
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = field.ToHex(s)
	}
	buf = append(buf, []byte(strings.Join(parts, segmentSep))...)
	return buf
}

// encodeCommandWithSeed is encodeCommand plus one trailing raw-hex
// segment carrying the session seed used to derive the batch-zero check
// coefficients (MAC mode only); see DESIGN.md's resolution of the
// batch-zero coefficient provenance question.
func encodeCommandWithSeed(code Code, seed [32]byte, segments ...field.Elem) []byte {
	msg := encodeCommand(code, segments...)
	seedHex := strings.ToUpper(hex.EncodeToString(seed[:]))
	if len(msg) == 1 {
		return append(msg, []byte(seedHex)...)
	}
	return append(msg, []byte(segmentSep+seedHex)...)
}

// decodeCommand splits msg into its command code and raw payload bytes.
func decodeCommand(msg []byte) (Code, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, fmt.Errorf("%w: empty message", ErrMalformedPayload)
	}
	return Code(msg[0]), msg[1:], nil
}

// decodeSegments splits a pipe-delimited hex payload into exactly want
// field elements.
func decodeSegments(payload []byte, want int) ([]field.Elem, error) {
	if want == 0 {
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: expected empty payload, got %d bytes", ErrMalformedPayload, len(payload))
		}
		return nil, nil
	}
	parts := bytes.Split(payload, []byte(segmentSep))
	if len(parts) != want {
		return nil, fmt.Errorf("%w: expected %d segments, got %d", ErrMalformedPayload, want, len(parts))
	}
	out := make([]field.Elem, want)
	for i, p := range parts {
		e, err := field.FromHex(string(p))
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrMalformedPayload, i, err)
		}
		out[i] = e
	}
	return out, nil
}

// decodeSegmentsWithSeed is decodeSegments plus a trailing raw 32-byte
// hex seed, used by SEND_SHARES in MAC mode.
func decodeSegmentsWithSeed(payload []byte, want int) ([]field.Elem, [32]byte, error) {
	var seed [32]byte
	parts := bytes.Split(payload, []byte(segmentSep))
	if len(parts) != want+1 {
		return nil, seed, fmt.Errorf("%w: expected %d segments plus seed, got %d", ErrMalformedPayload, want, len(parts)-1)
	}
	elems := make([]field.Elem, want)
	for i := 0; i < want; i++ {
		e, err := field.FromHex(string(parts[i]))
		if err != nil {
			return nil, seed, fmt.Errorf("%w: segment %d: %v", ErrMalformedPayload, i, err)
		}
		elems[i] = e
	}
	raw, err := hex.DecodeString(string(parts[want]))
	if err != nil || len(raw) != len(seed) {
		return nil, seed, fmt.Errorf("%w: bad session seed", ErrMalformedPayload)
	}
	copy(seed[:], raw)
	return elems, seed, nil
}

// encodePayload is encodeCommand without a leading command byte, used
// for the dealer-addressed replies that carry no command code (partial
// sums, product shares, MAC shares).
func encodePayload(segments ...field.Elem) []byte {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = field.ToHex(s)
	}
	return []byte(strings.Join(parts, segmentSep))
}
