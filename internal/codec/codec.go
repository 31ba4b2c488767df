// Package codec builds the checksummed command frames written to the
// peripheral's UART RX characteristic.
//
// A frame is the ASCII marker '!', the interaction code, and one checksum
// byte: the one's complement of the 8-bit sum of the marker and code bytes.
// The checksum is a fixed wire-format constant shared with the firmware.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/srg/tangible/internal/interaction"
)

const (
	// Marker is the first byte of every frame.
	Marker byte = '!'

	// marker + at least one code byte + checksum
	minFrameLen = 3
)

var (
	ErrShortFrame    = errors.New("frame too short")
	ErrMissingMarker = errors.New("frame does not start with '!'")
	ErrBadChecksum   = errors.New("frame checksum mismatch")
	ErrNotEncodable  = errors.New("interaction cannot be encoded")
)

// Frame is an encoded command. It is built per send and never mutated.
type Frame []byte

// Hex returns the frame as lowercase hex, for logs.
func (f Frame) Hex() string { return hex.EncodeToString(f) }

func (f Frame) String() string { return fmt.Sprintf("%q", []byte(f)) }

// Checksum returns the one's complement of the 8-bit sum of b.
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return ^sum
}

// Encode builds '!' + code + checksum. It never fails.
func Encode(code []byte) Frame {
	frame := make([]byte, 0, len(code)+2)
	frame = append(frame, Marker)
	frame = append(frame, code...)
	return append(frame, Checksum(frame))
}

// EncodeInteraction encodes the wire code of i. Unknown is rejected.
func EncodeInteraction(i interaction.Interaction) (Frame, error) {
	if i.IsUnknown() {
		return nil, fmt.Errorf("%w: %s", ErrNotEncodable, i)
	}
	return Encode([]byte(i.Code())), nil
}

// Verify reports whether frame carries the marker and a valid checksum.
func Verify(frame []byte) bool {
	_, err := Decode(frame)
	return err == nil
}

// Decode checks frame and returns its code bytes.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < minFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != Marker {
		return nil, ErrMissingMarker
	}

	n := len(frame) - 1
	var sum byte
	for _, c := range frame[:n] {
		sum += c
	}
	if sum+frame[n] != 0xFF {
		return nil, fmt.Errorf("%w: got 0x%02x want 0x%02x", ErrBadChecksum, frame[n], ^sum)
	}

	code := make([]byte, n-1)
	copy(code, frame[1:n])
	return code, nil
}

// DecodeInteraction decodes frame and resolves its code.
func DecodeInteraction(frame []byte) (interaction.Interaction, error) {
	code, err := Decode(frame)
	if err != nil {
		return interaction.Unknown, err
	}
	return interaction.Parse(string(code))
}
