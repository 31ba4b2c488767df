package codec

import (
	"math/rand"
	"testing"

	"github.com/srg/tangible/internal/interaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byteSum(b []byte) int {
	s := 0
	for _, c := range b {
		s += int(c)
	}
	return s
}

func TestEncode_ChecksumLaw(t *testing.T) {
	// For any non-empty payload p: len(frame) == len(p)+2 and the bytes before
	// the checksum plus the checksum sum to 0xFF modulo 256.
	rng := rand.New(rand.NewSource(7))

	payloads := [][]byte{
		[]byte("FLUP"),
		[]byte("DT"),
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
	}
	for i := 0; i < 200; i++ {
		p := make([]byte, 1+rng.Intn(16))
		rng.Read(p)
		payloads = append(payloads, p)
	}

	for _, p := range payloads {
		frame := Encode(p)
		require.Len(t, frame, len(p)+2)
		assert.Equal(t, Marker, frame[0])
		assert.Equal(t, p, []byte(frame[1:len(frame)-1]))

		n := len(frame) - 1
		assert.Equal(t, 0xFF, (byteSum(frame[:n])+int(frame[n]))&0xFF, "payload %x", p)
	}
}

func TestEncode_KnownFrames(t *testing.T) {
	tests := []struct {
		code string
		want []byte
	}{
		// '!'=0x21 'F'=0x46 'L'=0x4c 'U'=0x55 'P'=0x50 -> sum 0x158 -> 0x58 -> ^ = 0xa7
		{"FLUP", []byte{'!', 'F', 'L', 'U', 'P', 0xA7}},
		// 0x21+0x44+0x54+0x42+0x52 = 0x14d -> 0x4d -> ^ = 0xb2
		{"DTBR", []byte{'!', 'D', 'T', 'B', 'R', 0xB2}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, Frame(tt.want), Encode([]byte(tt.code)))
		})
	}
}

func TestEncode_DoesNotAliasInput(t *testing.T) {
	code := []byte("LPTL")
	frame := Encode(code)
	code[0] = 'X'
	assert.Equal(t, byte('L'), frame[1])
}

func TestEncodeInteraction(t *testing.T) {
	for _, i := range interaction.All() {
		frame, err := EncodeInteraction(i)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(frame), 4)
		assert.LessOrEqual(t, len(frame), 6)
		assert.True(t, Verify(frame))

		back, err := DecodeInteraction(frame)
		require.NoError(t, err)
		assert.Equal(t, i, back)
	}

	_, err := EncodeInteraction(interaction.Unknown)
	assert.ErrorIs(t, err, ErrNotEncodable)
}

func TestDecode_Errors(t *testing.T) {
	good := Encode([]byte("FLRT"))

	_, err := Decode(good[:2])
	assert.ErrorIs(t, err, ErrShortFrame)

	noMarker := append([]byte{'?'}, good[1:]...)
	_, err = Decode(noMarker)
	assert.ErrorIs(t, err, ErrMissingMarker)

	corrupted := append([]byte(nil), good...)
	corrupted[2] ^= 0x01
	_, err = Decode(corrupted)
	assert.ErrorIs(t, err, ErrBadChecksum)
	assert.False(t, Verify(corrupted))

	code, err := Decode(good)
	require.NoError(t, err)
	assert.Equal(t, []byte("FLRT"), code)
}

func TestFrame_Hex(t *testing.T) {
	assert.Equal(t, "21464c5550a7", Encode([]byte("FLUP")).Hex())
}
