package forutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackBlockRoundTrip(t *testing.T) {
	var block [BlockSize]uint32
	for i := range block {
		block[i] = uint32(i * 3 % 57)
	}
	bits := BitsRequired(block[:])
	packed := PackBlock(block, bits)
	got := UnpackBlock(packed, bits)
	require.Equal(t, block, got)
}

func TestBitsRequiredAllZero(t *testing.T) {
	var block [BlockSize]uint32
	require.Equal(t, 1, BitsRequired(block[:]))
}

func TestBitsRequiredMax(t *testing.T) {
	block := [BlockSize]uint32{}
	block[0] = 1 << 31
	require.Equal(t, 32, BitsRequired(block[:]))
}

func TestEncoderFullBlockPlusTail(t *testing.T) {
	var buf bytes.Buffer
	var enc Encoder
	for i := 0; i < BlockSize+1; i++ {
		require.NoError(t, enc.Add(&buf, uint32(i)))
	}
	require.Equal(t, 1, enc.Pending())
	require.NoError(t, enc.FlushTail(&buf))
	require.Equal(t, 0, enc.Pending())
}
