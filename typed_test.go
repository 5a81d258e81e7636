package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_TypedReadWrite(t *testing.T) {
	t.Run("round trip for every scalar width", func(t *testing.T) {
		var u8 uint8
		var u16 uint16
		var u32 uint32
		var u64 uint64
		var i32 int32
		var f32 float32
		var f64 float64

		e := ThreadInit()
		require.NoError(t, Atomic(e, func() error {
			require.NoError(t, Write(e, &u8, uint8(0x42)))
			require.NoError(t, Write(e, &u16, uint16(0x4242)))
			require.NoError(t, Write(e, &u32, uint32(0xdeadbeef)))
			require.NoError(t, Write(e, &u64, uint64(0x0123456789abcdef)))
			require.NoError(t, Write(e, &i32, int32(-7)))
			require.NoError(t, Write(e, &f32, float32(3.5)))
			require.NoError(t, Write(e, &f64, float64(2.25)))

			gotU8, err := Read(e, &u8)
			require.NoError(t, err)
			require.Equal(t, uint8(0x42), gotU8)

			gotU32, err := Read(e, &u32)
			require.NoError(t, err)
			require.Equal(t, uint32(0xdeadbeef), gotU32)

			gotF64, err := Read(e, &f64)
			require.NoError(t, err)
			require.Equal(t, float64(2.25), gotF64)
			return nil
		}))

		require.Equal(t, uint8(0x42), u8)
		require.Equal(t, uint16(0x4242), u16)
		require.Equal(t, uint32(0xdeadbeef), u32)
		require.Equal(t, uint64(0x0123456789abcdef), u64)
		require.Equal(t, int32(-7), i32)
		require.Equal(t, float32(3.5), f32)
		require.Equal(t, float64(2.25), f64)
	})

	t.Run("second write to the same address wins", func(t *testing.T) {
		var v uint32
		e := ThreadInit()
		require.NoError(t, Atomic(e, func() error {
			if err := Write(e, &v, uint32(1)); err != nil {
				return err
			}
			return Write(e, &v, uint32(2))
		}))
		require.Equal(t, uint32(2), v)
	})
}
