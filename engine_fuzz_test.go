package stm

import (
	"math/rand"
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/require"
)

// workloadSeed mirrors the pattern in go-adaptive-radix-tree/internal/
// unittest_helpers.go: faker.FakeData populates a struct, which this
// test then turns into randomized transactional operations instead of
// asserting on the struct directly.
type workloadSeed struct {
	AddressIndex uint8
	Payload      uint32
	MaskByte     uint8
}

func Test_FuzzCommitAbort(t *testing.T) {
	words := make([]uint64, 32)
	shadow := make([]uint64, 32)
	e := ThreadInit()

	for round := 0; round < 200; round++ {
		var seed workloadSeed
		require.NoError(t, faker.FakeData(&seed))

		idx := int(seed.AddressIndex) % len(words)
		mask := uint64(seed.MaskByte) << 24
		if mask == 0 {
			mask = 0xFF000000
		}
		data := uint64(seed.Payload) & mask

		err := Atomic(e, func() error {
			v, err := e.ReadWord(Addr(&words[idx]))
			if err != nil {
				return err
			}
			// f is allowed to run more than once on retry (P5); only
			// the last execution's writes are committed, so asserting
			// on v here (rather than outside Atomic) would be wrong.
			_ = v
			return e.WriteWord(Addr(&words[idx]), data, mask)
		})
		require.NoError(t, err)

		shadow[idx] = (shadow[idx] &^ mask) | (data & mask)
	}

	for i := range words {
		require.Equal(t, shadow[i], words[i], "address %d diverged", i)
	}
}

func Test_FuzzConcurrentRandomWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipped in -short mode")
	}

	const numWords = 16
	words := make([]uint64, numWords)

	done := make(chan struct{})
	errs := make(chan error, 4)
	for worker := 0; worker < 4; worker++ {
		worker := worker
		go func() {
			e := ThreadInit()
			src := rand.New(rand.NewSource(int64(worker) + 100))
			for i := 0; i < 2000; i++ {
				idx := src.Intn(numWords)
				val := src.Uint64()
				err := Atomic(e, func() error {
					return e.WriteWord(Addr(&words[idx]), val, ^uint64(0))
				})
				if err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}

	go func() {
		for i := 0; i < 4; i++ {
			if err := <-errs; err != nil {
				t.Errorf("worker error: %v", err)
			}
		}
		close(done)
	}()
	<-done
}
