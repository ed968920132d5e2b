package fbc

import (
	"encoding/binary"
	"sync"
)

const (
	// trailerSize is the width of the little-endian block length trailer.
	trailerSize = 8
	// obfuscationRounds hides the block boundaries and the trailer.
	obfuscationRounds = 2
	// FrameOverhead is the fixed growth of a multi-worker ciphertext on top
	// of the per-block rounds.
	FrameOverhead = trailerSize + obfuscationRounds
)

// blockLengths cuts total bytes into threads blocks: every block but the last
// holds up to block bytes and the last takes what is left. Blocks past the
// end of the data are empty.
func blockLengths(total, threads, block int) []int {
	lengths := make([]int, threads)
	rest := total
	for i := 0; i < threads-1; i++ {
		n := min(block, rest)
		lengths[i] = n
		rest -= n
	}
	lengths[threads-1] = rest
	return lengths
}

// encryptFramed encrypts data as threads independent blocks, one goroutine
// per block. Each worker owns a disjoint region of the output buffer, sized
// up front for its own marker bytes, so no locking is needed.
func (t *Tables) encryptFramed(data []byte, runs, threads int) []byte {
	block := len(data)/threads + 1
	lengths := blockLengths(len(data), threads, block)

	out := make([]byte, len(data)+threads*runs+FrameOverhead)
	var wg sync.WaitGroup
	src, dst := 0, 0
	for _, n := range lengths {
		end := dst + n + runs
		region := out[dst:end:end]
		plain := data[src : src+n]
		wg.Add(1)
		go func() {
			defer wg.Done()
			copy(region, plain)
			t.encryptRounds(region, len(plain), runs)
		}()
		src += n
		dst = end
	}
	wg.Wait()

	binary.LittleEndian.PutUint64(out[dst:], uint64(block+runs))
	t.encryptRounds(out, dst+trailerSize, obfuscationRounds)
	return out
}

// decryptFramed reverses encryptFramed. The trailer gives the ciphertext
// length of every full block; the partition is recomputed with the same
// clamping the encrypt side used so short inputs split identically.
func (t *Tables) decryptFramed(data []byte, runs, threads int) ([]byte, error) {
	if len(data) < FrameOverhead {
		return nil, ErrMalformedFrame
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	n := t.decryptRounds(buf, obfuscationRounds) - trailerSize
	blockPlusRuns := binary.LittleEndian.Uint64(buf[n : n+trailerSize])
	buf = buf[:n]

	markers := threads * runs
	if n < markers || blockPlusRuns < uint64(runs) {
		return nil, ErrMalformedFrame
	}
	plainLen := n - markers
	block := plainLen
	if b := blockPlusRuns - uint64(runs); b < uint64(plainLen) {
		block = int(b)
	}
	lengths := blockLengths(plainLen, threads, block)

	out := make([]byte, plainLen)
	var wg sync.WaitGroup
	src, dst := 0, 0
	for _, size := range lengths {
		region := buf[src : src+size+runs]
		plain := out[dst : dst+size]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := t.decryptRounds(region, runs)
			copy(plain, region[:m])
		}()
		src += size + runs
		dst += size
	}
	wg.Wait()
	return out, nil
}
