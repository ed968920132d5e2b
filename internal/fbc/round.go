package fbc

// encryptRounds runs the forward round transform over buf in place. The first
// size bytes hold the plaintext and buf must have room for exactly runs more:
// round k writes its marker to buf[size+k].
//
// The selector starts from the input length and is advanced by the output of
// every substituted byte, so a change anywhere in a round alters every later
// substitution of that round.
func (t *Tables) encryptRounds(buf []byte, size, runs int) {
	sel := t.enc[0][byte(size)]
	for r := 0; r < runs; r++ {
		buf[size] = t.enc[1][sel]
		for i := 0; i < size; i++ {
			buf[i] = t.enc[sel][buf[i]]
			sel += buf[i] + 1
		}
		size++
	}
}

// decryptRounds undoes runs forward rounds over buf in place and returns the
// length of the recovered plaintext, which occupies buf[:n]. The caller
// guarantees len(buf) >= runs.
func (t *Tables) decryptRounds(buf []byte, runs int) int {
	size := len(buf)
	for r := 0; r < runs; r++ {
		size--
		sel := t.dec[1][buf[size]]
		for i := 0; i < size; i++ {
			prior := buf[i]
			buf[i] = t.dec[sel][prior]
			sel += prior + 1
		}
	}
	return size
}
