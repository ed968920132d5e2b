package fbc

// Tables holds the 256 row substitution tables derived from a key together
// with their inverses. A Tables value is never modified after BuildTables
// returns, so any number of goroutines may read it at once.
type Tables struct {
	enc [256][256]byte
	dec [256][256]byte
}

// BuildTables derives the row tables for key. Row r is the key rotated by r
// positions: enc[r][(r+i) mod 256] = key[i]. Each row is then inverted on its
// own so that dec[r][enc[r][i]] = i.
func BuildTables(key Key) *Tables {
	t := new(Tables)
	for r := 0; r < 256; r++ {
		row := &t.enc[r]
		for i := 0; i < 256; i++ {
			row[byte(r+i)] = key[i]
		}
		inv := &t.dec[r]
		for i := 0; i < 256; i++ {
			inv[row[i]] = byte(i)
		}
	}
	return t
}

// Substitute returns the forward substitution of b through row.
func (t *Tables) Substitute(row, b byte) byte {
	return t.enc[row][b]
}

// Invert returns the inverse substitution of b through row.
func (t *Tables) Invert(row, b byte) byte {
	return t.dec[row][b]
}
