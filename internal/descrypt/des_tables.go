package descrypt

// A minimal textbook DES implementation. This is the "opaque primitive"
// referenced by the package doc comment: standard DES, operating on the
// fixed legacyKey, is the whole of the format's historic key schedule.

var ip = [64]uint8{
	58, 50, 42, 34, 26, 18, 10, 2,
	60, 52, 44, 36, 28, 20, 12, 4,
	62, 54, 46, 38, 30, 22, 14, 6,
	64, 56, 48, 40, 32, 24, 16, 8,
	57, 49, 41, 33, 25, 17, 9, 1,
	59, 51, 43, 35, 27, 19, 11, 3,
	61, 53, 45, 37, 29, 21, 13, 5,
	63, 55, 47, 39, 31, 23, 15, 7,
}

var fp = [64]uint8{
	40, 8, 48, 16, 56, 24, 64, 32,
	39, 7, 47, 15, 55, 23, 63, 31,
	38, 6, 46, 14, 54, 22, 62, 30,
	37, 5, 45, 13, 53, 21, 61, 29,
	36, 4, 44, 12, 52, 20, 60, 28,
	35, 3, 43, 11, 51, 19, 59, 27,
	34, 2, 42, 10, 50, 18, 58, 26,
	33, 1, 41, 9, 49, 17, 57, 25,
}

var expansion = [48]uint8{
	32, 1, 2, 3, 4, 5,
	4, 5, 6, 7, 8, 9,
	8, 9, 10, 11, 12, 13,
	12, 13, 14, 15, 16, 17,
	16, 17, 18, 19, 20, 21,
	20, 21, 22, 23, 24, 25,
	24, 25, 26, 27, 28, 29,
	28, 29, 30, 31, 32, 1,
}

var pBox = [32]uint8{
	16, 7, 20, 21, 29, 12, 28, 17,
	1, 15, 23, 26, 5, 18, 31, 10,
	2, 8, 24, 14, 32, 27, 3, 9,
	19, 13, 30, 6, 22, 11, 4, 25,
}

var pc1 = [56]uint8{
	57, 49, 41, 33, 25, 17, 9,
	1, 58, 50, 42, 34, 26, 18,
	10, 2, 59, 51, 43, 35, 27,
	19, 11, 3, 60, 52, 44, 36,
	63, 55, 47, 39, 31, 23, 15,
	7, 62, 54, 46, 38, 30, 22,
	14, 6, 61, 53, 45, 37, 29,
	21, 13, 5, 28, 20, 12, 4,
}

var pc2 = [48]uint8{
	14, 17, 11, 24, 1, 5,
	3, 28, 15, 6, 21, 10,
	23, 19, 12, 4, 26, 8,
	16, 7, 27, 20, 13, 2,
	41, 52, 31, 37, 47, 55,
	30, 40, 51, 45, 33, 48,
	44, 49, 39, 56, 34, 53,
	46, 42, 50, 36, 29, 32,
}

var shifts = [16]uint8{1, 1, 2, 2, 2, 2, 2, 2, 1, 2, 2, 2, 2, 2, 2, 1}

var sBoxes = [8][4][16]uint8{
	{
		{14, 4, 13, 1, 2, 15, 11, 8, 3, 10, 6, 12, 5, 9, 0, 7},
		{0, 15, 7, 4, 14, 2, 13, 1, 10, 6, 12, 11, 9, 5, 3, 8},
		{4, 1, 14, 8, 13, 6, 2, 11, 15, 12, 9, 7, 3, 10, 5, 0},
		{15, 12, 8, 2, 4, 9, 1, 7, 5, 11, 3, 14, 10, 0, 6, 13},
	},
	{
		{15, 1, 8, 14, 6, 11, 3, 4, 9, 7, 2, 13, 12, 0, 5, 10},
		{3, 13, 4, 7, 15, 2, 8, 14, 12, 0, 1, 10, 6, 9, 11, 5},
		{0, 14, 7, 11, 10, 4, 13, 1, 5, 8, 12, 6, 9, 3, 2, 15},
		{13, 8, 10, 1, 3, 15, 4, 2, 11, 6, 7, 12, 0, 5, 14, 9},
	},
	{
		{10, 0, 9, 14, 6, 3, 15, 5, 1, 13, 12, 7, 11, 4, 2, 8},
		{13, 7, 0, 9, 3, 4, 6, 10, 2, 8, 5, 14, 12, 11, 15, 1},
		{13, 6, 4, 9, 8, 15, 3, 0, 11, 1, 2, 12, 5, 10, 14, 7},
		{1, 10, 13, 0, 6, 9, 8, 7, 4, 15, 14, 3, 11, 5, 2, 12},
	},
	{
		{7, 13, 14, 3, 0, 6, 9, 10, 1, 2, 8, 5, 11, 12, 4, 15},
		{13, 8, 11, 5, 6, 15, 0, 3, 4, 7, 2, 12, 1, 10, 14, 9},
		{10, 6, 9, 0, 12, 11, 7, 13, 15, 1, 3, 14, 5, 2, 8, 4},
		{3, 15, 0, 6, 10, 1, 13, 8, 9, 4, 5, 11, 12, 7, 2, 14},
	},
	{
		{2, 12, 4, 1, 7, 10, 11, 6, 8, 5, 3, 15, 13, 0, 14, 9},
		{14, 11, 2, 12, 4, 7, 13, 1, 5, 0, 15, 10, 3, 9, 8, 6},
		{4, 2, 1, 11, 10, 13, 7, 8, 15, 9, 12, 5, 6, 3, 0, 14},
		{11, 8, 12, 7, 1, 14, 2, 13, 6, 15, 0, 9, 10, 4, 5, 3},
	},
	{
		{12, 1, 10, 15, 9, 2, 6, 8, 0, 13, 3, 4, 14, 7, 5, 11},
		{10, 15, 4, 2, 7, 12, 9, 5, 6, 1, 13, 14, 0, 11, 3, 8},
		{9, 14, 15, 5, 2, 8, 12, 3, 7, 0, 4, 10, 1, 13, 11, 6},
		{4, 3, 2, 12, 9, 5, 15, 10, 11, 14, 1, 7, 6, 0, 8, 13},
	},
	{
		{4, 11, 2, 14, 15, 0, 8, 13, 3, 12, 9, 7, 5, 10, 6, 1},
		{13, 0, 11, 7, 4, 9, 1, 10, 14, 3, 5, 12, 2, 15, 8, 6},
		{1, 4, 11, 13, 12, 3, 7, 14, 10, 15, 6, 8, 0, 5, 9, 2},
		{6, 11, 13, 8, 1, 4, 10, 7, 9, 5, 0, 15, 14, 2, 3, 12},
	},
	{
		{13, 2, 8, 4, 6, 15, 11, 1, 10, 9, 3, 14, 5, 0, 12, 7},
		{1, 15, 13, 8, 10, 3, 7, 4, 12, 5, 6, 11, 0, 14, 9, 2},
		{7, 11, 4, 1, 9, 12, 14, 2, 0, 6, 10, 13, 15, 3, 5, 8},
		{2, 1, 14, 7, 4, 10, 8, 13, 15, 12, 9, 0, 3, 5, 6, 11},
	},
}

// bits64 unpacks a big-endian 8-byte block into a 1-bit-per-slot array
// indexed 1..64 to match the textbook permutation tables above.
func bits64(b []byte) [65]uint8 {
	var bits [65]uint8
	for i := 0; i < 64; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		bits[i+1] = (b[byteIdx] >> bitIdx) & 1
	}
	return bits
}

func packBits(bits []uint8, out []byte) {
	for i := range out {
		out[i] = 0
	}
	for i, v := range bits {
		if v != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
}

func permute(bits [65]uint8, table []uint8) []uint8 {
	out := make([]uint8, len(table))
	for i, p := range table {
		out[i] = bits[p]
	}
	return out
}

// expandKey runs PC-1/PC-2 key scheduling, producing the 16 round subkeys.
func expandKey(key [8]byte) [16][]uint8 {
	bits := bits64(key[:])
	pc1Out := permute(bits, pc1[:])
	c := append([]uint8{}, pc1Out[:28]...)
	d := append([]uint8{}, pc1Out[28:]...)

	var subkeys [16][]uint8
	for round := 0; round < 16; round++ {
		c = rotateLeft(c, int(shifts[round]))
		d = rotateLeft(d, int(shifts[round]))
		cd := append(append([]uint8{}, c...), d...)
		var full [65]uint8
		copy(full[1:], cd)
		subkeys[round] = permute(full, pc2[:])
	}
	return subkeys
}

func rotateLeft(bits []uint8, n int) []uint8 {
	n %= len(bits)
	return append(append([]uint8{}, bits[n:]...), bits[:n]...)
}

func feistel(r []uint8, subkey []uint8) []uint8 {
	var full [65]uint8
	copy(full[1:], r)
	expanded := permute(full, expansion[:])
	for i := range expanded {
		expanded[i] ^= subkey[i]
	}

	sOut := make([]uint8, 0, 32)
	for s := 0; s < 8; s++ {
		chunk := expanded[s*6 : s*6+6]
		row := chunk[0]<<1 | chunk[5]
		col := chunk[1]<<3 | chunk[2]<<2 | chunk[3]<<1 | chunk[4]
		val := sBoxes[s][row][col]
		for b := 3; b >= 0; b-- {
			sOut = append(sOut, (val>>uint(b))&1)
		}
	}

	var full32 [65]uint8
	copy(full32[1:33], sOut)
	pOut := make([]uint8, 32)
	for i, p := range pBox {
		pOut[i] = full32[p]
	}
	return pOut
}

// desBlock transforms an 8-byte block in place. decrypt reverses the round
// subkey order, which is DES's standard mechanism for sharing encrypt and
// decrypt around the same Feistel network.
func desBlock(block []byte, subkeys [16][]uint8, decrypt bool) {
	bits := bits64(block)
	ipOut := permute(bits, ip[:])
	l := append([]uint8{}, ipOut[:32]...)
	r := append([]uint8{}, ipOut[32:]...)

	order := [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if decrypt {
		for i, j := 0, 15; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	for _, round := range order {
		f := feistel(r, subkeys[round])
		newR := make([]uint8, 32)
		for i := range newR {
			newR[i] = l[i] ^ f[i]
		}
		l = r
		r = newR
	}

	preOutput := append(append([]uint8{}, r...), l...)
	var full [65]uint8
	copy(full[1:], preOutput)
	final := permute(full, fp[:])
	packBits(final, block)
}
