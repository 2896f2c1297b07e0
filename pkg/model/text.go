// ABOUTME: Rune offset helpers; statement spans count runes, regexp counts bytes

package model

// RuneOffsets maps each rune-starting byte offset of s, and len(s), to a rune index.
// Byte offsets returned by regexp matches on s always land on such positions.
func RuneOffsets(s string) []int {
	offsets := make([]int, len(s)+1)
	r := 0
	for i := range s {
		offsets[i] = r
		r++
	}
	offsets[len(s)] = r
	return offsets
}
