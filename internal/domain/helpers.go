package domain

import (
	"sort"
	"strconv"
)

// NormalizeReminderDays drops non-positive and duplicate offsets and sorts the rest descending
func NormalizeReminderDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d <= 0 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
