package versions

import (
	"regexp"
	"strconv"
)

var versionPartPattern = regexp.MustCompile(`(\d+)([a-zA-Z]*)`)

// Compare orders release version strings chronologically rather than
// lexically: each string is split into (number, letter-suffix) runs and
// the runs are compared pairwise, so "4.4w" sorts after "4.4" and
// "11.0.0" after "9.0.0".
func Compare(v1, v2 string) int {
	if v1 == v2 {
		return 0
	}
	m1 := versionPartPattern.FindAllStringSubmatch(v1, -1)
	m2 := versionPartPattern.FindAllStringSubmatch(v2, -1)

	n := len(m1)
	if len(m2) > n {
		n = len(m2)
	}
	for i := 0; i < n; i++ {
		var c1, c2 int
		var s1, s2 string
		if i < len(m1) {
			c1, _ = strconv.Atoi(m1[i][1])
			s1 = m1[i][2]
		}
		if i < len(m2) {
			c2, _ = strconv.Atoi(m2[i][1])
			s2 = m2[i][2]
		}
		switch {
		case c1 < c2:
			return -1
		case c1 > c2:
			return 1
		case s1 < s2:
			return -1
		case s1 > s2:
			return 1
		}
	}
	return 0
}
