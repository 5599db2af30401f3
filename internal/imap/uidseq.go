package imap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	goimap "github.com/emersion/go-imap/v2"
)

// FormatUIDSequence compacts a UID set into an IMAP sequence string,
// collapsing consecutive runs into a:b ranges (e.g. "1,2,3,5:10"
// becomes "1:3,5:10"). Single UIDs remain as-is.
func FormatUIDSequence(uids []uint32) string {
	if len(uids) == 0 {
		return ""
	}

	sorted := make([]uint32, len(uids))
	copy(sorted, uids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	rangeStart, rangeEnd := sorted[0], sorted[0]

	emit := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if rangeStart == rangeEnd {
			b.WriteString(strconv.FormatUint(uint64(rangeStart), 10))
		} else {
			fmt.Fprintf(&b, "%d:%d", rangeStart, rangeEnd)
		}
	}

	for _, uid := range sorted[1:] {
		if uid == rangeEnd || uid == rangeEnd+1 {
			rangeEnd = uid
			continue
		}
		emit()
		rangeStart, rangeEnd = uid, uid
	}
	emit()

	return b.String()
}

// ParseUIDSequence parses an IMAP sequence string back into the UID set
// it denotes. Malformed elements are an error.
func ParseUIDSequence(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}

	var uids []uint32
	for _, part := range strings.Split(s, ",") {
		if lo, hi, ok := strings.Cut(part, ":"); ok {
			start, err := strconv.ParseUint(lo, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence element %q", part)
			}
			end, err := strconv.ParseUint(hi, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence element %q", part)
			}
			if end < start {
				start, end = end, start
			}
			for u := start; u <= end; u++ {
				uids = append(uids, uint32(u))
			}
		} else {
			u, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid sequence element %q", part)
			}
			uids = append(uids, uint32(u))
		}
	}
	return uids, nil
}

// uidSet converts a UID slice into a go-imap UIDSet
func uidSet(uids []uint32) goimap.UIDSet {
	set := goimap.UIDSet{}
	for _, uid := range uids {
		set.AddNum(goimap.UID(uid))
	}
	return set
}
