package pr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// Facts travel between the miner and the precomputed store as a packed
// little-endian payload: a fixed-size header holding the numeric fields and
// an offset/length pointer table, followed by a variadic trailer with the
// strings, maps and arrays. The trailer sections can be decoded individually
// without touching the rest of the payload.

const payloadMagic = "PRF1"

// trailer section indices; the pointer table is ordered by these.
const (
	secRepository = iota
	secAuthor
	secMerger
	secReleaser
	secReleaseMatch
	secReviewers
	secCommenters
	secCommitAuthors
	secCommitCommitters
	secLabels
	secJIRAIDs
	secActivityDays
	numSections
)

// optional timestamp slots in the fixed header, in order.
const (
	tsFirstCommit = iota
	tsLastCommit
	tsLastCommitBeforeFirstReview
	tsFirstReviewRequest
	tsFirstCommentOnFirstReview
	tsApproved
	tsLastReview
	tsMerged
	tsClosed
	tsReleased
	numTimestamps
)

// EncodeFacts packs one facts record.
func EncodeFacts(f *models.PullRequestFacts) []byte {
	var trailer bytes.Buffer
	var table [numSections][2]uint32

	write := func(sec int, data []byte) {
		table[sec][0] = uint32(trailer.Len())
		table[sec][1] = uint32(len(data))
		trailer.Write(data)
	}
	write(secRepository, []byte(f.RepositoryFullName))
	write(secAuthor, []byte(f.Author))
	write(secMerger, []byte(f.Merger))
	write(secReleaser, []byte(f.Releaser))
	write(secReleaseMatch, []byte(f.ReleaseMatch))
	write(secReviewers, encodeMap(f.Reviewers))
	write(secCommenters, encodeMap(f.Commenters))
	write(secCommitAuthors, encodeMap(f.CommitAuthors))
	write(secCommitCommitters, encodeMap(f.CommitCommitters))
	write(secLabels, encodeMap(f.Labels))
	write(secJIRAIDs, encodeStrings(f.JIRAIDs))
	write(secActivityDays, encodeTimes(f.ActivityDays))

	var buf bytes.Buffer
	buf.WriteString(payloadMagic)
	le := binary.LittleEndian
	put64 := func(v int64) {
		var b [8]byte
		le.PutUint64(b[:], uint64(v))
		buf.Write(b[:])
	}
	put32 := func(v uint32) {
		var b [4]byte
		le.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	put64(f.PRNodeID)
	put64(f.Created.UTC().UnixNano())

	var present uint32
	slots := [numTimestamps]*time.Time{
		tsFirstCommit:                 f.FirstCommit,
		tsLastCommit:                  f.LastCommit,
		tsLastCommitBeforeFirstReview: f.LastCommitBeforeFirstReview,
		tsFirstReviewRequest:          f.FirstReviewRequest,
		tsFirstCommentOnFirstReview:   f.FirstCommentOnFirstReview,
		tsApproved:                    f.Approved,
		tsLastReview:                  f.LastReview,
		tsMerged:                      f.Merged,
		tsClosed:                      f.Closed,
		tsReleased:                    f.Released,
	}
	for i, t := range slots {
		if t != nil {
			present |= 1 << uint(i)
		}
	}
	put32(present)
	for _, t := range slots {
		if t != nil {
			put64(t.UTC().UnixNano())
		} else {
			put64(0)
		}
	}
	put32(uint32(f.Additions))
	put32(uint32(f.Deletions))
	put32(uint32(f.ChangedFiles))
	for _, entry := range table {
		put32(entry[0])
		put32(entry[1])
	}
	buf.Write(trailer.Bytes())
	return buf.Bytes()
}

const headerSize = 4 + 8 + 8 + 4 + numTimestamps*8 + 3*4 + numSections*8

// DecodeFacts unpacks one facts record.
func DecodeFacts(data []byte) (*models.PullRequestFacts, error) {
	if len(data) < headerSize || string(data[:4]) != payloadMagic {
		return nil, fmt.Errorf("malformed facts payload")
	}
	le := binary.LittleEndian
	pos := 4
	get64 := func() int64 {
		v := int64(le.Uint64(data[pos:]))
		pos += 8
		return v
	}
	get32 := func() uint32 {
		v := le.Uint32(data[pos:])
		pos += 4
		return v
	}
	f := &models.PullRequestFacts{}
	f.PRNodeID = get64()
	f.Created = time.Unix(0, get64()).UTC()
	present := get32()
	var slots [numTimestamps]*time.Time
	for i := 0; i < numTimestamps; i++ {
		v := get64()
		if present&(1<<uint(i)) != 0 {
			t := time.Unix(0, v).UTC()
			slots[i] = &t
		}
	}
	f.FirstCommit = slots[tsFirstCommit]
	f.LastCommit = slots[tsLastCommit]
	f.LastCommitBeforeFirstReview = slots[tsLastCommitBeforeFirstReview]
	f.FirstReviewRequest = slots[tsFirstReviewRequest]
	f.FirstCommentOnFirstReview = slots[tsFirstCommentOnFirstReview]
	f.Approved = slots[tsApproved]
	f.LastReview = slots[tsLastReview]
	f.Merged = slots[tsMerged]
	f.Closed = slots[tsClosed]
	f.Released = slots[tsReleased]
	f.Additions = int(int32(get32()))
	f.Deletions = int(int32(get32()))
	f.ChangedFiles = int(int32(get32()))

	trailerStart := headerSize
	section := func(sec int) ([]byte, error) {
		off := le.Uint32(data[4+8+8+4+numTimestamps*8+3*4+sec*8:])
		length := le.Uint32(data[4+8+8+4+numTimestamps*8+3*4+sec*8+4:])
		start := trailerStart + int(off)
		end := start + int(length)
		if end > len(data) {
			return nil, fmt.Errorf("facts payload section %d out of bounds", sec)
		}
		return data[start:end], nil
	}
	str := func(sec int) (string, error) {
		b, err := section(sec)
		return string(b), err
	}
	var err error
	if f.RepositoryFullName, err = str(secRepository); err != nil {
		return nil, err
	}
	if f.Author, err = str(secAuthor); err != nil {
		return nil, err
	}
	if f.Merger, err = str(secMerger); err != nil {
		return nil, err
	}
	if f.Releaser, err = str(secReleaser); err != nil {
		return nil, err
	}
	if f.ReleaseMatch, err = str(secReleaseMatch); err != nil {
		return nil, err
	}
	maps := []struct {
		sec  int
		dest *map[string]string
	}{
		{secReviewers, &f.Reviewers},
		{secCommenters, &f.Commenters},
		{secCommitAuthors, &f.CommitAuthors},
		{secCommitCommitters, &f.CommitCommitters},
		{secLabels, &f.Labels},
	}
	for _, m := range maps {
		b, err := section(m.sec)
		if err != nil {
			return nil, err
		}
		*m.dest = decodeMap(b)
	}
	b, err := section(secJIRAIDs)
	if err != nil {
		return nil, err
	}
	f.JIRAIDs = decodeStrings(b)
	if b, err = section(secActivityDays); err != nil {
		return nil, err
	}
	f.ActivityDays = decodeTimes(b)
	return f, nil
}

// EncodeFactsList packs a slice of facts: a count followed by length-prefixed
// records.
func EncodeFactsList(list []*models.PullRequestFacts) []byte {
	var buf bytes.Buffer
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(list)))
	buf.Write(b[:])
	for _, f := range list {
		payload := EncodeFacts(f)
		binary.LittleEndian.PutUint32(b[:], uint32(len(payload)))
		buf.Write(b[:])
		buf.Write(payload)
	}
	return buf.Bytes()
}

// DecodeFactsList unpacks a slice of facts.
func DecodeFactsList(data []byte) ([]*models.PullRequestFacts, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("malformed facts list payload")
	}
	n := binary.LittleEndian.Uint32(data)
	pos := 4
	list := make([]*models.PullRequestFacts, 0, n)
	for i := uint32(0); i < n; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("truncated facts list payload")
		}
		length := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if pos+length > len(data) {
			return nil, fmt.Errorf("truncated facts list payload")
		}
		f, err := DecodeFacts(data[pos : pos+length])
		if err != nil {
			return nil, err
		}
		list = append(list, f)
		pos += length
	}
	return list, nil
}

func encodeMap(m map[string]string) []byte {
	var buf bytes.Buffer
	for k, v := range m {
		buf.WriteString(k)
		buf.WriteByte(0)
		buf.WriteString(v)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeMap(b []byte) map[string]string {
	m := map[string]string{}
	parts := bytes.Split(b, []byte{0})
	for i := 0; i+1 < len(parts); i += 2 {
		m[string(parts[i])] = string(parts[i+1])
	}
	return m
}

func encodeStrings(vals []string) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		buf.WriteString(v)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.Split(bytes.TrimSuffix(b, []byte{0}), []byte{0})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, string(p))
	}
	return out
}

func encodeTimes(times []time.Time) []byte {
	out := make([]byte, 8*len(times))
	for i, t := range times {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(t.UTC().Unix()))
	}
	return out
}

func decodeTimes(b []byte) []time.Time {
	if len(b) == 0 {
		return nil
	}
	out := make([]time.Time, 0, len(b)/8)
	for i := 0; i+8 <= len(b); i += 8 {
		out = append(out, time.Unix(int64(binary.LittleEndian.Uint64(b[i:])), 0).UTC())
	}
	return out
}
