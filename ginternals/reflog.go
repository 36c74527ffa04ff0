package ginternals

import (
	"bytes"
	"fmt"

	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// ReflogEntry represents one line of a reference's log: a single
// update of the reference
type ReflogEntry struct {
	// Old is the id the reference pointed to before the update.
	// NullOid for a creation
	Old githash.Oid
	// New is the id the reference points to after the update.
	// NullOid for a deletion
	New githash.Oid
	// Who made the update, and when
	Who object.Signature
	// Message describes the update (ex. "commit: fix typo")
	Message string
}

// Line returns the entry in its on-disk format:
// <old-hex> <new-hex> Name <email> ts tz\tmessage\n
func (e ReflogEntry) Line() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(e.Old.String())
	buf.WriteByte(' ')
	buf.WriteString(e.New.String())
	buf.WriteByte(' ')
	buf.WriteString(e.Who.String())
	buf.WriteByte('\t')
	buf.WriteString(e.Message)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// NewReflogEntryFromLine parses a single reflog line, without its
// trailing newline
func NewReflogEntryFromLine(line []byte) (ReflogEntry, error) {
	e := ReflogEntry{}

	// The ids and the signature are separated from the message by a tab
	parts := bytes.SplitN(line, []byte{'\t'}, 2)
	if len(parts) == 2 {
		e.Message = string(parts[1])
	}
	head := parts[0]

	// "old new signature"
	hexSize := githash.OidSize * 2
	if len(head) < hexSize*2+2 {
		return e, fmt.Errorf("entry %q too short: %w", line, ErrReflogInvalid)
	}
	var err error
	e.Old, err = githash.NewOidFromChars(head[:hexSize])
	if err != nil {
		return e, fmt.Errorf("invalid old id: %w", ErrReflogInvalid)
	}
	if head[hexSize] != ' ' {
		return e, fmt.Errorf("entry %q has no id separator: %w", line, ErrReflogInvalid)
	}
	e.New, err = githash.NewOidFromChars(head[hexSize+1 : hexSize*2+1])
	if err != nil {
		return e, fmt.Errorf("invalid new id: %w", ErrReflogInvalid)
	}
	e.Who, err = object.NewSignatureFromBytes(head[hexSize*2+2:])
	if err != nil {
		return e, fmt.Errorf("invalid identity: %w", err)
	}
	return e, nil
}

// ParseReflog parses the whole log of a reference, oldest entry first
func ParseReflog(data []byte) ([]ReflogEntry, error) {
	entries := []ReflogEntry{}
	for i, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		e, err := NewReflogEntryFromLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
