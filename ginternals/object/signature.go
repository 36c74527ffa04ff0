package object

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goabstract/gitcore/internal/readutil"
)

var (
	// ErrSignatureInvalid is an error thrown when the signature of a
	// commit or tag couldn't be parsed
	ErrSignatureInvalid = errors.New("signature is invalid")

	// ErrInvalidTimezone is an error thrown when a signature's timezone
	// doesn't have the [+-]HHMM format
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Signature represents the author/committer/tagger identity and time
// of a change
type Signature struct {
	Time  time.Time
	Name  string
	Email string
}

// String returns the signature in its wire format:
// User Name <user.email@domain.tld> timestamp timezone
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.Time.Unix(), s.Time.Format("-0700"))
}

// IsZero returns whether the signature has Zero value
func (s Signature) IsZero() bool {
	return s.Time.IsZero() && s.Name == "" && s.Email == ""
}

// NewSignature generates a signature at the current date and time
func NewSignature(name, email string) Signature {
	return Signature{
		Name:  name,
		Email: email,
		Time:  time.Now(),
	}
}

// parseTimezone converts a [+-]HHMM timezone into a fixed location.
// ErrInvalidTimezone is returned for anything else.
func parseTimezone(tz []byte) (*time.Location, error) {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return nil, fmt.Errorf("timezone %q: %w", tz, ErrInvalidTimezone)
	}
	for _, c := range tz[1:] {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("timezone %q: %w", tz, ErrInvalidTimezone)
		}
	}
	hours, _ := strconv.Atoi(string(tz[1:3]))
	minutes, _ := strconv.Atoi(string(tz[3:5]))
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(string(tz), offset), nil
}

// NewSignatureFromBytes returns a signature from an array of byte
//
// A signature has the following format:
// User Name <user.email@domain.tld> timestamp timezone
// Ex:
// Melvin Laplanche <melvin.wont.reply@gmail.com> 1566115917 -0700
func NewSignatureFromBytes(b []byte) (Signature, error) {
	sig := Signature{}

	// First we get the name which will have the following format
	// "User Name " (with the extra space)
	data := readutil.ReadTo(b, '<')
	if len(data) == 0 {
		if len(b) == 0 {
			return sig, fmt.Errorf("couldn't retrieve the name: %w", ErrSignatureInvalid)
		}
		return sig, fmt.Errorf("signature stopped after the name: %w", ErrSignatureInvalid)
	}
	sig.Name = strings.TrimSpace(string(data))
	offset := len(data) + 1 // +1 to skip the "<"
	if offset >= len(b) {
		return sig, fmt.Errorf("couldn't retrieve the email: %w", ErrSignatureInvalid)
	}

	// Now we get the email, which is between "<" and ">"
	data = readutil.ReadTo(b[offset:], '>')
	if data == nil {
		return sig, fmt.Errorf("couldn't retrieve the email: %w", ErrSignatureInvalid)
	}
	sig.Email = string(data)
	// +2 to skip the "> "
	offset += len(data) + 2
	if offset >= len(b) {
		return sig, fmt.Errorf("signature stopped after the email: %w", ErrSignatureInvalid)
	}

	// Next is the timestamp and the timezone
	timestamp := readutil.ReadTo(b[offset:], ' ')
	if timestamp == nil {
		return sig, fmt.Errorf("couldn't retrieve the timestamp: %w", ErrSignatureInvalid)
	}
	offset += len(timestamp) + 1 // +1 to skip the " "
	if offset >= len(b) {
		return sig, fmt.Errorf("signature stopped after the timestamp: %w", ErrSignatureInvalid)
	}

	t, err := strconv.ParseInt(string(timestamp), 10, 64)
	if err != nil {
		return sig, fmt.Errorf("invalid timestamp %s: %w", timestamp, ErrSignatureInvalid)
	}
	if t < 0 {
		return sig, fmt.Errorf("timestamp %d is negative: %w", t, ErrSignatureInvalid)
	}

	tz, err := parseTimezone(b[offset:])
	if err != nil {
		return sig, fmt.Errorf("could not parse signature: %w", err)
	}
	sig.Time = time.Unix(t, 0).In(tz)
	return sig, nil
}
