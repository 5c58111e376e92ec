// Package parcel defines the jurisdiction/block/lot key that identifies a taxable property.
package parcel

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidKeyFormat is returned when text is not a padded 10-digit parcel key.
var ErrInvalidKeyFormat = errors.New("invalid parcel key format")

// Jurisdiction is the borough code that prefixes every parcel key.
type Jurisdiction uint8

// Supported jurisdictions.
const (
	Manhattan    Jurisdiction = 1
	Bronx        Jurisdiction = 2
	Brooklyn     Jurisdiction = 3
	Queens       Jurisdiction = 4
	StatenIsland Jurisdiction = 5
)

const (
	blockDigits = 5
	lotDigits   = 4

	// MaxBlock is the largest block number representable in a padded key.
	MaxBlock = 99999
	// MaxLot is the largest lot number representable in a padded key.
	MaxLot = 9999
)

var paddedKey = regexp.MustCompile(`^[1-5][0-9]{9}$`)

// Valid reports whether j is one of the five known jurisdictions.
func (j Jurisdiction) Valid() bool {
	return j >= Manhattan && j <= StatenIsland
}

func (j Jurisdiction) String() string {
	switch j {
	case Manhattan:
		return "Manhattan"
	case Bronx:
		return "Bronx"
	case Brooklyn:
		return "Brooklyn"
	case Queens:
		return "Queens"
	case StatenIsland:
		return "Staten Island"
	default:
		return fmt.Sprintf("Jurisdiction(%d)", uint8(j))
	}
}

// Key identifies a single parcel. The zero value is not a valid key.
type Key struct {
	Jurisdiction Jurisdiction
	Block        uint32
	Lot          uint32
}

// New builds a Key, rejecting components that cannot be padded into ten digits.
func New(j Jurisdiction, block, lot uint32) (Key, error) {
	if !j.Valid() {
		return Key{}, fmt.Errorf("%w: jurisdiction %d out of range", ErrInvalidKeyFormat, j)
	}
	if block > MaxBlock {
		return Key{}, fmt.Errorf("%w: block %d exceeds %d", ErrInvalidKeyFormat, block, MaxBlock)
	}
	if lot > MaxLot {
		return Key{}, fmt.Errorf("%w: lot %d exceeds %d", ErrInvalidKeyFormat, lot, MaxLot)
	}
	return Key{Jurisdiction: j, Block: block, Lot: lot}, nil
}

// Parse is the strict inverse of String.
func Parse(text string) (Key, error) {
	if !IsPadded(text) {
		return Key{}, fmt.Errorf("%w: %q is not a padded parcel key", ErrInvalidKeyFormat, text)
	}
	block, err := strconv.ParseUint(text[1:1+blockDigits], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("%w: block: %v", ErrInvalidKeyFormat, err)
	}
	lot, err := strconv.ParseUint(text[1+blockDigits:], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("%w: lot: %v", ErrInvalidKeyFormat, err)
	}
	return Key{
		Jurisdiction: Jurisdiction(text[0] - '0'),
		Block:        uint32(block),
		Lot:          uint32(lot),
	}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(text string) Key {
	k, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return k
}

// IsPadded reports whether text is a jurisdiction digit followed by nine digits.
func IsPadded(text string) bool {
	return paddedKey.MatchString(text)
}

// String returns the ten character padded form, e.g. "1013730001".
func (k Key) String() string {
	return fmt.Sprintf("%d%0*d%0*d", k.Jurisdiction, blockDigits, k.Block, lotDigits, k.Lot)
}

// Path returns the hierarchical form used in cache keys, e.g. "1/01373/0001".
func (k Key) Path() string {
	return fmt.Sprintf("%d/%0*d/%0*d", k.Jurisdiction, blockDigits, k.Block, lotDigits, k.Lot)
}

// IsZero reports whether k is the zero value.
func (k Key) IsZero() bool {
	return k == Key{}
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
