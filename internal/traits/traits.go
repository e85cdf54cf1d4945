package traits

import (
	"errors"
	"fmt"
)

// DerivationVersion identifies the derivation algorithm below. Seeds are
// issued against a specific version; changing the stream, the category
// order, or the draw procedure requires a new version, never an edit.
const DerivationVersion = 1

type Guild string

const (
	GuildFarmer  Guild = "farmer"
	GuildFisher  Guild = "fisher"
	GuildMiner   Guild = "miner"
	GuildWarrior Guild = "warrior"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

var (
	ErrUnknownGuild  = errors.New("unknown guild")
	ErrUnknownGender = errors.New("unknown gender")

	// ErrEmptyBucket means the trait table has no candidates for a
	// (guild, gender, category) bucket. This is a deployment defect,
	// not a runtime condition.
	ErrEmptyBucket = errors.New("empty trait bucket")
)

func ParseGuild(s string) (Guild, error) {
	switch g := Guild(s); g {
	case GuildFarmer, GuildFisher, GuildMiner, GuildWarrior:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGuild, s)
}

func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
}

// Attribute is one resolved trait. Order within a resolved sequence is
// significant: it is echoed verbatim to clients and is the compositor's
// layer order.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Resolver derives the trait sequence for an instance. It is a pure
// function of its inputs and the (validated, immutable) table.
type Resolver struct {
	table *Table
}

func NewResolver(t *Table) (*Resolver, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{table: t}, nil
}

// Resolve draws one attribute per category, in the table's fixed category
// order. Same inputs always produce the same sequence.
func (r *Resolver) Resolve(instanceID uint64, guild Guild, gender Gender, seed uint64) ([]Attribute, error) {
	if _, err := ParseGuild(string(guild)); err != nil {
		return nil, err
	}
	if _, err := ParseGender(string(gender)); err != nil {
		return nil, err
	}

	s := newStream(instanceID, seed)
	attrs := make([]Attribute, 0, len(r.table.Categories))
	for _, cat := range r.table.Categories {
		cands := r.table.candidates(guild, gender, cat)
		if len(cands) == 0 {
			return nil, fmt.Errorf("%w: (%s, %s, %s)", ErrEmptyBucket, guild, gender, cat)
		}
		attrs = append(attrs, Attribute{TraitType: cat, Value: draw(s, cands)})
	}
	return attrs, nil
}

// draw selects a candidate by cumulative weight. One stream value is
// consumed per category regardless of bucket size, so adding candidates
// to a later bucket never shifts earlier draws.
func draw(s *stream, cands []Candidate) string {
	var total uint64
	for _, c := range cands {
		total += uint64(c.Weight)
	}
	roll := s.next() % total
	var acc uint64
	for _, c := range cands {
		acc += uint64(c.Weight)
		if roll < acc {
			return c.Value
		}
	}
	return cands[len(cands)-1].Value
}

// stream is a splitmix64 sequence. The instance ID is folded into the
// initial state alongside the seed so two instances sharing a seed still
// diverge, and the same instance always reproduces the same stream.
type stream struct {
	state uint64
}

const golden = 0x9E3779B97F4A7C15

func newStream(instanceID, seed uint64) *stream {
	return &stream{state: instanceID*golden ^ seed}
}

func (s *stream) next() uint64 {
	s.state += golden
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
