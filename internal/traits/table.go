package traits

import "fmt"

// Candidate is one weighted value inside a trait bucket.
type Candidate struct {
	Value  string
	Weight uint32
}

// BucketKey addresses the candidate set for one (guild, gender, category)
// partition. AnyGuild/AnyGender are table-compression wildcards: lookup
// falls back from the exact key to progressively wider ones.
type BucketKey struct {
	Guild    Guild
	Gender   Gender
	Category string
}

const (
	AnyGuild  Guild  = "*"
	AnyGender Gender = "*"
)

// Table holds the versioned derivation configuration: the fixed category
// draw order and the weighted candidate buckets.
type Table struct {
	Categories []string
	Buckets    map[BucketKey][]Candidate
}

func (t *Table) candidates(guild Guild, gender Gender, category string) []Candidate {
	for _, k := range []BucketKey{
		{guild, gender, category},
		{guild, AnyGender, category},
		{AnyGuild, gender, category},
		{AnyGuild, AnyGender, category},
	} {
		if c, ok := t.Buckets[k]; ok {
			return c
		}
	}
	return nil
}

// Validate proves every category resolvable for every concrete
// (guild, gender) pair with a positive total weight. Run at startup;
// failure is fatal.
func (t *Table) Validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("trait table: no categories")
	}
	for _, guild := range []Guild{GuildFarmer, GuildFisher, GuildMiner, GuildWarrior} {
		for _, gender := range []Gender{GenderMale, GenderFemale} {
			for _, cat := range t.Categories {
				cands := t.candidates(guild, gender, cat)
				if len(cands) == 0 {
					return fmt.Errorf("%w: (%s, %s, %s)", ErrEmptyBucket, guild, gender, cat)
				}
				var total uint64
				for _, c := range cands {
					total += uint64(c.Weight)
				}
				if total == 0 {
					return fmt.Errorf("trait table: zero total weight in (%s, %s, %s)", guild, gender, cat)
				}
			}
		}
	}
	return nil
}

// DefaultTable is the production derivation table for the 7641-piece
// collection. Category order is part of DerivationV1.
func DefaultTable() *Table {
	return &Table{
		Categories: []string{
			"Background",
			"Guild",
			"Complexion",
			"Eyes",
			"Outfit",
			"Headgear",
			"Foreground",
		},
		Buckets: map[BucketKey][]Candidate{
			{AnyGuild, AnyGender, "Background"}: {
				{"Cyan Grid", 25},
				{"Amber Dusk", 25},
				{"Violet Haze", 20},
				{"Slate Fog", 20},
				{"Gold Leaf", 10},
			},
			// The Guild attribute is fixed per guild; a single full-weight
			// candidate keeps it inside the ordinary draw sequence so the
			// stream advances uniformly.
			{GuildFarmer, AnyGender, "Guild"}:  {{"Farmer", 1}},
			{GuildFisher, AnyGender, "Guild"}:  {{"Fisher", 1}},
			{GuildMiner, AnyGender, "Guild"}:   {{"Miner", 1}},
			{GuildWarrior, AnyGender, "Guild"}: {{"Warrior", 1}},

			{AnyGuild, AnyGender, "Complexion"}: {
				{"Fair", 30},
				{"Tan", 30},
				{"Bronze", 25},
				{"Umber", 15},
			},
			{AnyGuild, AnyGender, "Eyes"}: {
				{"Calm", 40},
				{"Sharp", 30},
				{"Weary", 20},
				{"Glowing", 10},
			},

			{GuildFarmer, GenderMale, "Outfit"}:    {{"Overalls", 60}, {"Field Tunic", 40}},
			{GuildFarmer, GenderFemale, "Outfit"}:  {{"Harvest Dress", 55}, {"Field Tunic", 45}},
			{GuildFisher, GenderMale, "Outfit"}:    {{"Oilskin Coat", 60}, {"Net Vest", 40}},
			{GuildFisher, GenderFemale, "Outfit"}:  {{"Oilskin Coat", 50}, {"Tide Wrap", 50}},
			{GuildMiner, AnyGender, "Outfit"}:      {{"Pit Jacket", 55}, {"Ore Harness", 45}},
			{GuildWarrior, GenderMale, "Outfit"}:   {{"Plate Mail", 50}, {"Scale Hauberk", 50}},
			{GuildWarrior, GenderFemale, "Outfit"}: {{"Plate Mail", 45}, {"Battle Weave", 55}},

			{GuildFarmer, AnyGender, "Headgear"}:  {{"Straw Hat", 60}, {"Bandana", 30}, {"None", 10}},
			{GuildFisher, AnyGender, "Headgear"}:  {{"Sou'wester", 55}, {"Wool Cap", 35}, {"None", 10}},
			{GuildMiner, AnyGender, "Headgear"}:   {{"Lamp Helmet", 70}, {"Bandana", 20}, {"None", 10}},
			{GuildWarrior, AnyGender, "Headgear"}: {{"Horned Helm", 45}, {"Circlet", 35}, {"None", 20}},

			{AnyGuild, AnyGender, "Foreground"}: {
				{"None", 70},
				{"Fireflies", 15},
				{"Falling Leaves", 10},
				{"Rune Glow", 5},
			},
		},
	}
}
