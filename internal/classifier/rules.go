package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

// KindRule maps an event phrase to its family. Position in Rules.Kinds is
// the base rank.
type KindRule struct {
	Phrase models.EventKind `json:"phrase"`
	Family models.Family    `json:"family"`
	Code   string           `json:"code"`
}

// TagRule assigns Tag when Trigger appears in the alert description.
type TagRule struct {
	Trigger string      `json:"trigger"`
	Tag     string      `json:"tag"`
	Tier    models.Tier `json:"tier"`
}

type Rules struct {
	Kinds   []KindRule                  `json:"kinds"`
	Tags    map[models.Family][]TagRule `json:"tags"`
	Offsets map[models.Tier]float64     `json:"offsets"`
}

func DefaultRules() Rules {
	return Rules{
		Kinds: []KindRule{
			{Phrase: models.KindTornadoWarning, Family: models.FamilyTornado, Code: "TOR"},
			{Phrase: models.KindThunderstormWarning, Family: models.FamilyThunderstorm, Code: "SVR"},
			{Phrase: models.KindFlashFloodWarning, Family: models.FamilyFlashFlood, Code: "FFW"},
			{Phrase: models.KindTornadoWatch, Family: models.FamilyTornado, Code: "TOR WTCH"},
			{Phrase: models.KindThunderstormWatch, Family: models.FamilyThunderstorm, Code: "SVR WTCH"},
			{Phrase: models.KindFlashFloodWatch, Family: models.FamilyFlashFlood, Code: "FFW WTCH"},
		},
		Tags: map[models.Family][]TagRule{
			models.FamilyTornado: {
				{Trigger: "tornado emergency", Tag: "TORNADO EMERGENCY", Tier: models.TierHigh},
				{Trigger: "catastrophic", Tag: "CATASTROPHIC DAMAGE THREAT", Tier: models.TierHigh},
				{Trigger: "considerable", Tag: "CONSIDERABLE DAMAGE THREAT", Tier: models.TierMid},
				{Trigger: "observed", Tag: "OBSERVED", Tier: models.TierLow},
				{Trigger: "confirmed", Tag: "OBSERVED", Tier: models.TierLow},
				{Trigger: "radar indicated", Tag: "RADAR INDICATED", Tier: models.TierNone},
			},
			models.FamilyThunderstorm: {
				{Trigger: "destructive", Tag: "DESTRUCTIVE DAMAGE THREAT", Tier: models.TierHigh},
				{Trigger: "considerable", Tag: "CONSIDERABLE DAMAGE THREAT", Tier: models.TierMid},
				{Trigger: "significant", Tag: "SIGNIFICANT DAMAGE THREAT", Tier: models.TierNone},
			},
			models.FamilyFlashFlood: {
				{Trigger: "flash flood emergency", Tag: "FLASH FLOOD EMERGENCY", Tier: models.TierHigh},
				{Trigger: "catastrophic", Tag: "CATASTROPHIC FLOOD", Tier: models.TierHigh},
				{Trigger: "considerable", Tag: "CONSIDERABLE FLOOD THREAT", Tier: models.TierMid},
			},
		},
		Offsets: map[models.Tier]float64{
			models.TierNone: 0,
			models.TierLow:  0.1,
			models.TierMid:  0.2,
			models.TierHigh: 0.3,
		},
	}
}

// LoadRules reads a JSON rules file. Sections left out of the file keep
// their defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("error reading rules file: %w", err)
	}

	var override Rules
	if err := json.Unmarshal(data, &override); err != nil {
		return Rules{}, fmt.Errorf("error decoding rules file: %w", err)
	}

	rules := DefaultRules()
	if len(override.Kinds) > 0 {
		rules.Kinds = override.Kinds
	}
	if len(override.Tags) > 0 {
		rules.Tags = override.Tags
	}
	if len(override.Offsets) > 0 {
		rules.Offsets = override.Offsets
		rules.Offsets[models.TierNone] = 0
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks that the kind table ranks each of the six monitored kinds
// exactly once. Overrides may reorder the ranks but not add or drop kinds.
func (r Rules) Validate() error {
	if len(r.Kinds) != len(models.EventKinds) {
		return fmt.Errorf("rules must rank all %d event kinds, got %d", len(models.EventKinds), len(r.Kinds))
	}

	seen := make(map[models.EventKind]bool, len(r.Kinds))
	for i, k := range r.Kinds {
		phrase := models.EventKind(strings.ToLower(strings.TrimSpace(string(k.Phrase))))
		if phrase == "" {
			return fmt.Errorf("event kind %d has an empty phrase", i)
		}
		if !slices.Contains(models.EventKinds, phrase) {
			return fmt.Errorf("unknown event kind: %s", phrase)
		}
		if seen[phrase] {
			return fmt.Errorf("duplicate event kind: %s", phrase)
		}
		seen[phrase] = true
	}

	for family, tags := range r.Tags {
		for _, t := range tags {
			if strings.TrimSpace(t.Trigger) == "" || t.Tag == "" {
				return fmt.Errorf("tag rule for %s needs a trigger and a tag", family)
			}
			if _, ok := r.Offsets[t.Tier]; !ok {
				return fmt.Errorf("tag %s uses unknown tier %q", t.Tag, t.Tier)
			}
		}
	}

	for tier, off := range r.Offsets {
		if off < 0 || off >= 1 {
			return fmt.Errorf("offset for tier %q must be in [0, 1), got %v", tier, off)
		}
	}

	return nil
}
