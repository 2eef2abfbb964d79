// Package classifier turns raw NWS alert features into ranked, tagged
// alerts. Everything outside the configured event kinds is excluded.
package classifier

import (
	"strings"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type Classifier struct {
	kinds   []KindRule
	tags    map[models.Family][]TagRule
	offsets map[models.Tier]float64
}

// New builds a classifier from rules. Phrases and triggers are matched
// case-insensitively.
func New(rules Rules) *Classifier {
	c := &Classifier{
		kinds:   make([]KindRule, len(rules.Kinds)),
		tags:    make(map[models.Family][]TagRule, len(rules.Tags)),
		offsets: rules.Offsets,
	}
	for i, k := range rules.Kinds {
		k.Phrase = models.EventKind(strings.ToLower(strings.TrimSpace(string(k.Phrase))))
		c.kinds[i] = k
	}
	for family, tags := range rules.Tags {
		lowered := make([]TagRule, len(tags))
		for i, t := range tags {
			t.Trigger = strings.ToLower(t.Trigger)
			lowered[i] = t
		}
		c.tags[family] = lowered
	}
	return c
}

// Classify returns false for alerts outside the monitored kinds and for
// payloads missing an id, properties or event.
func (c *Classifier) Classify(raw models.RawAlert) (models.ClassifiedAlert, bool) {
	p := raw.Properties
	if p == nil || strings.TrimSpace(p.Event) == "" {
		return models.ClassifiedAlert{}, false
	}
	id := raw.AlertID()
	if id == "" {
		return models.ClassifiedAlert{}, false
	}

	rank, kind, ok := c.match(p.Event)
	if !ok {
		return models.ClassifiedAlert{}, false
	}

	tag, tier := c.damageThreat(kind.Family, p.Description)

	return models.ClassifiedAlert{
		ID:          id,
		Event:       p.Event,
		Category:    models.CategoryOf(p.Event),
		Kind:        kind.Phrase,
		Code:        kind.Code,
		Family:      kind.Family,
		Tag:         tag,
		Tier:        tier,
		Rank:        rank,
		Priority:    float64(rank) - c.offsets[tier],
		Headline:    p.Headline,
		Description: p.Description,
		Instruction: p.Instruction,
		Severity:    p.Severity,
		Urgency:     p.Urgency,
		AreaDesc:    p.AreaDesc,
		Effective:   p.Effective,
		Expires:     p.Expires,
		Geometry:    raw.Geometry,
	}, true
}

func (c *Classifier) match(event string) (int, KindRule, bool) {
	e := strings.ToLower(event)
	for i, k := range c.kinds {
		if strings.Contains(e, string(k.Phrase)) {
			return i, k, true
		}
	}
	return -1, KindRule{}, false
}

func (c *Classifier) damageThreat(family models.Family, description string) (string, models.Tier) {
	if description == "" {
		return "", models.TierNone
	}
	d := strings.ToLower(description)
	for _, t := range c.tags[family] {
		if strings.Contains(d, t.Trigger) {
			return t.Tag, t.Tier
		}
	}
	return "", models.TierNone
}
