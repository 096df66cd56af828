// Package resolver turns raw entity mentions into canonical entities.
// Resolution is deterministic: the same mentions always produce the same
// entities with the same ids, so repeated ingestion converges instead of
// duplicating.
package resolver

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/siherrmann/veritas/helper"
	"github.com/siherrmann/veritas/model"
)

// Config tunes the resolution thresholds.
type Config struct {
	// MinConfidence drops mentions below it before grouping.
	MinConfidence float64
	// FuzzyThreshold is the Jaro-Winkler similarity above which two
	// normalized values of the same type merge into one entity.
	FuzzyThreshold float64
	// CorroborationBonus is added to the entity confidence for every
	// distinct source beyond the first, capped at 1.0.
	CorroborationBonus float64
}

// DefaultConfig returns the resolution thresholds used by the engine.
func DefaultConfig() Config {
	return Config{
		MinConfidence:      0.5,
		FuzzyThreshold:     0.92,
		CorroborationBonus: 0.05,
	}
}

// Resolver deduplicates mentions into canonical entities.
type Resolver struct {
	config Config
	logger *slog.Logger
}

// NewResolver creates a resolver with the given thresholds.
func NewResolver(config Config, logger *slog.Logger) *Resolver {
	return &Resolver{config: config, logger: logger}
}

// Resolution is the outcome of resolving a batch of mentions.
type Resolution struct {
	Entities []*model.Entity
	// MentionEntity maps every accepted mention to the id of the entity
	// it resolved into.
	MentionEntity map[*model.Mention]string
	// SkippedMentions counts mentions dropped for being invalid or below
	// the confidence threshold.
	SkippedMentions int
}

// Resolve groups mentions by (type, normalized value), merges near-equal
// spellings of the same type, and builds one canonical entity per group.
func (r *Resolver) Resolve(mentions []*model.Mention) (*Resolution, error) {
	if len(mentions) == 0 {
		return nil, helper.NewError("resolve mentions", fmt.Errorf("%w: no mentions to resolve", helper.ErrValidation))
	}

	resolution := &Resolution{MentionEntity: map[*model.Mention]string{}}

	type groupKey struct {
		entityType model.EntityType
		normalized string
	}
	groups := map[groupKey][]*model.Mention{}

	for _, mention := range mentions {
		if !mention.Valid() || mention.Confidence < r.config.MinConfidence {
			resolution.SkippedMentions++
			continue
		}
		key := groupKey{mention.EntityType, Normalize(mention.RawValue)}
		if key.normalized == "" {
			resolution.SkippedMentions++
			continue
		}
		groups[key] = append(groups[key], mention)
	}

	// Merge near-equal spellings into the group seen first in sorted key
	// order, so merging is independent of map iteration.
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityType != keys[j].entityType {
			return keys[i].entityType < keys[j].entityType
		}
		return keys[i].normalized < keys[j].normalized
	})

	merged := map[groupKey]groupKey{}
	for i, key := range keys {
		if _, taken := merged[key]; taken {
			continue
		}
		for _, other := range keys[i+1:] {
			if _, taken := merged[other]; taken {
				continue
			}
			if other.entityType != key.entityType {
				continue
			}
			if jaroWinkler(key.normalized, other.normalized) >= r.config.FuzzyThreshold {
				merged[other] = key
			}
		}
	}
	for from, into := range merged {
		groups[into] = append(groups[into], groups[from]...)
		delete(groups, from)
	}

	for key, group := range groups {
		entity := r.buildEntity(key.entityType, key.normalized, group)
		resolution.Entities = append(resolution.Entities, entity)
		for _, mention := range group {
			resolution.MentionEntity[mention] = entity.ID
		}
	}

	sort.Slice(resolution.Entities, func(i, j int) bool {
		return resolution.Entities[i].ID < resolution.Entities[j].ID
	})

	r.logger.Debug("Resolved mentions",
		slog.Int("mentions", len(mentions)),
		slog.Int("entities", len(resolution.Entities)),
		slog.Int("skipped", resolution.SkippedMentions),
	)

	return resolution, nil
}

// buildEntity merges a group into one canonical entity. Sponsor-flagged
// mentions stay in the group as aliases and provenance but do not vote
// on the canonical value or the aggregate confidence.
func (r *Resolver) buildEntity(entityType model.EntityType, normalized string, group []*model.Mention) *model.Entity {
	voting := organicMentions(group)
	entity := &model.Entity{
		ID:             model.NewEntityID(entityType, normalized),
		Type:           entityType,
		CanonicalValue: pickCanonicalValue(voting),
		MentionCount:   len(group),
	}

	sources := map[string]bool{}
	for _, mention := range group {
		entity.AddAlias(mention.RawValue)
		sources[mention.SourceID] = true
		if !mention.ObservedAt.IsZero() {
			if entity.FirstSeen.IsZero() || mention.ObservedAt.Before(entity.FirstSeen) {
				entity.FirstSeen = mention.ObservedAt
			}
			if mention.ObservedAt.After(entity.LastSeen) {
				entity.LastSeen = mention.ObservedAt
			}
		}
		if mention.Sentiment != "" {
			entity.SentimentHistory = append(entity.SentimentHistory, model.SentimentObservation{
				SourceID:  mention.SourceID,
				Offset:    mention.Offset,
				Sentiment: mention.Sentiment,
			})
		}
		for k, v := range mention.Attributes {
			if entity.Attributes == nil {
				entity.Attributes = model.Metadata{}
			}
			entity.Attributes[k] = v
		}
	}

	var confidenceSum float64
	for _, mention := range voting {
		confidenceSum += mention.Confidence
	}
	entity.Confidence = confidenceSum/float64(len(voting)) + r.config.CorroborationBonus*float64(len(sources)-1)
	if entity.Confidence > 1.0 {
		entity.Confidence = 1.0
	}

	return entity
}

// organicMentions filters sponsor-flagged mentions out of a group. When
// every mention in the group is sponsored the full group is returned so
// the entity still resolves.
func organicMentions(group []*model.Mention) []*model.Mention {
	organic := make([]*model.Mention, 0, len(group))
	for _, mention := range group {
		if !mention.SponsorContent {
			organic = append(organic, mention)
		}
	}
	if len(organic) == 0 {
		return group
	}
	return organic
}

// pickCanonicalValue chooses the display spelling for a group: the strict
// majority spelling if one exists, otherwise the spelling of the highest
// confidence mention. Remaining ties break on earliest offset, then on
// the spelling itself, so the choice never depends on group order.
func pickCanonicalValue(group []*model.Mention) string {
	counts := map[string]int{}
	for _, mention := range group {
		counts[mention.RawValue]++
	}

	best, bestCount := "", 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best, bestCount = value, count
		}
	}
	if bestCount*2 > len(group) {
		return best
	}

	chosen := group[0]
	for _, mention := range group[1:] {
		switch {
		case mention.Confidence > chosen.Confidence:
			chosen = mention
		case mention.Confidence < chosen.Confidence:
		case mention.Offset < chosen.Offset:
			chosen = mention
		case mention.Offset == chosen.Offset && mention.RawValue < chosen.RawValue:
			chosen = mention
		}
	}
	return chosen.RawValue
}
