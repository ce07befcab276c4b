// Package analyzer mines historical contractor cohorts for revenue-tier
// transition patterns and maintains the pattern library.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// commonalityThreshold is the share of a cohort a focus area, milestone,
// partner or content item must appear in to count as "common".
const commonalityThreshold = 0.30

// Analyzer produces and updates Pattern records from contractor cohorts.
type Analyzer struct {
	store       store.Store
	transitions []model.TierTransition
	minCohort   int
}

// New creates an Analyzer over the given transition list. minCohort below
// the model floor is raised to it.
func New(st store.Store, transitions []model.TierTransition, minCohort int) *Analyzer {
	if minCohort < model.MinPatternSampleSize {
		minCohort = model.MinPatternSampleSize
	}
	return &Analyzer{store: st, transitions: transitions, minCohort: minCohort}
}

// Confidence maps a cohort size to an initial confidence score: 0 below the
// sample floor, 0.25 at 5, 0.5 at 10, saturating at 1.0 from 20 up. This is
// the canonical curve wherever confidence is derived from sample size alone.
func Confidence(sampleSize int) float64 {
	if sampleSize < model.MinPatternSampleSize {
		return 0
	}
	return math.Min(1.0, 0.25+float64(sampleSize-model.MinPatternSampleSize)*0.05)
}

// AnalyzeTransitions returns the cohort for a tier transition: contractors
// currently at toTier, used as the proxy for "successfully transitioned".
func (a *Analyzer) AnalyzeTransitions(ctx context.Context, fromTier, toTier model.Tier) ([]model.ContractorProfile, error) {
	cohort, err := a.store.ListContractorsByTier(ctx, toTier)
	if err != nil {
		return nil, eris.Wrapf(err, "analyzer: cohort for %s -> %s", fromTier, toTier)
	}
	return cohort, nil
}

// IdentifyCommonPatterns distills a cohort into a Pattern for the given
// transition. Pure function of its input: same cohort, same pattern.
func (a *Analyzer) IdentifyCommonPatterns(cohort []model.ContractorProfile, fromTier, toTier model.Tier) *model.Pattern {
	n := len(cohort)
	if n == 0 {
		return nil
	}

	p := &model.Pattern{
		FromTier:        fromTier,
		ToTier:          toTier,
		Name:            fmt.Sprintf("%s to %s growth pattern", tierLabel(fromTier), tierLabel(toTier)),
		Type:            model.PatternTypeRevenueGrowth,
		SampleSize:      n,
		ConfidenceScore: Confidence(n),
	}
	p.Description = fmt.Sprintf("What %d contractors who reached %s had in common", n, tierLabel(toTier))

	p.CommonFocusAreas = commonStrings(cohort, n, func(c *model.ContractorProfile) []string { return c.FocusAreas })
	p.CommonMilestones = commonStrings(cohort, n, func(c *model.ContractorProfile) []string { return c.MilestonesAchieved })
	p.CommonPartners = commonPartners(cohort, n)
	p.CommonBooks = commonBooks(cohort, n)
	p.CommonPodcasts = commonPodcasts(cohort, n)
	p.CommonEvents = commonEvents(cohort, n)

	avg, median, fastest := transitionTimes(cohort)
	p.AvgTimeToLevelUpMonths = avg
	p.MedianTimeToLevelUpMonths = median
	p.FastestTimeMonths = fastest
	if fastest > median || median > avg {
		// The ordering fastest <= median <= avg is expected but not enforced
		// at write time; surface the anomaly instead of correcting it.
		zap.L().Warn("analyzer: transition time ordering violated",
			zap.String("from_tier", string(fromTier)),
			zap.String("to_tier", string(toTier)),
			zap.Float64("avg", avg),
			zap.Float64("median", median),
			zap.Float64("fastest", fastest),
		)
	}

	p.SuccessIndicators = model.SuccessIndicators{
		TypicalTeamSize: medianTeamSize(cohort),
		TypicalStage:    modalStage(cohort),
		CommonTraits:    p.CommonFocusAreas,
	}
	return p
}

// Store persists a mined pattern, upserting by (from_tier, to_tier, type).
// Patterns below the sample floor are rejected softly: nil pattern, nil
// error. An upsert always carries a confidence recomputed from the new
// sample size, never the previously stored score.
func (a *Analyzer) Store(ctx context.Context, p *model.Pattern) (*model.Pattern, error) {
	if p == nil || p.SampleSize < model.MinPatternSampleSize {
		return nil, nil
	}
	p.ConfidenceScore = Confidence(p.SampleSize)

	stored, created, err := a.store.UpsertPattern(ctx, p)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: store pattern")
	}
	zap.L().Info("analyzer: pattern stored",
		zap.Int64("pattern_id", stored.ID),
		zap.String("from_tier", string(stored.FromTier)),
		zap.String("to_tier", string(stored.ToTier)),
		zap.Int("sample_size", stored.SampleSize),
		zap.Float64("confidence", stored.ConfidenceScore),
		zap.Bool("created", created),
	)
	return stored, nil
}

// GenerateSummary reports one full pattern-generation run.
type GenerateSummary struct {
	Created  int             `json:"created"`
	Updated  int             `json:"updated"`
	Skipped  int             `json:"skipped"`
	Patterns []model.Pattern `json:"patterns"`
}

// GenerateAll mines every configured tier transition. Transitions whose
// cohort is below the sample floor are skipped, not errors.
func (a *Analyzer) GenerateAll(ctx context.Context) (*GenerateSummary, error) {
	runID := uuid.New().String()
	start := time.Now()
	summary := &GenerateSummary{}

	for _, tr := range a.transitions {
		cohort, err := a.AnalyzeTransitions(ctx, tr.From, tr.To)
		if err != nil {
			return nil, err
		}
		if len(cohort) < a.minCohort {
			summary.Skipped++
			zap.L().Debug("analyzer: transition skipped",
				zap.String("run_id", runID),
				zap.String("from_tier", string(tr.From)),
				zap.String("to_tier", string(tr.To)),
				zap.Int("cohort_size", len(cohort)),
			)
			continue
		}

		mined := a.IdentifyCommonPatterns(cohort, tr.From, tr.To)
		stored, created, err := a.store.UpsertPattern(ctx, withConfidence(mined))
		if err != nil {
			return nil, eris.Wrapf(err, "analyzer: generate %s -> %s", tr.From, tr.To)
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
		summary.Patterns = append(summary.Patterns, *stored)
	}

	zap.L().Info("analyzer: generation run complete",
		zap.String("run_id", runID),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("took", time.Since(start)),
	)
	return summary, nil
}

func withConfidence(p *model.Pattern) *model.Pattern {
	p.ConfidenceScore = Confidence(p.SampleSize)
	return p
}

// commonStrings retains values present in more than commonalityThreshold of
// the cohort, sorted by descending frequency then lexically for determinism.
func commonStrings(cohort []model.ContractorProfile, n int, pick func(*model.ContractorProfile) []string) []string {
	counts := make(map[string]int)
	for i := range cohort {
		seen := make(map[string]bool)
		for _, v := range pick(&cohort[i]) {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			counts[key]++
		}
	}

	var common []string
	for v, c := range counts {
		if float64(c)/float64(n) > commonalityThreshold {
			common = append(common, v)
		}
	}
	sort.Slice(common, func(i, j int) bool {
		if counts[common[i]] != counts[common[j]] {
			return counts[common[i]] > counts[common[j]]
		}
		return common[i] < common[j]
	})
	return common
}

func commonPartners(cohort []model.ContractorProfile, n int) []model.PartnerUsage {
	type acc struct {
		users        int
		satisfaction float64
		rated        int
	}
	byPartner := make(map[int64]*acc)
	for i := range cohort {
		seen := make(map[int64]bool)
		for _, pe := range cohort[i].PartnersUsed {
			a, ok := byPartner[pe.PartnerID]
			if !ok {
				a = &acc{}
				byPartner[pe.PartnerID] = a
			}
			if !seen[pe.PartnerID] {
				seen[pe.PartnerID] = true
				a.users++
			}
			if pe.Satisfaction > 0 {
				a.satisfaction += pe.Satisfaction
				a.rated++
			}
		}
	}

	var usages []model.PartnerUsage
	for id, a := range byPartner {
		rate := float64(a.users) / float64(n)
		if rate <= commonalityThreshold {
			continue
		}
		u := model.PartnerUsage{PartnerID: id, UsageRate: rate}
		if a.rated > 0 {
			u.AvgSatisfaction = a.satisfaction / float64(a.rated)
		}
		usages = append(usages, u)
	}
	sort.Slice(usages, func(i, j int) bool {
		if usages[i].UsageRate != usages[j].UsageRate {
			return usages[i].UsageRate > usages[j].UsageRate
		}
		return usages[i].PartnerID < usages[j].PartnerID
	})
	return usages
}

// contentUsage aggregates any ContentRef slice into usage records above the
// commonality threshold.
func contentUsage(cohort []model.ContractorProfile, n int, pick func(*model.ContractorProfile) []model.ContentRef) []model.ContentUsage {
	type acc struct {
		users int
		title string
	}
	byID := make(map[int64]*acc)
	for i := range cohort {
		seen := make(map[int64]bool)
		for _, ref := range pick(&cohort[i]) {
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			a, ok := byID[ref.ID]
			if !ok {
				a = &acc{title: ref.Title}
				byID[ref.ID] = a
			}
			a.users++
		}
	}

	var usages []model.ContentUsage
	for id, a := range byID {
		rate := float64(a.users) / float64(n)
		if rate <= commonalityThreshold {
			continue
		}
		usages = append(usages, model.ContentUsage{ID: id, Title: strings.TrimSpace(a.title), UsageRate: rate})
	}
	sort.Slice(usages, func(i, j int) bool {
		if usages[i].UsageRate != usages[j].UsageRate {
			return usages[i].UsageRate > usages[j].UsageRate
		}
		return usages[i].ID < usages[j].ID
	})
	return usages
}

func commonBooks(cohort []model.ContractorProfile, n int) []model.BookUsage {
	metaOf := contentMeta(cohort, func(c *model.ContractorProfile) []model.ContentRef { return c.BooksRead })
	base := contentUsage(cohort, n, func(c *model.ContractorProfile) []model.ContentRef { return c.BooksRead })
	books := make([]model.BookUsage, 0, len(base))
	for _, u := range base {
		books = append(books, model.BookUsage{ContentUsage: u, Author: metaOf[u.ID]})
	}
	return books
}

func commonPodcasts(cohort []model.ContractorProfile, n int) []model.PodcastUsage {
	metaOf := contentMeta(cohort, func(c *model.ContractorProfile) []model.ContentRef { return c.PodcastsFollowed })
	base := contentUsage(cohort, n, func(c *model.ContractorProfile) []model.ContentRef { return c.PodcastsFollowed })
	podcasts := make([]model.PodcastUsage, 0, len(base))
	for _, u := range base {
		podcasts = append(podcasts, model.PodcastUsage{ContentUsage: u, Host: metaOf[u.ID]})
	}
	return podcasts
}

func commonEvents(cohort []model.ContractorProfile, n int) []model.EventUsage {
	metaOf := contentMeta(cohort, func(c *model.ContractorProfile) []model.ContentRef { return c.EventsAttended })
	base := contentUsage(cohort, n, func(c *model.ContractorProfile) []model.ContentRef { return c.EventsAttended })
	events := make([]model.EventUsage, 0, len(base))
	for _, u := range base {
		events = append(events, model.EventUsage{ContentUsage: u, EventType: metaOf[u.ID]})
	}
	return events
}

func contentMeta(cohort []model.ContractorProfile, pick func(*model.ContractorProfile) []model.ContentRef) map[int64]string {
	metas := make(map[int64]string)
	for i := range cohort {
		for _, ref := range pick(&cohort[i]) {
			if _, ok := metas[ref.ID]; !ok {
				metas[ref.ID] = ref.Meta
			}
		}
	}
	return metas
}

// transitionTimes computes avg, median and fastest months-to-transition over
// the cohort members that report one.
func transitionTimes(cohort []model.ContractorProfile) (avg, median, fastest float64) {
	var months []float64
	for i := range cohort {
		if m := cohort[i].MonthsToCurrentTier; m != nil && *m > 0 {
			months = append(months, *m)
		}
	}
	if len(months) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(months)

	var sum float64
	for _, m := range months {
		sum += m
	}
	avg = sum / float64(len(months))

	mid := len(months) / 2
	if len(months)%2 == 1 {
		median = months[mid]
	} else {
		median = (months[mid-1] + months[mid]) / 2
	}
	fastest = months[0]
	return avg, median, fastest
}

func medianTeamSize(cohort []model.ContractorProfile) int {
	sizes := make([]int, 0, len(cohort))
	for i := range cohort {
		if cohort[i].TeamSize > 0 {
			sizes = append(sizes, cohort[i].TeamSize)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Ints(sizes)
	return sizes[len(sizes)/2]
}

func modalStage(cohort []model.ContractorProfile) string {
	counts := make(map[string]int)
	for i := range cohort {
		if s := cohort[i].CurrentStage; s != "" {
			counts[s]++
		}
	}
	var best string
	var bestCount int
	for s, c := range counts {
		if c > bestCount || (c == bestCount && s < best) {
			best, bestCount = s, c
		}
	}
	return best
}

// tierLabel renders a tier id for pattern names ("0_5_million" -> "$0-5M").
func tierLabel(t model.Tier) string {
	s := string(t)
	s = strings.TrimSuffix(s, "_million")
	if s == "150_plus" {
		return "$150M+"
	}
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 2 {
		return "$" + parts[0] + "-" + parts[1] + "M"
	}
	return string(t)
}
