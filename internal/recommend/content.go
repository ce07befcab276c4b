package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/model"
	"github.com/sells-group/coaching-engine/internal/store"
)

// ContentKind distinguishes the three content surfaces.
type ContentKind string

const (
	ContentKindBook    ContentKind = "book"
	ContentKindPodcast ContentKind = "podcast"
	ContentKindEvent   ContentKind = "event"
)

// ContentRecommendation is one book/podcast/event aggregated across a
// contractor's matched patterns.
type ContentRecommendation struct {
	ID               int64       `json:"id"`
	Kind             ContentKind `json:"kind"`
	Title            string      `json:"title"`
	UsagePercentage  float64     `json:"usage_percentage"`
	TotalContractors int         `json:"total_contractors"`
	PatternCount     int         `json:"pattern_count"`
	Message          string      `json:"message"`
}

// ContentRecommender aggregates content usage evidence across patterns.
type ContentRecommender struct {
	store store.Store
}

func NewContentRecommender(st store.Store) *ContentRecommender {
	return &ContentRecommender{store: st}
}

// Aggregate computes weighted usage for every book, podcast and event in
// any matched pattern. No matches means an empty slice.
func (r *ContentRecommender) Aggregate(ctx context.Context, contractorID int64) ([]ContentRecommendation, error) {
	matched, err := loadMatched(ctx, r.store, contractorID)
	if err != nil {
		return nil, err
	}

	type key struct {
		kind ContentKind
		id   int64
	}
	type acc struct {
		title       string
		weightSum   float64
		usage       float64
		contractors int
		patterns    int
	}
	byContent := make(map[key]*acc)

	add := func(k key, title string, usageRate, w float64, sampleSize int) {
		a, ok := byContent[k]
		if !ok {
			a = &acc{title: title}
			byContent[k] = a
		}
		a.weightSum += w
		a.usage += w * usageRate
		a.contractors += int(usageRate*float64(sampleSize) + 0.5)
		a.patterns++
	}

	for i := range matched {
		p := &matched[i].pattern
		w := matched[i].weight()
		if w <= 0 {
			continue
		}
		for _, b := range p.CommonBooks {
			add(key{ContentKindBook, b.ID}, b.Title, b.UsageRate, w, p.SampleSize)
		}
		for _, pc := range p.CommonPodcasts {
			add(key{ContentKindPodcast, pc.ID}, pc.Title, pc.UsageRate, w, p.SampleSize)
		}
		for _, ev := range p.CommonEvents {
			add(key{ContentKindEvent, ev.ID}, ev.Title, ev.UsageRate, w, p.SampleSize)
		}
	}

	recs := make([]ContentRecommendation, 0, len(byContent))
	for k, a := range byContent {
		usage := a.usage / a.weightSum
		recs = append(recs, ContentRecommendation{
			ID:               k.id,
			Kind:             k.kind,
			Title:            a.title,
			UsagePercentage:  usage * 100,
			TotalContractors: a.contractors,
			PatternCount:     a.patterns,
			Message: fmt.Sprintf("%.0f%% of contractors on similar growth paths used this %s",
				usage*100, k.kind),
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UsagePercentage != recs[j].UsagePercentage {
			return recs[i].UsagePercentage > recs[j].UsagePercentage
		}
		if recs[i].Kind != recs[j].Kind {
			return recs[i].Kind < recs[j].Kind
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// SynthesizeChecklistItems creates content_recommendation checklist items
// under the given goal for the contractor's aggregated content. Items carry
// source=pattern_analysis so later reporting can trace their origin.
func (r *ContentRecommender) SynthesizeChecklistItems(ctx context.Context, goalID int64) ([]model.ChecklistItem, error) {
	goal, err := r.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, eris.Wrapf(err, "recommend: goal %d", goalID)
	}
	recs, err := r.Aggregate(ctx, goal.ContractorID)
	if err != nil {
		return nil, err
	}

	var items []model.ChecklistItem
	for _, rec := range recs {
		created, err := r.store.CreateChecklistItem(ctx, &model.ChecklistItem{
			GoalID:       goal.ID,
			ContractorID: goal.ContractorID,
			Text:         fmt.Sprintf("Suggest %s %q (%s)", rec.Kind, rec.Title, rec.Message),
			Type:         model.ItemTypeContentRecommendation,
			Trigger:      model.TriggerNextConversation,
			Status:       model.ItemStatusPending,
			Source:       "pattern_analysis",
		})
		if err != nil {
			return nil, eris.Wrap(err, "recommend: create content item")
		}
		items = append(items, *created)
	}
	return items, nil
}
