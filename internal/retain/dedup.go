package retain

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"memoryengine/internal/store"
)

// dedupCosineThreshold is the similarity above which two units are
// considered the same fact (§4.5 step 5).
const dedupCosineThreshold = 0.9

// eventBucketHalfWidth is half of the 12-hour window a fact_kind=event fact
// is bucketed into around its event_date (§4.5 step 5).
const eventBucketHalfWidth = 6 * time.Hour

// recentConversationWindow bounds how far back a fact_kind=conversation
// dedup check looks.
const recentConversationWindow = 50

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// whoWhatOverlap reports whether two facts share at least one `who` entry
// (case-insensitive) or have substantially overlapping `what` text, the
// secondary dedup signal required alongside cosine similarity for
// fact_kind=event (§4.5 step 5).
func whoWhatOverlap(who1 []string, what1 string, who2 []string, what2 string) bool {
	set := make(map[string]struct{}, len(who1))
	for _, w := range who1 {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	for _, w := range who2 {
		if _, ok := set[strings.ToLower(strings.TrimSpace(w))]; ok {
			return true
		}
	}
	w1 := strings.ToLower(strings.TrimSpace(what1))
	w2 := strings.ToLower(strings.TrimSpace(what2))
	if w1 == "" || w2 == "" {
		return false
	}
	return strings.Contains(w1, w2) || strings.Contains(w2, w1)
}

// findDuplicate checks an about-to-be-inserted fact against the appropriate
// candidate pool for its fact_kind and returns the id of the first existing
// unit it duplicates, if any (§4.5 step 5).
func findDuplicate(ctx context.Context, s *store.Store, bankID uuid.UUID, f validFact, embedding []float32) (uuid.UUID, bool, error) {
	var candidates []store.MemoryUnit
	var err error

	switch store.FactKind(f.FactKind) {
	case store.FactKindEvent:
		anchor := time.Now().UTC()
		if f.eventDate != nil {
			anchor = *f.eventDate
		}
		candidates, err = s.UnitsInWindow(ctx, bankID, anchor.Add(-eventBucketHalfWidth), anchor.Add(eventBucketHalfWidth))
	case store.FactKindConversation:
		candidates, err = s.RecentUnits(ctx, bankID, recentConversationWindow)
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		if cosineSimilarity(c.Embedding, embedding) < dedupCosineThreshold {
			continue
		}
		if store.FactKind(f.FactKind) == store.FactKindEvent && !whoWhatOverlap(c.Who, c.What, f.Who, f.What) {
			continue
		}
		return c.ID, true, nil
	}
	return uuid.Nil, false, nil
}
