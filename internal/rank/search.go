package rank

import (
	"context"
	"log"
	"time"

	"queue-ticketing-backend/internal/engine"
	"queue-ticketing-backend/internal/predict"
	"queue-ticketing-backend/internal/store"
)

const (
	defaultMaxResults    = 5
	defaultMaxDistanceKM = 10.0
	maxSuggestions       = 3
	speedSampleWindow    = 100
)

// Params narrows and personalizes a search.
type Params struct {
	Term          string
	UserID        string
	Lat, Lon      *float64
	Institution   string
	Neighborhood  string
	BranchID      string
	MaxResults    int
	MaxDistanceKM float64
}

// Result is one ranked queue.
type Result struct {
	QueueID      string   `json:"queue_id"`
	Service      string   `json:"service"`
	Institution  string   `json:"institution"`
	Branch       string   `json:"branch"`
	Neighborhood string   `json:"neighborhood"`
	CategoryID   *string  `json:"category_id,omitempty"`
	WaitMinutes  *float64 `json:"wait_minutes,omitempty"`
	DistanceKM   *float64 `json:"distance_km,omitempty"`
	ActiveCount  int      `json:"active_tickets"`
	DailyLimit   int      `json:"daily_limit"`
	QualityScore float64  `json:"quality_score"`
	SpeedLabel   string   `json:"speed_label"`
	Score        float64  `json:"score"`
}

// Suggestion points at a queue in the same category as the top hit.
type Suggestion struct {
	QueueID     string   `json:"queue_id"`
	Service     string   `json:"service"`
	Institution string   `json:"institution"`
	Branch      string   `json:"branch"`
	WaitMinutes *float64 `json:"wait_minutes,omitempty"`
}

// Response is the full search outcome.
type Response struct {
	Results     []Result     `json:"results"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Service ranks open queues for discovery.
type Service struct {
	store    store.Store
	eng      *engine.Engine
	distance engine.DistanceCalculator
	scorer   predict.QualityScorer
	now      func() time.Time
}

// NewService wires a search service. A nil nowFn defaults to time.Now.
func NewService(st store.Store, eng *engine.Engine, distance engine.DistanceCalculator,
	scorer predict.QualityScorer, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{store: st, eng: eng, distance: distance, scorer: scorer, now: nowFn}
}

// Search finds open, non-full queues matching the params, ranks them and
// returns up to MaxResults plus related-category suggestions for the top hit.
func (s *Service) Search(ctx context.Context, p Params) (*Response, error) {
	if p.MaxResults <= 0 {
		p.MaxResults = defaultMaxResults
	}
	if p.MaxDistanceKM <= 0 {
		p.MaxDistanceKM = defaultMaxDistanceKM
	}

	queues, err := s.store.CandidateQueues(ctx, store.QueueFilter{
		Term:         p.Term,
		Institution:  p.Institution,
		Neighborhood: p.Neighborhood,
		BranchID:     p.BranchID,
	})
	if err != nil {
		return nil, err
	}

	preferredInstitutions := map[string]bool{}
	preferredCategories := map[string]bool{}
	if p.UserID != "" {
		prefs, err := s.store.PreferencesFor(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		for _, pref := range prefs {
			if pref.InstitutionID != nil {
				preferredInstitutions[*pref.InstitutionID] = true
			}
			if pref.CategoryID != nil {
				preferredCategories[*pref.CategoryID] = true
			}
		}
	}

	now := s.now()
	results := make([]Result, 0, len(queues))
	for i := range queues {
		q := &queues[i]
		if !engine.IsOpen(q.Schedules, now) {
			continue
		}
		if q.ActiveTickets >= q.DailyLimit {
			continue
		}
		branch := q.Department.Branch

		var distanceKM *float64
		if p.Lat != nil && p.Lon != nil && branch.Latitude != nil && branch.Longitude != nil {
			if km, ok := s.distance.Distance(*p.Lat, *p.Lon, *branch.Latitude, *branch.Longitude); ok {
				if km > p.MaxDistanceKM {
					continue
				}
				distanceKM = &km
			}
		}

		var waitMinutes *float64
		if minutes, known, err := s.eng.Estimate(ctx, q.ID, q.ActiveTickets+1, 0); err != nil {
			log.Printf("search: estimate for queue %s: %v", q.ID, err)
		} else if known {
			waitMinutes = &minutes
		}

		meanService, meanKnown := s.meanServiceMinutes(ctx, q.ID)
		quality := s.scorer.Score(q.ID, meanService, q.ActiveTickets, q.DailyLimit)

		prefInstitution := preferredInstitutions[branch.InstitutionID]
		prefCategory := q.CategoryID != nil && preferredCategories[*q.CategoryID]

		results = append(results, Result{
			QueueID:      q.ID,
			Service:      q.Service,
			Institution:  branch.Institution.Name,
			Branch:       branch.Name,
			Neighborhood: branch.Neighborhood,
			CategoryID:   q.CategoryID,
			WaitMinutes:  waitMinutes,
			DistanceKM:   distanceKM,
			ActiveCount:  q.ActiveTickets,
			DailyLimit:   q.DailyLimit,
			QualityScore: quality,
			SpeedLabel:   SpeedLabel(meanService, meanKnown),
			Score:        Score(p.Term != "", distanceKM, quality, prefInstitution, prefCategory),
		})
	}

	sortResults(results)
	if len(results) > p.MaxResults {
		results = results[:p.MaxResults]
	}

	return &Response{
		Results:     results,
		Suggestions: s.suggestions(ctx, results),
	}, nil
}

func (s *Service) meanServiceMinutes(ctx context.Context, queueID string) (float64, bool) {
	durations, err := s.store.ServedDurations(ctx, queueID, speedSampleWindow)
	if err != nil || len(durations) == 0 {
		return 0, false
	}
	var sum float64
	for _, d := range durations {
		sum += d
	}
	return sum / float64(len(durations)), true
}

// suggestions returns up to three queues sharing the top hit's category.
func (s *Service) suggestions(ctx context.Context, results []Result) []Suggestion {
	if len(results) == 0 || results[0].CategoryID == nil {
		return nil
	}
	related, err := s.store.RelatedQueues(ctx, *results[0].CategoryID, results[0].QueueID, maxSuggestions)
	if err != nil {
		log.Printf("search: related queues for %s: %v", results[0].QueueID, err)
		return nil
	}

	suggestions := make([]Suggestion, 0, len(related))
	for i := range related {
		q := &related[i]
		suggestion := Suggestion{
			QueueID:     q.ID,
			Service:     q.Service,
			Institution: q.Department.Branch.Institution.Name,
			Branch:      q.Department.Branch.Name,
		}
		if minutes, known, err := s.eng.Estimate(ctx, q.ID, q.ActiveTickets+1, 0); err == nil && known {
			suggestion.WaitMinutes = &minutes
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions
}
