package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"queue-ticketing-backend/internal/model"
	"queue-ticketing-backend/internal/store"
)

// dedupWindow suppresses repeat proximity notifications for the same user,
// branch, queue and rounded location.
const dedupWindow = time.Hour

// CheckProximity records the user's current location and notifies them about
// open, non-full queues within the proximity radius that match their
// preferences. Each (user, branch, queue, rounded location) is notified at
// most once per hour; cache failures degrade to best-effort sending.
func (e *Engine) CheckProximity(ctx context.Context, userID string, lat, lon float64, filter store.QueueFilter) error {
	now := e.now()
	profile := &model.UserProfile{
		UserID:         userID,
		LastLatitude:   &lat,
		LastLongitude:  &lon,
		LastLocationAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("saving user location: %w", err)
	}

	prefs, err := e.store.PreferencesFor(ctx, userID)
	if err != nil {
		return err
	}
	preferredInstitutions := map[string]bool{}
	preferredCategories := map[string]bool{}
	for _, p := range prefs {
		if p.InstitutionID != nil {
			preferredInstitutions[*p.InstitutionID] = true
		}
		if p.CategoryID != nil {
			preferredCategories[*p.CategoryID] = true
		}
	}

	queues, err := e.store.CandidateQueues(ctx, filter)
	if err != nil {
		return err
	}

	for i := range queues {
		q := &queues[i]
		branch := q.Department.Branch
		if branch.Latitude == nil || branch.Longitude == nil {
			continue
		}
		if !IsOpen(q.Schedules, now) {
			continue
		}
		if q.ActiveTickets >= q.DailyLimit {
			continue
		}
		if len(preferredInstitutions) > 0 && !preferredInstitutions[branch.InstitutionID] {
			continue
		}
		if len(preferredCategories) > 0 && q.CategoryID != nil && !preferredCategories[*q.CategoryID] {
			continue
		}

		km, ok := e.distance.Distance(lat, lon, *branch.Latitude, *branch.Longitude)
		if !ok || km > e.cfg.ProximityKM {
			continue
		}

		key := fmt.Sprintf("proximity:%s:%s:%s:%d:%d",
			userID, branch.ID, q.ID, int(lat*1000), int(lon*1000))
		if _, seen, err := e.cache.Get(ctx, key); err != nil {
			log.Printf("proximity dedup unavailable for %s: %v. Sending anyway.", key, err)
		} else if seen {
			continue
		}

		wait, known, err := e.Estimate(ctx, q.ID, q.ActiveTickets+1, 0)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("proximity estimate for queue %s: %v", q.ID, err)
		}
		waitText := "waiting to start"
		if known {
			waitText = fmt.Sprintf("%.1f min", wait)
		}

		e.dispatch.Notify(Event{
			Kind:    EventProximity,
			QueueID: q.ID,
			UserID:  userID,
			Message: fmt.Sprintf("Queue nearby! %s at %s (%s), %.2f km away. Estimated wait: %s.",
				q.Service, branch.Institution.Name, branch.Name, km, waitText),
			Data: map[string]string{
				"branch_id": branch.ID,
				"distance":  fmt.Sprintf("%.2f", km),
			},
		})

		if err := e.cache.SetWithTTL(ctx, key, "sent", dedupWindow); err != nil {
			log.Printf("proximity dedup store failed for %s: %v", key, err)
		}
	}
	return nil
}
