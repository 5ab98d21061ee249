package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"queue-ticketing-backend/internal/model"
)

// Store defines the interface for all database operations the engine and its
// collaborators perform. Mutating engine operations run inside Transaction
// with the owning queue's row locked for the duration.
type Store interface {
	DB() *gorm.DB
	Transaction(ctx context.Context, fn func(tx Store) error) error

	QueueByID(ctx context.Context, id string) (*model.Queue, error)
	QueueByService(ctx context.Context, service, branchID string) (*model.Queue, error)
	QueueForUpdate(ctx context.Context, id string) (*model.Queue, error)
	SaveQueue(ctx context.Context, q *model.Queue) error
	UpdateQueueAvgWait(ctx context.Context, queueID string, minutes float64) error
	SchedulesFor(ctx context.Context, queueID string) ([]model.QueueSchedule, error)
	BranchForQueue(ctx context.Context, queueID string) (*model.Branch, error)
	CandidateQueues(ctx context.Context, f QueueFilter) ([]model.Queue, error)
	RelatedQueues(ctx context.Context, categoryID, excludeQueueID string, limit int) ([]model.Queue, error)

	CreateTicket(ctx context.Context, t *model.Ticket) error
	SaveTicket(ctx context.Context, t *model.Ticket) error
	TicketByID(ctx context.Context, id string) (*model.Ticket, error)
	TicketByQR(ctx context.Context, qr string) (*model.Ticket, error)
	TicketByQueueNumber(ctx context.Context, queueID string, number int) (*model.Ticket, error)
	HasPendingTicket(ctx context.Context, queueID, userID string) (bool, error)
	NextPendingTicket(ctx context.Context, queueID string) (*model.Ticket, error)
	ServedDurations(ctx context.Context, queueID string, limit int) ([]float64, error)
	PreviousServedAt(ctx context.Context, queueID string, before time.Time) (*time.Time, error)
	PendingTickets(ctx context.Context) ([]model.Ticket, error)
	ExpiredCalledTickets(ctx context.Context, now time.Time) ([]model.Ticket, error)
	SwapCandidates(ctx context.Context, queueID, excludeUserID string, limit int) ([]model.Ticket, error)

	ProfileFor(ctx context.Context, userID string) (*model.UserProfile, error)
	SaveProfile(ctx context.Context, p *model.UserProfile) error
	PreferencesFor(ctx context.Context, userID string) ([]model.UserPreference, error)
	SubscriptionsFor(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	RecordAudit(ctx context.Context, entry *model.AuditLog) error
}

// QueueFilter narrows candidate queues for discovery and proximity checks.
// Empty fields are ignored.
type QueueFilter struct {
	Term          string
	Institution   string
	Neighborhood  string
	BranchID      string
	InstitutionID string
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a transactional copy of the store. Nested calls
// reuse the surrounding transaction via GORM savepoints.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) QueueByID(ctx context.Context, id string) (*model.Queue, error) {
	var q model.Queue
	if err := s.db.WithContext(ctx).First(&q, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *gormStore) QueueByService(ctx context.Context, service, branchID string) (*model.Queue, error) {
	var q model.Queue
	query := s.db.WithContext(ctx).Where("service = ?", service)
	if branchID != "" {
		query = query.
			Joins("JOIN departments ON departments.id = queues.department_id").
			Where("departments.branch_id = ?", branchID)
	}
	if err := query.First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// QueueForUpdate loads a queue with its row locked until the surrounding
// transaction ends. SQLite serializes writers on its own and rejects the
// locking clause, so it is only added on dialects that support it.
func (s *gormStore) QueueForUpdate(ctx context.Context, id string) (*model.Queue, error) {
	query := s.db.WithContext(ctx)
	if s.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var q model.Queue
	if err := query.First(&q, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *gormStore) SaveQueue(ctx context.Context, q *model.Queue) error {
	return s.db.WithContext(ctx).Save(q).Error
}

// UpdateQueueAvgWait writes the rolling average and nothing else. Callers
// outside a queue-locking transaction must use this instead of SaveQueue so
// a stale snapshot never overwrites committed counters.
func (s *gormStore) UpdateQueueAvgWait(ctx context.Context, queueID string, minutes float64) error {
	return s.db.WithContext(ctx).
		Model(&model.Queue{}).
		Where("id = ?", queueID).
		UpdateColumn("avg_wait_minutes", minutes).Error
}

func (s *gormStore) SchedulesFor(ctx context.Context, queueID string) ([]model.QueueSchedule, error) {
	var entries []model.QueueSchedule
	if err := s.db.WithContext(ctx).Where("queue_id = ?", queueID).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *gormStore) BranchForQueue(ctx context.Context, queueID string) (*model.Branch, error) {
	var branch model.Branch
	err := s.db.WithContext(ctx).
		Joins("JOIN departments ON departments.branch_id = branches.id").
		Joins("JOIN queues ON queues.department_id = departments.id").
		Where("queues.id = ?", queueID).
		Preload("Institution").
		First(&branch).Error
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *gormStore) CandidateQueues(ctx context.Context, f QueueFilter) ([]model.Queue, error) {
	query := s.db.WithContext(ctx).
		Model(&model.Queue{}).
		Joins("JOIN departments ON departments.id = queues.department_id").
		Joins("JOIN branches ON branches.id = departments.branch_id").
		Joins("JOIN institutions ON institutions.id = branches.institution_id").
		Preload("Department.Branch.Institution").
		Preload("Schedules")

	if f.Term != "" {
		like := "%" + f.Term + "%"
		query = query.Where(
			s.db.Where("queues.service LIKE ?", like).
				Or("departments.sector LIKE ?", like).
				Or("institutions.name LIKE ?", like).
				Or("queues.id IN (?)", s.db.Model(&model.ServiceTag{}).
					Select("queue_id").Where("tag LIKE ?", like)),
		)
	}
	if f.Institution != "" {
		query = query.Where("institutions.name LIKE ?", "%"+f.Institution+"%")
	}
	if f.InstitutionID != "" {
		query = query.Where("institutions.id = ?", f.InstitutionID)
	}
	if f.Neighborhood != "" {
		query = query.Where("branches.neighborhood LIKE ?", "%"+f.Neighborhood+"%")
	}
	if f.BranchID != "" {
		query = query.Where("branches.id = ?", f.BranchID)
	}

	var queues []model.Queue
	if err := query.Order("queues.service").Find(&queues).Error; err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *gormStore) RelatedQueues(ctx context.Context, categoryID, excludeQueueID string, limit int) ([]model.Queue, error) {
	var queues []model.Queue
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND id <> ?", categoryID, excludeQueueID).
		Preload("Department.Branch.Institution").
		Limit(limit).
		Find(&queues).Error
	if err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *gormStore) CreateTicket(ctx context.Context, t *model.Ticket) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *gormStore) SaveTicket(ctx context.Context, t *model.Ticket) error {
	return s.db.WithContext(ctx).Save(t).Error
}

func (s *gormStore) TicketByID(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) TicketByQR(ctx context.Context, qr string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, "qr_code = ?", qr).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) TicketByQueueNumber(ctx context.Context, queueID string, number int) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("queue_id = ? AND number = ?", queueID, number).
		Order("issued_at DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) HasPendingTicket(ctx context.Context, queueID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("queue_id = ? AND user_id = ? AND status = ?", queueID, userID, model.StatusPending).
		Count(&count).Error
	return count > 0, err
}

// NextPendingTicket selects the highest-priority pending ticket; ties break
// to the earliest number.
func (s *gormStore) NextPendingTicket(ctx context.Context, queueID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("queue_id = ? AND status = ?", queueID, model.StatusPending).
		Order("priority DESC").
		Order("number ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) ServedDurations(ctx context.Context, queueID string, limit int) ([]float64, error) {
	var durations []float64
	err := s.db.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("queue_id = ? AND status = ? AND service_minutes > 0", queueID, model.StatusServed).
		Order("served_at DESC").
		Limit(limit).
		Pluck("service_minutes", &durations).Error
	if err != nil {
		return nil, err
	}
	return durations, nil
}

func (s *gormStore) PreviousServedAt(ctx context.Context, queueID string, before time.Time) (*time.Time, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("queue_id = ? AND status = ? AND served_at < ?", queueID, model.StatusServed, before).
		Order("served_at DESC").
		First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t.ServedAt, nil
}

func (s *gormStore) PendingTickets(ctx context.Context) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *gormStore) ExpiredCalledTickets(ctx context.Context, now time.Time) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.StatusCalled, now).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *gormStore) SwapCandidates(ctx context.Context, queueID, excludeUserID string, limit int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := s.db.WithContext(ctx).
		Where("queue_id = ? AND user_id <> ? AND status = ? AND swap_offered = ?",
			queueID, excludeUserID, model.StatusPending, false).
		Order("issued_at ASC").
		Limit(limit).
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *gormStore) ProfileFor(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) SaveProfile(ctx context.Context, p *model.UserProfile) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_latitude", "last_longitude", "last_location_at", "updated_at"}),
	}).Create(p).Error
}

func (s *gormStore) PreferencesFor(ctx context.Context, userID string) ([]model.UserPreference, error) {
	var prefs []model.UserPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *gormStore) SubscriptionsFor(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

func (s *gormStore) RecordAudit(ctx context.Context, entry *model.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
