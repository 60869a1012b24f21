package amm

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ammengine/internal/model"
)

// PoolEmergency is an admin-gated pause flag store.
type PoolEmergency struct {
	mu      sync.RWMutex
	admins  map[string]struct{}
	records map[string]model.PauseRecord
	now     Clock
	logger  *zap.Logger
}

// NewPoolEmergency builds the flag store with a bootstrap admin set.
func NewPoolEmergency(admins []string, now Clock, logger *zap.Logger) *PoolEmergency {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &PoolEmergency{
		admins:  make(map[string]struct{}),
		records: make(map[string]model.PauseRecord),
		now:     orSystemClock(now),
		logger:  logger,
	}
	for _, admin := range admins {
		if admin = strings.TrimSpace(admin); admin != "" {
			e.admins[admin] = struct{}{}
		}
	}
	return e
}

// AddAdmin grants admin rights. The caller must already be an admin.
func (e *PoolEmergency) AddAdmin(caller, admin string) error {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return opError("add_admin", "", ErrInvalidRecipient)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.admins[caller]; !ok {
		return opError("add_admin", "", ErrUnauthorized)
	}
	e.admins[admin] = struct{}{}
	e.logger.Info("admin added", zap.String("by", caller), zap.String("admin", admin))
	return nil
}

// IsAdmin reports whether id is in the admin set.
func (e *PoolEmergency) IsAdmin(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.admins[id]
	return ok
}

// PausePool sets the pause flag for poolID.
func (e *PoolEmergency) PausePool(poolID, admin string) error {
	return e.setPaused("pause", poolID, admin, true)
}

// UnpausePool clears the pause flag for poolID.
func (e *PoolEmergency) UnpausePool(poolID, admin string) error {
	return e.setPaused("unpause", poolID, admin, false)
}

func (e *PoolEmergency) setPaused(op, poolID, admin string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.admins[admin]; !ok {
		return opError(op, poolID, ErrUnauthorized)
	}
	if !paused {
		delete(e.records, poolID)
	} else {
		e.records[poolID] = model.PauseRecord{
			PoolID:   poolID,
			Paused:   true,
			PausedAt: e.now(),
			PausedBy: admin,
		}
	}
	e.logger.Warn("pool emergency state changed",
		zap.String("pool", poolID),
		zap.Bool("paused", paused),
		zap.String("admin", admin),
	)
	return nil
}

// CheckPoolAccess fails with ErrPoolPaused when the pool is paused.
func (e *PoolEmergency) CheckPoolAccess(poolID string) error {
	if e.IsPaused(poolID) {
		return ErrPoolPaused
	}
	return nil
}

// IsPaused reports the pause flag; an absent record means not paused.
func (e *PoolEmergency) IsPaused(poolID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[poolID]
	return ok && rec.Paused
}

// Record returns the pause record for poolID.
func (e *PoolEmergency) Record(poolID string) (model.PauseRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[poolID]
	return rec, ok
}

func (e *PoolEmergency) snapshot() ([]model.PauseRecord, []string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	records := make([]model.PauseRecord, 0, len(e.records))
	for _, rec := range e.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].PoolID < records[j].PoolID })
	admins := make([]string, 0, len(e.admins))
	for admin := range e.admins {
		admins = append(admins, admin)
	}
	sort.Strings(admins)
	return records, admins
}

func (e *PoolEmergency) restore(records []model.PauseRecord, admins []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]model.PauseRecord, len(records))
	for _, rec := range records {
		if rec.Paused {
			e.records[rec.PoolID] = rec
		}
	}
	for _, admin := range admins {
		e.admins[admin] = struct{}{}
	}
}
