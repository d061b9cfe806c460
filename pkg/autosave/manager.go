package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const (
	defaultQuietWindow = 900 * time.Millisecond
	defaultSavedWindow = 1500 * time.Millisecond
	defaultErrorWindow = 4 * time.Second
	defaultSaveTimeout = 5 * time.Second
)

// Remote persists dirty entities to the system of record. Implementations
// must be idempotent set-field-to-value writes: a late save for a reverted
// entity is harmless because the next cycle overwrites it.
type Remote interface {
	PatchEnvelope(ctx context.Context, envelopeID envelope.EnvelopeID, fields map[string]any) error
	ReplaceAllocations(ctx context.Context, envelopeID envelope.EnvelopeID, allocations envelope.AllocationMap) error
}

// Backup mirrors the working snapshot locally so a hard failure of the
// remote store cannot lose in-progress work across a reload.
type Backup interface {
	Write(snapshot envelope.Snapshot) error
	Read() (envelope.Snapshot, bool, error)
}

// Config tunes the debounce and status display windows. OnStatus runs
// outside the manager's lock, so callbacks may call back into the Manager.
type Config struct {
	QuietWindow time.Duration
	SavedWindow time.Duration
	ErrorWindow time.Duration
	SaveTimeout time.Duration
	OnStatus    func(Status)
}

func (cfg *Config) applyDefaults() {
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = defaultQuietWindow
	}
	if cfg.SavedWindow <= 0 {
		cfg.SavedWindow = defaultSavedWindow
	}
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = defaultErrorWindow
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
}

// Manager owns the authoritative in-memory snapshot for a session. Edits
// land on the working copy immediately and are persisted after a quiet
// window; the SavedBaseline tracks what the remote store last confirmed.
//
// All state is guarded by one mutex; the debounce and status timers are
// explicit fields so there is no hidden global timer state.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	remote Remote
	backup Backup
	logger *zap.Logger

	working  envelope.Snapshot
	baseline map[envelope.EnvelopeID]envelope.AllocationMap

	dirtyFields      map[envelope.EnvelopeID]map[string]any
	dirtyAllocations map[envelope.EnvelopeID]bool

	debounceTimer *time.Timer
	statusTimer   *time.Timer
	status        Status
	notifications []Status
	inFlight      bool
	closed        bool
}

// NewManager wires a Manager around an initial snapshot. The snapshot
// becomes both the working copy and the SavedBaseline.
func NewManager(remote Remote, backup Backup, initial envelope.Snapshot, logger *zap.Logger, cfg Config) (*Manager, error) {
	if remote == nil {
		return nil, fmt.Errorf("autosave: remote dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	manager := &Manager{
		cfg:              cfg,
		remote:           remote,
		backup:           backup,
		logger:           logger,
		working:          initial.Clone(),
		baseline:         cloneAllocations(initial.Allocations),
		dirtyFields:      map[envelope.EnvelopeID]map[string]any{},
		dirtyAllocations: map[envelope.EnvelopeID]bool{},
		status:           StatusIdle,
	}
	return manager, nil
}

// Snapshot returns an immutable view of the working copy. Readers (the
// allocator, validator, classifier) operate on this copy and feed results
// back through ApplyAllocationEdit.
func (manager *Manager) Snapshot() envelope.Snapshot {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.working.Clone()
}

// Status returns the current save status.
func (manager *Manager) Status() Status {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.status
}

// Dirty reports whether the envelope has unsaved edits.
func (manager *Manager) Dirty(envelopeID envelope.EnvelopeID) bool {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return len(manager.dirtyFields[envelopeID]) > 0 || manager.dirtyAllocations[envelopeID]
}

// ApplyEdit mutates one envelope field on the working copy, marks the
// envelope dirty, and arms the debounce timer. No I/O happens here beyond
// the synchronous local backup write.
func (manager *Manager) ApplyEdit(envelopeID envelope.EnvelopeID, field string, value any) error {
	normalized, err := envelope.NormalizeEnvelopeFields(map[string]any{field: value})
	if err != nil {
		return err
	}
	manager.mu.Lock()
	if manager.closed {
		manager.mu.Unlock()
		return fmt.Errorf("autosave: manager closed")
	}
	record := manager.working.EnvelopeByID(envelopeID)
	if record == nil {
		manager.mu.Unlock()
		return fmt.Errorf("%w: %s", envelope.ErrUnknownEnvelope, envelopeID)
	}
	for key, normalizedValue := range normalized {
		applyFieldToEnvelope(record, key, normalizedValue)
		if manager.dirtyFields[envelopeID] == nil {
			manager.dirtyFields[envelopeID] = map[string]any{}
		}
		// Last write wins within the window.
		manager.dirtyFields[envelopeID][key] = normalizedValue
	}
	manager.afterEditLocked()
	queued := manager.drainNotificationsLocked()
	manager.mu.Unlock()
	manager.notify(queued)
	return nil
}

// ApplyAllocationEdit replaces one envelope's allocation map on the working
// copy and marks it dirty. Same contract as ApplyEdit.
func (manager *Manager) ApplyAllocationEdit(envelopeID envelope.EnvelopeID, allocations envelope.AllocationMap) error {
	manager.mu.Lock()
	if manager.closed {
		manager.mu.Unlock()
		return fmt.Errorf("autosave: manager closed")
	}
	if manager.working.Allocations == nil {
		manager.working.Allocations = map[envelope.EnvelopeID]envelope.AllocationMap{}
	}
	manager.working.Allocations[envelopeID] = allocations.Clone()
	manager.dirtyAllocations[envelopeID] = true
	manager.afterEditLocked()
	queued := manager.drainNotificationsLocked()
	manager.mu.Unlock()
	manager.notify(queued)
	return nil
}

// FlushNow cancels any pending debounce timer and persists all dirty
// entities immediately. Idempotent when nothing is dirty.
func (manager *Manager) FlushNow(ctx context.Context) {
	manager.mu.Lock()
	if manager.debounceTimer != nil {
		manager.debounceTimer.Stop()
		manager.debounceTimer = nil
	}
	manager.mu.Unlock()
	manager.flush(ctx)
}

// Revert restores every envelope's allocation map to the SavedBaseline and
// clears all dirty marks. Fields outside allocations are untouched. An
// in-flight save is not cancelled; its late result is overwritten by the
// next cycle.
func (manager *Manager) Revert() {
	manager.mu.Lock()
	if manager.debounceTimer != nil {
		manager.debounceTimer.Stop()
		manager.debounceTimer = nil
	}
	manager.working.Allocations = cloneAllocations(manager.baseline)
	manager.dirtyFields = map[envelope.EnvelopeID]map[string]any{}
	manager.dirtyAllocations = map[envelope.EnvelopeID]bool{}
	manager.setStatusLocked(StatusIdle)
	queued := manager.drainNotificationsLocked()
	snapshot := manager.working.Clone()
	manager.mu.Unlock()
	manager.notify(queued)
	manager.writeBackup(snapshot)
}

// Close stops the timers. Pending dirty state stays in the local backup.
func (manager *Manager) Close() {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	manager.closed = true
	if manager.debounceTimer != nil {
		manager.debounceTimer.Stop()
		manager.debounceTimer = nil
	}
	if manager.statusTimer != nil {
		manager.statusTimer.Stop()
		manager.statusTimer = nil
	}
}

// afterEditLocked arms the debounce timer, moves status to pending, and
// writes the local backup on the caller's goroutine. Caller holds the lock.
func (manager *Manager) afterEditLocked() {
	manager.setStatusLocked(StatusPending)
	if manager.debounceTimer != nil {
		manager.debounceTimer.Stop()
	}
	manager.debounceTimer = time.AfterFunc(manager.cfg.QuietWindow, func() {
		manager.flush(context.Background())
	})
	manager.writeBackup(manager.working.Clone())
}

// batchEntity is the per-envelope unit of one outgoing save batch.
type batchEntity struct {
	fields      map[string]any
	allocations envelope.AllocationMap
	hasAlloc    bool
}

// flush drains the dirty sets into a batch and persists it. Batches are
// serialized: a flush that finds one already in flight leaves its dirty
// state queued for the follow-up scheduled when the current batch lands.
func (manager *Manager) flush(ctx context.Context) {
	manager.mu.Lock()
	if manager.closed || manager.inFlight {
		manager.mu.Unlock()
		return
	}
	batch := manager.drainLocked()
	if len(batch) == 0 {
		manager.mu.Unlock()
		return
	}
	manager.inFlight = true
	manager.setStatusLocked(StatusSaving)
	queued := manager.drainNotificationsLocked()
	manager.mu.Unlock()
	manager.notify(queued)

	type result struct {
		envelopeID envelope.EnvelopeID
		entity     batchEntity
		err        error
	}
	results := make([]result, 0, len(batch))
	var wg sync.WaitGroup
	resultCh := make(chan result, len(batch))
	for envelopeID, entity := range batch {
		wg.Add(1)
		go func(envelopeID envelope.EnvelopeID, entity batchEntity) {
			defer wg.Done()
			resultCh <- result{envelopeID: envelopeID, entity: entity, err: manager.saveEntity(ctx, envelopeID, entity)}
		}(envelopeID, entity)
	}
	wg.Wait()
	close(resultCh)
	for entityResult := range resultCh {
		results = append(results, entityResult)
	}

	manager.mu.Lock()
	batchFailed := false
	for _, entityResult := range results {
		if entityResult.err != nil {
			batchFailed = true
			manager.logger.Warn("autosave batch entity failed",
				zap.String("envelope_id", string(entityResult.envelopeID)),
				zap.Error(entityResult.err))
			manager.requeueLocked(entityResult.envelopeID, entityResult.entity)
			continue
		}
		if entityResult.entity.hasAlloc {
			manager.baseline[entityResult.envelopeID] = entityResult.entity.allocations.Clone()
		}
	}
	manager.inFlight = false
	if batchFailed {
		manager.setStatusLocked(StatusError)
	} else {
		manager.setStatusLocked(StatusSaved)
	}
	// Edits that arrived mid-flight are waiting in the dirty sets; give
	// them their guaranteed follow-up save.
	if len(manager.dirtyFields) > 0 || len(manager.dirtyAllocations) > 0 {
		if manager.debounceTimer != nil {
			manager.debounceTimer.Stop()
		}
		manager.debounceTimer = time.AfterFunc(manager.cfg.QuietWindow, func() {
			manager.flush(context.Background())
		})
	}
	queued = manager.drainNotificationsLocked()
	manager.mu.Unlock()
	manager.notify(queued)
}

// drainLocked moves the dirty sets into a batch keyed by envelope id.
func (manager *Manager) drainLocked() map[envelope.EnvelopeID]batchEntity {
	batch := map[envelope.EnvelopeID]batchEntity{}
	for envelopeID, fields := range manager.dirtyFields {
		entity := batch[envelopeID]
		entity.fields = fields
		batch[envelopeID] = entity
	}
	for envelopeID := range manager.dirtyAllocations {
		entity := batch[envelopeID]
		entity.hasAlloc = true
		entity.allocations = manager.working.Allocations[envelopeID].Clone()
		batch[envelopeID] = entity
	}
	manager.dirtyFields = map[envelope.EnvelopeID]map[string]any{}
	manager.dirtyAllocations = map[envelope.EnvelopeID]bool{}
	return batch
}

// saveEntity persists one envelope's pending writes: field patch first,
// then the allocation replacement.
func (manager *Manager) saveEntity(ctx context.Context, envelopeID envelope.EnvelopeID, entity batchEntity) error {
	saveCtx, cancel := context.WithTimeout(ctx, manager.cfg.SaveTimeout)
	defer cancel()
	if len(entity.fields) > 0 {
		if err := manager.remote.PatchEnvelope(saveCtx, envelopeID, entity.fields); err != nil {
			return err
		}
	}
	if entity.hasAlloc {
		if err := manager.remote.ReplaceAllocations(saveCtx, envelopeID, entity.allocations); err != nil {
			return err
		}
	}
	return nil
}

// requeueLocked puts a failed entity back in the dirty sets without
// clobbering edits that arrived while the batch was in flight.
func (manager *Manager) requeueLocked(envelopeID envelope.EnvelopeID, entity batchEntity) {
	if len(entity.fields) > 0 {
		if manager.dirtyFields[envelopeID] == nil {
			manager.dirtyFields[envelopeID] = map[string]any{}
		}
		for key, value := range entity.fields {
			if _, newer := manager.dirtyFields[envelopeID][key]; !newer {
				manager.dirtyFields[envelopeID][key] = value
			}
		}
	}
	if entity.hasAlloc {
		// The set re-sends whatever the working copy holds now.
		manager.dirtyAllocations[envelopeID] = true
	}
}

// setStatusLocked transitions the status and manages the display-window
// timers that fold saved/error back to idle. Callback delivery is queued;
// callers drain the queue and run it after releasing the lock.
func (manager *Manager) setStatusLocked(next Status) {
	if manager.statusTimer != nil {
		manager.statusTimer.Stop()
		manager.statusTimer = nil
	}
	manager.status = next
	manager.queueNotificationLocked(next)
	var window time.Duration
	switch next {
	case StatusSaved:
		window = manager.cfg.SavedWindow
	case StatusError:
		window = manager.cfg.ErrorWindow
	default:
		return
	}
	manager.statusTimer = time.AfterFunc(window, func() {
		manager.mu.Lock()
		if manager.status == next {
			manager.status = StatusIdle
			manager.queueNotificationLocked(StatusIdle)
		}
		queued := manager.drainNotificationsLocked()
		manager.mu.Unlock()
		manager.notify(queued)
	})
}

func (manager *Manager) queueNotificationLocked(status Status) {
	if manager.cfg.OnStatus == nil {
		return
	}
	manager.notifications = append(manager.notifications, status)
}

func (manager *Manager) drainNotificationsLocked() []Status {
	queued := manager.notifications
	manager.notifications = nil
	return queued
}

// notify delivers queued status callbacks. Never called under the mutex,
// so OnStatus may call back into the manager.
func (manager *Manager) notify(queued []Status) {
	for _, status := range queued {
		manager.cfg.OnStatus(status)
	}
}

func (manager *Manager) writeBackup(snapshot envelope.Snapshot) {
	if manager.backup == nil {
		return
	}
	if err := manager.backup.Write(snapshot); err != nil {
		manager.logger.Warn("local backup write failed", zap.Error(err))
	}
}

func cloneAllocations(allocations map[envelope.EnvelopeID]envelope.AllocationMap) map[envelope.EnvelopeID]envelope.AllocationMap {
	copied := make(map[envelope.EnvelopeID]envelope.AllocationMap, len(allocations))
	for envelopeID, entry := range allocations {
		copied[envelopeID] = entry.Clone()
	}
	return copied
}

// applyFieldToEnvelope mirrors a normalized patch value onto the working
// copy so reads see the edit immediately.
func applyFieldToEnvelope(record *envelope.Envelope, field string, value any) {
	switch field {
	case envelope.FieldName:
		record.Name, _ = value.(string)
	case envelope.FieldIcon:
		record.Icon, _ = value.(string)
	case envelope.FieldNotes:
		record.Notes, _ = value.(string)
	case envelope.FieldSubtype:
		if text, ok := value.(string); ok {
			record.Subtype = envelope.Subtype(text)
		}
	case envelope.FieldPriority:
		if text, ok := value.(string); ok {
			record.Priority = envelope.Priority(text)
		}
	case envelope.FieldTargetAmount:
		if amount, ok := value.(decimal.Decimal); ok {
			record.TargetAmount = amount
		}
	case envelope.FieldCadence:
		if text, ok := value.(string); ok {
			record.BillingFrequency.Cadence = envelope.Cadence(text)
		}
	case envelope.FieldWeeks:
		if count, ok := value.(int); ok {
			record.BillingFrequency.Weeks = count
		}
	case envelope.FieldDueDayOfMonth:
		if count, ok := value.(int); ok {
			record.DueDayOfMonth = count
		}
	case envelope.FieldDueDate:
		if date, ok := value.(*time.Time); ok {
			record.DueDate = date
		}
	}
}
