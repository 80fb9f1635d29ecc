package conflict

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/iudanet/handsync/internal/models"
)

// Policy политика разрешения конфликтов
type Policy string

const (
	PolicyLocal    Policy = "local"
	PolicyRemote   Policy = "remote"
	PolicyNewest   Policy = "newest"
	PolicyPriority Policy = "priority"
	PolicyManual   Policy = "manual"
	PolicyMerge    Policy = "merge"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyLocal, PolicyRemote, PolicyNewest, PolicyPriority, PolicyManual, PolicyMerge:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// MergeFunc builds a merged payload out of competing records ordered by timestamp.
// A nil payload means the merged state is a deletion.
type MergeFunc func(key models.EntityKey, records []*models.ChangeRecord) (json.RawMessage, error)

// PriorityFunc returns the registered priority of a device.
type PriorityFunc func(deviceID string) int

// RecordFactory creates a new change record authored by the current device.
// Used for merge results and reissued winners, which must be newer than every input.
type RecordFactory func(key models.EntityKey, op models.Operation, payload []byte, after int64) *models.ChangeRecord

// Decision результат разрешения конфликта.
// Если выбранная запись не самая новая в группе, Winner - ее копия от текущего
// устройства с timestamp позже всех входных записей.
type Decision struct {
	Winner     *models.ChangeRecord   // Winner авторитетная запись, nil для manual
	Chosen     *models.ChangeRecord   // Chosen выбранная входная запись, nil для слияния
	Resolution models.Resolution      // Resolution фактически примененное решение
	Discarded  []*models.ChangeRecord // Discarded проигравшие записи
	Manual     bool                   // Manual автоматического победителя нет
	Reissued   bool                   // Reissued Winner создан текущим устройством и должен быть отправлен
}

// Resolver выбирает авторитетную запись среди конкурирующих.
type Resolver struct {
	priority  PriorityFunc
	newRecord RecordFactory
	merge     MergeFunc
	logger    *slog.Logger
	selfID    string
}

// NewResolver создает resolver для текущего устройства selfID.
func NewResolver(selfID string, priority PriorityFunc, newRecord RecordFactory, logger *slog.Logger) *Resolver {
	if priority == nil {
		priority = func(string) int { return 0 }
	}
	return &Resolver{
		selfID:    selfID,
		priority:  priority,
		newRecord: newRecord,
		logger:    logger,
	}
}

// SetMergeFunc регистрирует пользовательскую функцию слияния.
// Без нее политика merge работает как newest.
func (r *Resolver) SetMergeFunc(fn MergeFunc) {
	r.merge = fn
}

// Resolve применяет политику к конкурирующим записям одной сущности.
func (r *Resolver) Resolve(policy Policy, records []*models.ChangeRecord) (*Decision, error) {
	records = Distinct(records)
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	switch policy {
	case PolicyManual:
		return &Decision{Manual: true}, nil
	case PolicyLocal:
		return r.ResolveAs(models.ResolutionLocal, records)
	case PolicyRemote:
		return r.ResolveAs(models.ResolutionRemote, records)
	case PolicyNewest:
		return r.ResolveAs(models.ResolutionNewest, records)
	case PolicyPriority:
		return r.ResolveAs(models.ResolutionPriority, records)
	case PolicyMerge:
		return r.ResolveAs(models.ResolutionMerge, records)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}

// ResolveAs применяет явное решение, например полученное от пользователя.
func (r *Resolver) ResolveAs(resolution models.Resolution, records []*models.ChangeRecord) (*Decision, error) {
	records = Distinct(records)
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	var winner *models.ChangeRecord
	applied := resolution
	merged := false

	switch resolution {
	case models.ResolutionLocal:
		winner = newest(r.filter(records, true))
	case models.ResolutionRemote:
		winner = newest(r.filter(records, false))
	case models.ResolutionNewest:
		winner = newest(records)
	case models.ResolutionPriority:
		winner = r.byPriority(records)
	case models.ResolutionMerge:
		result, err := r.mergeRecords(records)
		if err != nil {
			r.logger.Warn("Merge failed, falling back to newest",
				"entity_type", records[0].EntityType,
				"entity_id", records[0].EntityID,
				"error", err)
		}
		winner = result
		merged = result != nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, resolution)
	}

	if winner == nil {
		// Нет записей нужного происхождения (например, local без локальных записей)
		winner = newest(records)
		applied = models.ResolutionNewest
	}

	d := &Decision{
		Winner:     winner,
		Resolution: applied,
		Reissued:   merged,
	}
	if !merged {
		d.Chosen = winner
		if latest := newest(records); latest.ID != winner.ID && r.newRecord != nil {
			d.Winner = r.reissue(winner, latest.Timestamp)
			d.Reissued = true
		}
	}

	for _, rec := range records {
		if d.Chosen == nil || rec.ID != d.Chosen.ID {
			d.Discarded = append(d.Discarded, rec)
		}
	}

	r.logger.Debug("Conflict resolved",
		"entity_type", d.Winner.EntityType,
		"entity_id", d.Winner.EntityID,
		"resolution", applied,
		"winner", d.Winner.ID,
		"reissued", d.Reissued,
		"discarded", len(d.Discarded))

	return d, nil
}

// reissue копирует содержимое выбранной записи в новую запись текущего устройства
func (r *Resolver) reissue(rec *models.ChangeRecord, after int64) *models.ChangeRecord {
	op := rec.Operation
	if op == models.OperationCreate {
		op = models.OperationUpdate
	}
	return r.newRecord(rec.Key(), op, rec.Payload, after)
}

func (r *Resolver) filter(records []*models.ChangeRecord, local bool) []*models.ChangeRecord {
	var out []*models.ChangeRecord
	for _, rec := range records {
		if (rec.OriginDevice == r.selfID) == local {
			out = append(out, rec)
		}
	}
	return out
}

// byPriority выбирает запись устройства с наибольшим приоритетом.
// При равных приоритетах выигрывает более новая запись.
func (r *Resolver) byPriority(records []*models.ChangeRecord) *models.ChangeRecord {
	best := math.MinInt
	var top []*models.ChangeRecord
	for _, rec := range records {
		p := r.priority(rec.OriginDevice)
		switch {
		case p > best:
			best = p
			top = []*models.ChangeRecord{rec}
		case p == best:
			top = append(top, rec)
		}
	}
	return newest(top)
}

// mergeRecords вызывает пользовательскую функцию слияния.
// Возвращает nil, если функции нет или она вернула ошибку.
func (r *Resolver) mergeRecords(records []*models.ChangeRecord) (*models.ChangeRecord, error) {
	if r.merge == nil || r.newRecord == nil {
		return nil, nil
	}

	key := records[0].Key()
	payload, err := r.merge(key, records)
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", key, err)
	}

	op := models.OperationUpdate
	if len(payload) == 0 {
		op = models.OperationDelete
	}

	var latest int64
	for _, rec := range records {
		if rec.Timestamp > latest {
			latest = rec.Timestamp
		}
	}

	return r.newRecord(key, op, payload, latest), nil
}

func newest(records []*models.ChangeRecord) *models.ChangeRecord {
	var best *models.ChangeRecord
	for _, rec := range records {
		if best == nil || rec.IsNewerThan(best) {
			best = rec
		}
	}
	return best
}

func sortRecords(records []*models.ChangeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[j].IsNewerThan(records[i])
	})
}
