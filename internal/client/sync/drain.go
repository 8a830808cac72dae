package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iudanet/medsync/internal/client/api"
	"github.com/iudanet/medsync/internal/client/network"
	"github.com/iudanet/medsync/internal/client/notify"
	"github.com/iudanet/medsync/internal/client/storage"
	"github.com/iudanet/medsync/internal/clock"
	"github.com/iudanet/medsync/internal/models"
)

// Outcome итог обработки одной записи очереди
type Outcome string

// Возможные итоги
const (
	OutcomeApplied  Outcome = "applied"  // сервер подтвердил, запись удалена из очереди
	OutcomeConflict Outcome = "conflict" // конфликт сохранен, ждет пользователя
	OutcomeResolved Outcome = "resolved" // конфликт разрешен политикой автоматически
	OutcomeFailed   Outcome = "failed"   // временный сбой, повтор по расписанию
	OutcomeRejected Outcome = "rejected" // сервер окончательно отклонил
	OutcomeBlocked  Outcome = "blocked"  // не отправлялась: ждет конфликт или предыдущую мутацию
	OutcomeAborted  Outcome = "aborted"  // синхронизация прервана
)

// Progress is reported once per queue entry during a drain.
type Progress struct {
	Entry   *models.QueueEntry
	Err     error
	Outcome Outcome
	Done    int
	Total   int
}

// Options управляют одним запуском синхронизации
type Options struct {
	OnProgress func(Progress)
	OnError    func(error)
	OnComplete func(*Result)
	// ForceSync игнорирует отложенные повторы и минимальный интервал.
	// Отклоненные сервером записи пропускаются всегда.
	ForceSync bool
}

func (o Options) progress(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

func (o Options) fail(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}

func (o Options) complete(r *Result) {
	if o.OnComplete != nil {
		o.OnComplete(r)
	}
}

// Result summarises one drain.
type Result struct {
	Attempted      int  `json:"attempted"`
	Pushed         int  `json:"pushed"`
	Failed         int  `json:"failed"`
	Rejected       int  `json:"rejected"`
	Conflicts      int  `json:"conflicts"`
	AutoResolved   int  `json:"auto_resolved"`
	Blocked        int  `json:"blocked"`
	Remaining      int  `json:"remaining"`
	ShortCircuited bool `json:"short_circuited"`
}

// conflictError несет текущую серверную версию записи
type conflictError struct {
	remote *models.Record
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("remote version %d is newer than local base", e.remote.UpdatedAt)
}

// errCorrupt - снимок в очереди не читается; повтор бесполезен
var errCorrupt = errors.New("corrupt queue entry")

// Sync отправляет очередь на сервер. Параллельный вызов присоединяется к уже
// идущей синхронизации и получает ее результат: OnComplete или OnError
// вызываются и для него, OnProgress - нет.
func (s *Service) Sync(ctx context.Context, opts Options) (*Result, error) {
	if !s.monitor.IsOnline() {
		opts.fail(network.ErrOffline)
		return nil, network.ErrOffline
	}

	led := false
	v, err, _ := s.group.Do("drain", func() (any, error) {
		led = true
		return s.drain(ctx, opts)
	})
	res, _ := v.(*Result)
	if !led {
		// Прогресс получает только тот, кто запустил синхронизацию;
		// присоединившийся узнает итог
		s.logger.Debug("Joined sync already in progress")
		if err != nil {
			opts.fail(err)
		} else {
			opts.complete(res)
		}
	}
	return res, err
}

// SyncNow forces a drain, ignoring backoff and the minimum interval.
func (s *Service) SyncNow(ctx context.Context) (*Result, error) {
	return s.Sync(ctx, Options{ForceSync: true})
}

func (s *Service) drain(ctx context.Context, opts Options) (*Result, error) {
	started := s.clock.Now()

	entries, err := s.queue.ListOrdered(ctx)
	if err != nil {
		s.setState(models.SyncError, err.Error())
		opts.fail(err)
		return nil, err
	}

	result := &Result{}
	if !opts.ForceSync && !anyEligible(entries, started) && s.syncedWithin(ctx, started) {
		result.ShortCircuited = true
		result.Remaining = len(entries)
		s.logger.Debug("Sync skipped: nothing eligible since last sync", "pending", len(entries))
		opts.complete(result)
		return result, nil
	}

	s.setState(models.SyncSyncing, "")
	s.logger.Info("Sync started", "entries", len(entries), "force", opts.ForceSync)

	var (
		abortErr error
		lastErr  error
		done     int
		total    = len(entries)
	)

	skip := func(chain []*models.QueueEntry, reason error) {
		for _, e := range chain {
			done++
			result.Blocked++
			opts.progress(Progress{Entry: e, Err: reason, Outcome: OutcomeBlocked, Done: done, Total: total})
		}
	}

chains:
	for _, chain := range groupByEntity(entries) {
		key := chain[0].EntityKey()

		_, err := s.store.GetConflict(ctx, key)
		if err == nil {
			skip(chain, ErrConflictPending)
			continue
		}
		if !errors.Is(err, storage.ErrConflictNotFound) {
			abortErr = err
			break
		}

		for i, cached := range chain {
			if err := ctx.Err(); err != nil {
				abortErr = err
				break chains
			}
			if !s.monitor.IsOnline() {
				abortErr = network.ErrOffline
				break chains
			}

			// Запись могла измениться после ListOrdered: Ack предыдущей мутации
			// сдвигает BaseUpdatedAt, администратор мог ее удалить
			entry, err := s.queue.Get(ctx, cached.ID)
			if errors.Is(err, storage.ErrEntryNotFound) {
				done++
				continue
			}
			if err != nil {
				abortErr = err
				break chains
			}

			if entry.Rejected || (!opts.ForceSync && entry.NextRetryAt > started) {
				// Мутации сущности применяются строго по порядку
				skip(chain[i:], nil)
				continue chains
			}

			result.Attempted++
			outcome, err := s.push(ctx, entry, result)
			done++
			opts.progress(Progress{Entry: entry, Err: err, Outcome: outcome, Done: done, Total: total})

			switch outcome {
			case OutcomeApplied:
				continue
			case OutcomeAborted:
				abortErr = err
				break chains
			case OutcomeResolved:
				// ResolveConflict уже заменил мутации сущности
			case OutcomeConflict:
				skip(chain[i+1:], ErrConflictPending)
			default:
				lastErr = err
				skip(chain[i+1:], nil)
			}
			continue chains
		}
	}

	remaining, err := s.queue.Len(ctx)
	if err == nil {
		result.Remaining = remaining
	}

	if abortErr != nil {
		s.setState(models.SyncError, abortErr.Error())
		s.logger.Error("Sync aborted",
			"pushed", result.Pushed,
			"remaining", result.Remaining,
			slog.Any("error", abortErr),
		)
		opts.fail(abortErr)
		return result, fmt.Errorf("sync aborted: %w", abortErr)
	}

	if err := s.store.SaveLastSyncTimestamp(ctx, s.clock.Now()); err != nil {
		s.setState(models.SyncError, err.Error())
		opts.fail(err)
		return result, fmt.Errorf("failed to save last sync timestamp: %w", err)
	}

	if lastErr != nil {
		s.setState(models.SyncError, lastErr.Error())
	} else {
		s.setState(models.SyncIdle, "")
	}

	s.logger.Info("Sync finished",
		"attempted", result.Attempted,
		"pushed", result.Pushed,
		"failed", result.Failed,
		"rejected", result.Rejected,
		"conflicts", result.Conflicts,
		"auto_resolved", result.AutoResolved,
		"blocked", result.Blocked,
		"remaining", result.Remaining,
	)
	opts.complete(result)
	return result, nil
}

// push отправляет одну запись и фиксирует итог в очереди
func (s *Service) push(ctx context.Context, entry *models.QueueEntry, result *Result) (Outcome, error) {
	remote, err := s.apply(ctx, entry)

	var conflict *conflictError
	switch {
	case err == nil:
		var acked int64
		if remote != nil {
			acked = remote.UpdatedAt
			clock.Observe(s.clock, acked)
		}
		if err := s.queue.Ack(ctx, entry.ID, acked); err != nil {
			return OutcomeAborted, err
		}
		result.Pushed++
		s.logger.Debug("Queue entry applied",
			"entry_id", entry.ID,
			"table", entry.Table,
			"record_id", entry.RecordID,
			"operation", entry.Operation,
		)
		s.notifyApplied(entry, remote)
		return OutcomeApplied, nil

	case errors.As(err, &conflict):
		return s.onConflict(ctx, entry, conflict.remote, result)

	case ctx.Err() != nil:
		return OutcomeAborted, ctx.Err()

	case errors.Is(err, storage.ErrStorageFault):
		return OutcomeAborted, err

	case errors.Is(err, api.ErrUnauthorized):
		// Сессия истекла: запись не виновата, ждем повторного входа
		return OutcomeAborted, err

	case api.IsConnectivity(err):
		if _, markErr := s.queue.MarkFailed(ctx, entry.ID, err); markErr != nil {
			return OutcomeAborted, markErr
		}
		if errors.Is(err, api.ErrUnavailable) {
			// Сеть пропала: остальные записи все равно не дойдут
			return OutcomeAborted, err
		}
		result.Failed++
		return OutcomeFailed, err

	default:
		if _, markErr := s.queue.MarkRejected(ctx, entry.ID, err); markErr != nil {
			return OutcomeAborted, markErr
		}
		result.Rejected++
		return OutcomeRejected, err
	}
}

// apply выполняет мутацию на сервере и возвращает подтвержденную версию
// (nil для DELETE)
func (s *Service) apply(ctx context.Context, entry *models.QueueEntry) (*models.Record, error) {
	if entry.Operation == models.OperationDelete {
		return nil, s.remote.Delete(ctx, entry.Table, entry.RecordID)
	}

	rec, err := entry.Record()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}

	switch entry.Operation {
	case models.OperationInsert:
		stored, err := s.remote.Insert(ctx, rec)
		if errors.Is(err, api.ErrAlreadyExists) {
			// Повтор после потерянного ответа или запись создана другим клиентом
			return s.update(ctx, entry, rec)
		}
		return stored, err
	case models.OperationUpdate:
		return s.update(ctx, entry, rec)
	}
	return nil, fmt.Errorf("%w: unknown operation %q", errCorrupt, entry.Operation)
}

func (s *Service) update(ctx context.Context, entry *models.QueueEntry, rec *models.Record) (*models.Record, error) {
	current, err := s.remote.Get(ctx, entry.Table, entry.RecordID)
	if errors.Is(err, api.ErrNotFound) {
		return s.remote.Insert(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	if sameVersion(current, rec) {
		// Уже применено предыдущей попыткой, ответ на которую потерялся
		return current, nil
	}
	if current.UpdatedAt > entry.BaseUpdatedAt {
		return nil, &conflictError{remote: current}
	}

	stored, err := s.remote.Update(ctx, rec, entry.BaseUpdatedAt)
	switch {
	case errors.Is(err, api.ErrStale):
		latest, getErr := s.remote.Get(ctx, entry.Table, entry.RecordID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &conflictError{remote: latest}
	case errors.Is(err, api.ErrNotFound):
		// Удалена между Get и Update
		return s.remote.Insert(ctx, rec)
	}
	return stored, err
}

// onConflict сохраняет обе версии и, если политика позволяет, сразу разрешает конфликт
func (s *Service) onConflict(ctx context.Context, entry *models.QueueEntry, remote *models.Record, result *Result) (Outcome, error) {
	local, err := s.store.GetRecord(ctx, entry.Table, entry.RecordID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		local, err = entry.Record()
		if err != nil {
			local = nil
		}
	} else if err != nil {
		return OutcomeAborted, err
	}

	clock.Observe(s.clock, remote.UpdatedAt)
	c := &models.Conflict{
		Key:        entry.EntityKey(),
		Table:      entry.Table,
		RecordID:   entry.RecordID,
		EntryID:    entry.ID,
		Local:      local,
		Remote:     remote,
		DetectedAt: s.clock.Now(),
	}
	if err := s.store.PutConflict(ctx, c); err != nil {
		return OutcomeAborted, err
	}

	if resolution, ok := s.policy.Resolve(c); ok {
		if err := s.resolve(ctx, c, resolution); err != nil {
			return OutcomeAborted, fmt.Errorf("failed to auto-resolve conflict %s: %w", c.Key, err)
		}
		result.AutoResolved++
		s.logger.Info("Conflict resolved automatically",
			"key", c.Key,
			"policy", s.policy.Name(),
			"strategy", resolution.Strategy,
		)
		return OutcomeResolved, nil
	}

	result.Conflicts++
	s.logger.Warn("Conflict detected",
		"key", c.Key,
		"local_updated_at", c.LocalUpdatedAt(),
		"remote_updated_at", c.RemoteUpdatedAt(),
	)
	return OutcomeConflict, ErrConflictPending
}

func (s *Service) notifyApplied(entry *models.QueueEntry, remote *models.Record) {
	if entry.Table != models.TableConsultations || entry.Operation == models.OperationDelete {
		return
	}

	event := notify.Event{
		Type:      notify.EventConsultationSynced,
		Table:     entry.Table,
		Operation: entry.Operation,
		RecordID:  entry.RecordID,
		ScopeID:   entry.ScopeID,
		UserID:    entry.UserID,
		At:        s.clock.Now(),
	}
	if remote != nil {
		event.Data = remote.Data
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("Failed to send notification",
				"event", event.Type,
				"record_id", event.RecordID,
				slog.Any("error", err),
			)
		}
	}()
}

func (s *Service) syncedWithin(ctx context.Context, now int64) bool {
	if s.minInterval <= 0 {
		return false
	}
	last, err := s.store.GetLastSyncTimestamp(ctx)
	if err != nil || last == 0 {
		return false
	}
	return now-last < s.minInterval.Milliseconds()
}

func anyEligible(entries []*models.QueueEntry, now int64) bool {
	for _, e := range entries {
		if e.Eligible(now) {
			return true
		}
	}
	return false
}

// groupByEntity разбивает упорядоченную очередь на цепочки мутаций одной сущности.
// Цепочки идут в порядке первой (самой приоритетной) записи, внутри цепочки -
// в порядке создания.
func groupByEntity(entries []*models.QueueEntry) [][]*models.QueueEntry {
	index := make(map[string]int)
	var chains [][]*models.QueueEntry
	for _, e := range entries {
		key := e.EntityKey()
		i, ok := index[key]
		if !ok {
			i = len(chains)
			index[key] = i
			chains = append(chains, nil)
		}
		chains[i] = append(chains[i], e)
	}
	for _, chain := range chains {
		sortByCreation(chain)
	}
	return chains
}

func sortByCreation(chain []*models.QueueEntry) {
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Timestamp != chain[j].Timestamp {
			return chain[i].Timestamp < chain[j].Timestamp
		}
		return chain[i].ID < chain[j].ID
	})
}

func sameVersion(remote, local *models.Record) bool {
	return remote.UpdatedAt == local.UpdatedAt && bytes.Equal(compact(remote.Data), compact(local.Data))
}

func compact(data []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}
