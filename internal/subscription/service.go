package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/store"
)

// Service applies Matcher decisions to a subscription store. Every
// read-then-write of a record runs under the lock of the merchant name it is
// stored under; a rename holds both the old and the new name.
type Service struct {
	store   store.SubscriptionStore
	matcher Matcher
	locks   *keyedMutex
	now     func() time.Time
}

// NewService creates a service over st.
func NewService(st store.SubscriptionStore, matcher Matcher) *Service {
	return &Service{
		store:   st,
		matcher: matcher,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

func merchantKey(merchant string) string {
	return strings.ToLower(strings.TrimSpace(merchant))
}

// HandleTransaction matches a finalised transaction against the merchant's
// records and persists the resulting change, if any.
func (s *Service) HandleTransaction(ctx context.Context, tx *domain.ExtractedTransaction) (Decision, error) {
	if tx == nil || tx.Merchant == "" || tx.Merchant == domain.UnknownMerchant {
		return Decision{Outcome: OutcomeNone}, nil
	}

	unlock := s.locks.Lock(merchantKey(tx.Merchant))
	defer unlock()

	records, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{Merchant: tx.Merchant})
	if err != nil {
		return Decision{}, fmt.Errorf("HandleTransaction: list subscriptions: %w", err)
	}

	d := s.matcher.Apply(tx, records, s.now())
	if !d.Changed() {
		return d, nil
	}
	if err := s.store.SaveSubscription(ctx, d.Record); err != nil {
		return Decision{}, fmt.Errorf("HandleTransaction: save subscription: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("merchant", d.Record.MerchantName).
		Str("subscription_id", d.Record.ID).
		Str("outcome", string(d.Outcome)).
		Str("next_payment_date", d.Record.NextPaymentDate.String()).
		Msg("Subscription matched charge")
	return d, nil
}

// CreateFromMandate creates or updates the record a mandate declares. A
// mandate with a UMN is matched by UMN only; otherwise by merchant and amount.
func (s *Service) CreateFromMandate(ctx context.Context, info domain.MandateInfo) (Decision, error) {
	if strings.TrimSpace(info.Merchant) == "" {
		return Decision{}, fmt.Errorf("CreateFromMandate: merchant is required")
	}
	if !info.Amount.IsPositive() {
		return Decision{}, fmt.Errorf("CreateFromMandate: amount must be positive")
	}

	existing, unlock, err := s.lockForMandate(ctx, info)
	if err != nil {
		return Decision{}, fmt.Errorf("CreateFromMandate: %w", err)
	}
	defer unlock()

	log := logger.FromContext(ctx)
	now := s.now()
	if _, ok := s.matcher.MandateDate(info, now); !ok {
		log.Warn().
			Str("merchant", info.Merchant).
			Str("date", info.NextDeductionDate).
			Msg("Unparseable mandate date, assuming one period from now")
	}

	d := s.matcher.FromMandate(info, existing, now)
	if err := s.store.SaveSubscription(ctx, d.Record); err != nil {
		return Decision{}, fmt.Errorf("CreateFromMandate: save subscription: %w", err)
	}

	log.Info().
		Str("merchant", d.Record.MerchantName).
		Str("subscription_id", d.Record.ID).
		Str("umn", d.Record.UMN).
		Str("outcome", string(d.Outcome)).
		Msg("Subscription mandate recorded")
	return d, nil
}

// lockForMandate finds the record info refers to and returns it with the
// locks for both the mandate's merchant and the record's stored merchant
// held. The lookup is repeated under the locks; if the record moved in
// between, it starts over.
func (s *Service) lockForMandate(ctx context.Context, info domain.MandateInfo) (*domain.SubscriptionRecord, func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		peek, err := s.findForMandate(ctx, info)
		if err != nil {
			return nil, nil, err
		}
		keys := []string{merchantKey(info.Merchant)}
		if peek != nil {
			keys = append(keys, merchantKey(peek.MerchantName))
		}
		unlock := s.locks.LockAll(keys...)

		current, err := s.findForMandate(ctx, info)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if sameLockedRecord(peek, current) {
			return current, unlock, nil
		}
		unlock()
	}
}

func sameLockedRecord(a, b *domain.SubscriptionRecord) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && merchantKey(a.MerchantName) == merchantKey(b.MerchantName)
}

func (s *Service) findForMandate(ctx context.Context, info domain.MandateInfo) (*domain.SubscriptionRecord, error) {
	if info.UMN != "" {
		rec, err := s.store.GetSubscriptionByUMN(ctx, info.UMN)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("lookup by umn: %w", err)
		}
		return &rec, nil
	}

	records, err := s.store.ListSubscriptions(ctx, store.SubscriptionFilter{Merchant: info.Merchant})
	if err != nil {
		return nil, fmt.Errorf("lookup by merchant: %w", err)
	}
	return s.matcher.FindForMandate(info, records), nil
}

// Hide marks a subscription HIDDEN.
func (s *Service) Hide(ctx context.Context, id string) (domain.SubscriptionRecord, error) {
	return s.setState(ctx, id, domain.SubscriptionHidden)
}

// Unhide returns a HIDDEN subscription to ACTIVE.
func (s *Service) Unhide(ctx context.Context, id string) (domain.SubscriptionRecord, error) {
	return s.setState(ctx, id, domain.SubscriptionActive)
}

func (s *Service) setState(ctx context.Context, id string, state domain.SubscriptionState) (domain.SubscriptionRecord, error) {
	rec, unlock, err := s.lockRecord(ctx, id)
	if err != nil {
		return domain.SubscriptionRecord{}, err
	}
	defer unlock()

	if rec.State == state {
		return rec, nil
	}
	rec.State = state
	rec.UpdatedAt = s.now()
	if err := s.store.SaveSubscription(ctx, rec); err != nil {
		return domain.SubscriptionRecord{}, fmt.Errorf("setState: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("subscription_id", id).Str("state", string(state)).Msg("Subscription state changed")
	return rec, nil
}

// lockRecord reads the record, takes its merchant lock and re-reads it, since
// a charge or a mandate rename may have changed it meanwhile.
func (s *Service) lockRecord(ctx context.Context, id string) (domain.SubscriptionRecord, func(), error) {
	for {
		peek, err := s.store.GetSubscription(ctx, id)
		if err != nil {
			return domain.SubscriptionRecord{}, nil, err
		}
		key := merchantKey(peek.MerchantName)
		unlock := s.locks.Lock(key)

		rec, err := s.store.GetSubscription(ctx, id)
		if err != nil {
			unlock()
			return domain.SubscriptionRecord{}, nil, err
		}
		if merchantKey(rec.MerchantName) == key {
			return rec, unlock, nil
		}
		unlock()
	}
}

// List returns subscriptions matching filter.
func (s *Service) List(ctx context.Context, filter store.SubscriptionFilter) ([]domain.SubscriptionRecord, error) {
	return s.store.ListSubscriptions(ctx, filter)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// LockAll takes every distinct key in sorted order and returns one function
// releasing them all.
func (k *keyedMutex) LockAll(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	var unlocks []func()
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Lock blocks until key is held and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
