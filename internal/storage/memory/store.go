package memory

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

// Store is an in-memory implementation of storage.Store. Transactions are
// serialized and work on a copy of the state that replaces it on commit.
// Calling the non-transactional accessors from inside WithinTx deadlocks.
type Store struct {
	mu         sync.RWMutex
	st         *state
	commitHook func() error
	now        func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetCommitHook installs a hook run before each commit. A non-nil error rolls
// the transaction back.
func (s *Store) SetCommitHook(hook func() error) {
	s.mu.Lock()
	s.commitHook = hook
	s.mu.Unlock()
}

type accessFunc func(write bool, fn func(st *state) error) error

func (s *Store) access(write bool, fn func(st *state) error) error {
	if write {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.st)
}

func (s *Store) Requests() storage.RequestStore {
	return requestStore{access: s.access}
}

func (s *Store) Funds() storage.FundStore {
	return fundStore{access: s.access, now: s.now}
}

func (s *Store) PendingFunds() storage.PendingFundStore {
	return pendingFundStore{access: s.access, now: s.now}
}

func (s *Store) BlockchainEvents() storage.BlockchainEventStore {
	return eventStore{access: s.access}
}

// WithinTx runs fn against a private copy of the state.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow storage.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	txAccess := func(_ bool, f func(st *state) error) error { return f(draft) }
	uow := unitOfWork{access: txAccess, now: s.now}

	if err := fn(ctx, uow); err != nil {
		return err
	}
	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return err
		}
	}
	s.st = draft
	return nil
}

type unitOfWork struct {
	access accessFunc
	now    func() time.Time
}

func (u unitOfWork) Requests() storage.RequestStore { return requestStore{access: u.access} }
func (u unitOfWork) Funds() storage.FundStore       { return fundStore{access: u.access, now: u.now} }
func (u unitOfWork) PendingFunds() storage.PendingFundStore {
	return pendingFundStore{access: u.access, now: u.now}
}
func (u unitOfWork) BlockchainEvents() storage.BlockchainEventStore {
	return eventStore{access: u.access}
}

type state struct {
	requests map[int64]model.Request
	funds    []model.Fund
	pending  map[string]model.PendingFund
	events   []model.BlockchainEvent

	nextRequestID int64
	nextFundID    int64
	nextPendingID int64
	nextEventID   int64
}

func newState() *state {
	return &state{
		requests: make(map[int64]model.Request),
		pending:  make(map[string]model.PendingFund),
	}
}

func (s *state) clone() *state {
	out := *s
	out.requests = make(map[int64]model.Request, len(s.requests))
	for id, r := range s.requests {
		out.requests[id] = r
	}
	out.pending = make(map[string]model.PendingFund, len(s.pending))
	for hash, p := range s.pending {
		out.pending[hash] = p
	}
	out.funds = append([]model.Fund(nil), s.funds...)
	out.events = append([]model.BlockchainEvent(nil), s.events...)
	return &out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyFund(f model.Fund) model.Fund {
	f.AmountInWei = copyInt(f.AmountInWei)
	return f
}

func hashKey(txHash string) string {
	return strings.ToLower(strings.TrimSpace(txHash))
}

type requestStore struct {
	access accessFunc
}

func (s requestStore) FindByID(_ context.Context, id int64) (model.Request, bool, error) {
	var (
		out model.Request
		ok  bool
	)
	err := s.access(false, func(st *state) error {
		out, ok = st.requests[id]
		return nil
	})
	return out, ok, err
}

func (s requestStore) FindByIssue(_ context.Context, platform model.Platform, platformID string) (model.Request, bool, error) {
	var (
		out model.Request
		ok  bool
	)
	err := s.access(false, func(st *state) error {
		ids := make([]int64, 0, len(st.requests))
		for id := range st.requests {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			r := st.requests[id]
			if r.IssueInformation.Platform == platform && r.IssueInformation.PlatformID == platformID {
				out, ok = r, true
				return nil
			}
		}
		return nil
	})
	return out, ok, err
}

func (s requestStore) Save(_ context.Context, r model.Request) (model.Request, error) {
	if r.IssueInformation.Platform == "" || r.IssueInformation.PlatformID == "" {
		return model.Request{}, storage.ErrInvalidInput
	}
	err := s.access(true, func(st *state) error {
		for id, existing := range st.requests {
			if id != r.ID && existing.IssueInformation.Platform == r.IssueInformation.Platform &&
				existing.IssueInformation.PlatformID == r.IssueInformation.PlatformID {
				return storage.ErrDuplicateKey
			}
		}
		if r.ID == 0 {
			st.nextRequestID++
			r.ID = st.nextRequestID
		} else if r.ID > st.nextRequestID {
			st.nextRequestID = r.ID
		}
		st.requests[r.ID] = r
		return nil
	})
	return r, err
}

type fundStore struct {
	access accessFunc
	now    func() time.Time
}

func (s fundStore) Save(_ context.Context, f model.Fund) (model.Fund, error) {
	if f.RequestID == 0 || f.AmountInWei == nil || f.AmountInWei.Sign() < 0 || f.Token == "" {
		return model.Fund{}, storage.ErrInvalidInput
	}
	f = copyFund(f)
	err := s.access(true, func(st *state) error {
		if f.BlockchainEventID != 0 {
			for _, existing := range st.funds {
				if existing.BlockchainEventID == f.BlockchainEventID {
					return storage.ErrDuplicateKey
				}
			}
		}
		if f.Timestamp.IsZero() {
			f.Timestamp = s.now().UTC()
		}
		st.nextFundID++
		f.ID = st.nextFundID
		st.funds = append(st.funds, f)
		return nil
	})
	if err != nil {
		return model.Fund{}, err
	}
	return copyFund(f), nil
}

func (s fundStore) FindByID(_ context.Context, id int64) (model.Fund, error) {
	var out model.Fund
	err := s.access(false, func(st *state) error {
		for _, f := range st.funds {
			if f.ID == id {
				out = copyFund(f)
				return nil
			}
		}
		return storage.ErrNotFound
	})
	return out, err
}

func (s fundStore) FindAll(_ context.Context) ([]model.Fund, error) {
	var out []model.Fund
	err := s.access(false, func(st *state) error {
		out = make([]model.Fund, 0, len(st.funds))
		for _, f := range st.funds {
			out = append(out, copyFund(f))
		}
		return nil
	})
	return out, err
}

func (s fundStore) FindByRequestID(_ context.Context, requestID int64) ([]model.Fund, error) {
	var out []model.Fund
	err := s.access(false, func(st *state) error {
		out = make([]model.Fund, 0)
		for _, f := range st.funds {
			if f.RequestID == requestID {
				out = append(out, copyFund(f))
			}
		}
		return nil
	})
	return out, err
}

func (s fundStore) FindByBlockchainEventID(_ context.Context, eventID int64) (model.Fund, bool, error) {
	var (
		out model.Fund
		ok  bool
	)
	err := s.access(false, func(st *state) error {
		for _, f := range st.funds {
			if eventID != 0 && f.BlockchainEventID == eventID {
				out, ok = copyFund(f), true
				return nil
			}
		}
		return nil
	})
	return out, ok, err
}

type pendingFundStore struct {
	access accessFunc
	now    func() time.Time
}

func (s pendingFundStore) Save(_ context.Context, p model.PendingFund) (model.PendingFund, error) {
	if hashKey(p.TransactionHash) == "" || p.UserID == "" {
		return model.PendingFund{}, storage.ErrInvalidInput
	}
	p.AmountInWei = copyInt(p.AmountInWei)
	err := s.access(true, func(st *state) error {
		key := hashKey(p.TransactionHash)
		if _, exists := st.pending[key]; exists {
			return storage.ErrDuplicateKey
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now().UTC()
		}
		st.nextPendingID++
		p.ID = st.nextPendingID
		st.pending[key] = p
		return nil
	})
	if err != nil {
		return model.PendingFund{}, err
	}
	return p, nil
}

func (s pendingFundStore) FindByTransactionHash(_ context.Context, txHash string) (model.PendingFund, bool, error) {
	var (
		out model.PendingFund
		ok  bool
	)
	err := s.access(false, func(st *state) error {
		out, ok = st.pending[hashKey(txHash)]
		out.AmountInWei = copyInt(out.AmountInWei)
		return nil
	})
	return out, ok, err
}

type eventStore struct {
	access accessFunc
}

func (s eventStore) Save(_ context.Context, e model.BlockchainEvent) (model.BlockchainEvent, error) {
	if hashKey(e.TransactionHash) == "" {
		return model.BlockchainEvent{}, storage.ErrInvalidInput
	}
	err := s.access(true, func(st *state) error {
		for _, existing := range st.events {
			if hashKey(existing.TransactionHash) == hashKey(e.TransactionHash) && existing.LogIndex == e.LogIndex {
				e = existing
				return nil
			}
		}
		st.nextEventID++
		e.ID = st.nextEventID
		st.events = append(st.events, e)
		return nil
	})
	return e, err
}

func (s eventStore) FindByTransactionHashAndLogIndex(_ context.Context, txHash string, logIndex uint64) (model.BlockchainEvent, bool, error) {
	var (
		out model.BlockchainEvent
		ok  bool
	)
	err := s.access(false, func(st *state) error {
		for _, e := range st.events {
			if hashKey(e.TransactionHash) == hashKey(txHash) && e.LogIndex == logIndex {
				out, ok = e, true
				return nil
			}
		}
		return nil
	})
	return out, ok, err
}

var _ storage.Store = (*Store)(nil)
