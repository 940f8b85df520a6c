package bodycomp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/bodytrend/internal/bodycomp/calc"
	"github.com/2beens/bodytrend/internal/telemetry/metrics"
	"github.com/2beens/bodytrend/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=service_mocks_test.go -package=bodycomp_test

type entriesRepo interface {
	Add(ctx context.Context, entry Entry) (*Entry, error)
	Get(ctx context.Context, userID string, id int) (*Entry, error)
	List(ctx context.Context, params ListParams) (_ []Entry, total int, err error)
	ListAll(ctx context.Context, userID string) ([]Entry, error)
	EntriesCount(ctx context.Context, userID string) (int, error)
}

type subscriber struct {
	userID string
	ch     chan []Entry
}

// Service computes the metrics for incoming entries, persists them, and keeps
// the history subscribers fed with fresh list snapshots.
type Service struct {
	repo    entriesRepo
	metrics *metrics.Manager

	subscribersMutex sync.Mutex
	subscribers      map[*subscriber]struct{}
}

func NewService(repo entriesRepo, metricsManager *metrics.Manager) *Service {
	return &Service{
		repo:        repo,
		metrics:     metricsManager,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Add runs the calculation engine over the entry measurements, stores the
// entry together with the computed values, and pushes an updated history
// snapshot to the subscribers of that user.
func (s *Service) Add(ctx context.Context, entry Entry) (_ *Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.bodycomp.add")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := entry.ValidateDate(); err != nil {
		return nil, err
	}

	res, err := calc.Calculate(entry.CalcInput())
	if err != nil {
		return nil, fmt.Errorf("calculate: %w", err)
	}

	entry.BMI = res.BMI
	entry.BodyFatPct = res.BodyFatPct
	entry.LeanMass = res.LeanMass
	entry.FatMass = res.FatMass
	entry.HipMissing = res.HipMissing

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	added, err := s.repo.Add(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("add entry: %w", err)
	}

	s.metrics.CounterEntriesSaved.Inc()
	s.notifySubscribers(ctx, added.UserID)

	return added, nil
}

func (s *Service) List(ctx context.Context, params ListParams) (_ []Entry, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.bodycomp.list")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	entries, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, -1, fmt.Errorf("list entries: %w", err)
	}
	return entries, total, nil
}

func (s *Service) ListAll(ctx context.Context, userID string) (_ []Entry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.bodycomp.listall")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	entries, err := s.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list all entries: %w", err)
	}
	return entries, nil
}

// Subscribe registers a history listener for the given user. The current
// snapshot is delivered right away, and a fresh one after every saved entry.
// The returned cancel func must be called when done, it closes the channel.
// A slow receiver only ever misses intermediate snapshots, never the last one.
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan []Entry, func()) {
	sub := &subscriber{
		userID: userID,
		ch:     make(chan []Entry, 1),
	}

	s.subscribersMutex.Lock()
	s.subscribers[sub] = struct{}{}
	s.subscribersMutex.Unlock()
	s.metrics.GaugeEntrySubscribers.Inc()

	var cancelOnce sync.Once
	cancel := func() {
		cancelOnce.Do(func() {
			s.subscribersMutex.Lock()
			delete(s.subscribers, sub)
			close(sub.ch)
			s.subscribersMutex.Unlock()
			s.metrics.GaugeEntrySubscribers.Dec()
		})
	}

	// initial snapshot; an entry saved while it was being fetched has already
	// filled the buffer with a fresher one, keep that instead of blocking
	entries, err := s.repo.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("subscribe, get initial entries snapshot for %s: %s", userID, err)
	} else {
		select {
		case sub.ch <- entries:
		default:
		}
	}

	return sub.ch, cancel
}

func (s *Service) notifySubscribers(ctx context.Context, userID string) {
	s.subscribersMutex.Lock()
	var subs []*subscriber
	for sub := range s.subscribers {
		if sub.userID == userID {
			subs = append(subs, sub)
		}
	}
	s.subscribersMutex.Unlock()

	if len(subs) == 0 {
		return
	}

	entries, err := s.repo.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("notify subscribers, get entries for %s: %s", userID, err)
		return
	}

	s.subscribersMutex.Lock()
	defer s.subscribersMutex.Unlock()
	for _, sub := range subs {
		if _, ok := s.subscribers[sub]; !ok {
			// cancelled in the meantime
			continue
		}
		// replace a stale pending snapshot instead of blocking
		select {
		case sub.ch <- entries:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- entries:
			default:
			}
		}
	}
}
