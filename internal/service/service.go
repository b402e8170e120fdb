package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"kasirinaja/stockledger/internal/cache"
	"kasirinaja/stockledger/internal/catalog"
	"kasirinaja/stockledger/internal/domain"
	"kasirinaja/stockledger/internal/ledger"
	"kasirinaja/stockledger/internal/logger"
	"kasirinaja/stockledger/internal/observability"
	"kasirinaja/stockledger/internal/store"
	"kasirinaja/stockledger/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin role required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Deps carries the optional collaborators. Nil fields fall back to no-op
// implementations so the service runs against the memory store alone.
type Deps struct {
	Locker         cache.DocumentLocker
	Reports        cache.ReportCache
	Metrics        *observability.Metrics
	Logger         *logger.Logger
	TxMaxAttempts  int
	ReportCacheTTL time.Duration
}

type Service struct {
	repo     store.Repository
	ledger   *ledger.Engine
	catalog  *catalog.Resolver
	locker   cache.DocumentLocker
	reports  cache.ReportCache
	metrics  *observability.Metrics
	log      *logger.Logger
	validate *validator.Validate

	reportBuilds   singleflight.Group
	txMaxAttempts  int
	reportCacheTTL time.Duration
	now            func() time.Time
}

func New(repo store.Repository, deps Deps) *Service {
	if deps.Locker == nil {
		deps.Locker = cache.NoopLocker{}
	}
	if deps.Reports == nil {
		deps.Reports = cache.NoopReportCache{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.TxMaxAttempts < 1 {
		deps.TxMaxAttempts = 3
	}
	if deps.ReportCacheTTL <= 0 {
		deps.ReportCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:           repo,
		ledger:         ledger.NewEngine(repo, deps.Metrics),
		catalog:        catalog.NewResolver(repo),
		locker:         deps.Locker,
		reports:        deps.Reports,
		metrics:        deps.Metrics,
		log:            deps.Logger.Component("service"),
		validate:       newValidator(),
		txMaxAttempts:  deps.TxMaxAttempts,
		reportCacheTTL: deps.ReportCacheTTL,
		now: func() time.Time {
			// Postgres keeps microseconds; trimming here keeps cursors stable
			// across both stores.
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func (s *Service) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return store.Invalid("", err.Error())
	}
	fe := fieldErrs[0]
	field := strings.TrimPrefix(fe.Namespace(), strings.SplitN(fe.Namespace(), ".", 2)[0]+".")
	switch fe.Tag() {
	case "required":
		return store.Invalid(field, "is required")
	case "min":
		return store.Invalid(field, "must have at least "+fe.Param()+" entries")
	case "max":
		return store.Invalid(field, "must be at most "+fe.Param()+" characters")
	case "gt":
		return store.Invalid(field, "must be greater than "+fe.Param())
	case "gte":
		return store.Invalid(field, "must be at least "+fe.Param())
	case "lte":
		return store.Invalid(field, "must be at most "+fe.Param())
	default:
		return store.Invalid(field, "failed "+fe.Tag()+" check")
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" || actor.OrgID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) posting(actor domain.Actor, at time.Time) ledger.Posting {
	return ledger.Posting{OrgID: actor.OrgID, Actor: actor.Username, At: at}
}

type docRef struct {
	entity string
	id     string
	action string
}

// atomically runs fn in one store transaction, running it again when the
// store reports a retryable conflict. fn must be safe to re-run from scratch.
func (s *Service) atomically(ctx context.Context, ref docRef, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.txMaxAttempts; attempt++ {
		err = s.repo.WithinTx(ctx, fn)
		if !errors.Is(err, store.ErrRetryable) {
			return err
		}
		s.metrics.RecordTxRetry()
		s.log.Warn().Err(err).
			Str("entity", ref.entity).
			Str("id", ref.id).
			Int("attempt", attempt).
			Msg("retrying transaction after storage conflict")
	}
	return &store.StateConflictError{Entity: ref.entity, ID: ref.id, Action: ref.action}
}

// transition serializes work on one document: a Redis lock when configured,
// then the transaction with its row lock and conditional status update.
func (s *Service) transition(ctx context.Context, orgID string, ref docRef, fn func(ctx context.Context, tx store.Tx) error) error {
	release, err := s.locker.Lock(ctx, fmt.Sprintf("%s:%s:%s", orgID, ref.entity, ref.id))
	switch {
	case errors.Is(err, cache.ErrLockBusy):
		return store.Conflict(ref.entity, ref.id, "", ref.action)
	case err != nil:
		s.log.Warn().Err(err).Str("entity", ref.entity).Str("id", ref.id).Msg("document lock unavailable, relying on row locks")
	default:
		defer release()
	}
	return s.atomically(ctx, ref, fn)
}

// afterPosting drops cached report projections once stock has moved.
func (s *Service) afterPosting(ctx context.Context, orgID string) {
	if err := s.reports.InvalidateOrg(ctx, orgID); err != nil {
		s.log.Warn().Err(err).Str("organization_id", orgID).Msg("failed to invalidate report cache")
	}
}

// observe counts rejected operations by reason and hands the error back.
func (s *Service) observe(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		s.metrics.RecordRejection("insufficient_stock")
	case errors.Is(err, store.ErrStateConflict):
		s.metrics.RecordRejection("state_conflict")
	case errors.Is(err, store.ErrValidation):
		s.metrics.RecordRejection("validation")
	case errors.Is(err, store.ErrNotFound):
		s.metrics.RecordRejection("not_found")
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		OrgID:         actor.OrgID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// mergeItems folds repeated variants into one line, keeping first-seen order
// and the first non-empty reason.
func mergeItems(items []domain.DocumentItemRequest) ([]domain.DocumentItemRequest, error) {
	merged := make([]domain.DocumentItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		item.VariantID = strings.TrimSpace(item.VariantID)
		item.Reason = strings.TrimSpace(item.Reason)
		if i, ok := index[item.VariantID]; ok {
			total, err := addQuantity(merged[i].Quantity, item.Quantity)
			if err != nil {
				return nil, store.Invalid("quantity", fmt.Sprintf("variant %s: combined quantity exceeds %d", item.VariantID, domain.MaxQuantity))
			}
			merged[i].Quantity = total
			if merged[i].Reason == "" {
				merged[i].Reason = item.Reason
			}
			continue
		}
		index[item.VariantID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// addQuantity sums two non-negative quantities, failing past MaxQuantity.
func addQuantity(a int, b int) (int, error) {
	if a < 0 || b < 0 || a > domain.MaxQuantity-b {
		return 0, store.Invalid("quantity", fmt.Sprintf("must be between 0 and %d", domain.MaxQuantity))
	}
	return a + b, nil
}

func variantIDs(items []domain.DocumentItemRequest) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VariantID)
	}
	return ids
}

func clampLimit(limit int, fallback int, max int) int {
	if limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
