package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
	"github.com/mmdatafocus/stockledger/store"
	"github.com/mmdatafocus/stockledger/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const moduleName = "workflow"

// ProductCatalog supplies the tracking and costing flags of a product.
type ProductCatalog interface {
	ProductProfile(ctx context.Context, tenantId string, productId int) (*models.ProductProfile, error)
}

// EventPublisher receives committed movements. Failures never undo a commit.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.MovementEvent) error
}

// Engine applies stock movements. Every public operation is one transaction: validate,
// lock balance rows, append ledger entries, mutate balances, append valuation, commit.
type Engine struct {
	store     store.Store
	catalog   ProductCatalog
	logger    *logrus.Logger
	publisher EventPublisher
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithCatalog(catalog ProductCatalog) Option {
	return func(e *Engine) { e.catalog = catalog }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithPublisher(publisher EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine uses s as the product catalog unless WithCatalog says otherwise.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		catalog: s,
		logger:  config.GetLogger(),
		now:     time.Now,
		tracer:  otel.Tracer("github.com/mmdatafocus/stockledger/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() store.Store {
	return e.store
}

func (e *Engine) profile(ctx context.Context, tenantId string, productId int) (*models.ProductProfile, error) {
	p, err := e.catalog.ProductProfile(ctx, tenantId, productId)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return models.DefaultProductProfile(tenantId, productId), nil
	}
	if p.ValuationMethod == "" {
		p.ValuationMethod = models.ValuationMethodWeightedAverage
	}
	return p, nil
}

func keyFields(key models.BalanceKey) logrus.Fields {
	return logrus.Fields{
		"tenant_id":    key.TenantId,
		"warehouse_id": key.WarehouseId,
		"product_id":   key.ProductId,
		"variant_id":   key.VariantId,
	}
}

// execute runs fn in one store transaction, traces it, logs the outcome and publishes the
// ledger entries fn returns once the transaction has committed.
func (e *Engine) execute(ctx context.Context, op string, fields logrus.Fields, fn func(ctx context.Context, tx store.Tx) ([]*models.StockLedgerEntry, error)) error {
	ctx, span := e.tracer.Start(ctx, "stock."+op)
	defer span.End()
	for k, v := range fields {
		if s, ok := v.(string); ok {
			span.SetAttributes(attribute.String(k, s))
		} else if n, ok := v.(int); ok {
			span.SetAttributes(attribute.Int(k, n))
		}
	}
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	fields["correlation_id"] = correlationId
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		fields["user_id"] = userId
	}

	var entries []*models.StockLedgerEntry
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		entries, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if models.IsBusinessRuleViolation(err) || models.IsNotFound(err) {
			e.logger.WithFields(fields).WithError(err).Info("stock." + op + ".rejected")
		} else {
			config.LogError(e.logger, moduleName, op, "transaction", fields, err)
		}
		return err
	}
	e.logger.WithFields(fields).WithField("entries", len(entries)).Info("stock." + op + ".done")
	e.publish(ctx, op, correlationId, entries)
	return nil
}

func (e *Engine) publish(ctx context.Context, op string, correlationId string, entries []*models.StockLedgerEntry) {
	if e.publisher == nil || len(entries) == 0 {
		return
	}
	events := make([]models.MovementEvent, 0, len(entries))
	for _, entry := range entries {
		events = append(events, models.NewMovementEvent(entry, correlationId))
	}
	if err := e.publisher.Publish(ctx, events); err != nil {
		config.LogError(e.logger, moduleName, op, "publish movement events", logrus.Fields{"correlation_id": correlationId}, err)
	}
}

func requireTenant(tenantId string) error {
	if tenantId == "" {
		return models.NewValidationError("TenantId", "required")
	}
	return nil
}
