package journal

import (
	"context"
	"encoding/json"

	"DOTRamp/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Execer is the part of a pgx pool the journal writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal appends every order transition to order_events. It is an audit
// trail only: the order store never reads it back.
type Journal struct {
	db      Execer
	builder sq.StatementBuilderType
	log     *zap.Logger
	queue   chan models.Transition
	done    chan struct{}
}

func New(db Execer, log *zap.Logger, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 256
	}
	return &Journal{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log:     log,
		queue:   make(chan models.Transition, buffer),
		done:    make(chan struct{}),
	}
}

// Record queues t without blocking. When the queue is full the event is
// dropped and logged.
func (j *Journal) Record(t models.Transition) {
	select {
	case j.queue <- t:
	default:
		j.log.Warn("journal queue full, event dropped",
			zap.String("order_id", t.OrderID),
			zap.String("to", string(t.To)))
	}
}

// Run writes queued events until ctx is done, then flushes what is left.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case t := <-j.queue:
			j.write(ctx, t)
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (j *Journal) Wait() {
	<-j.done
}

func (j *Journal) drain() {
	ctx := context.Background()
	for {
		select {
		case t := <-j.queue:
			j.write(ctx, t)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, t models.Transition) {
	if err := j.Insert(ctx, t); err != nil {
		j.log.Error("journal insert failed",
			zap.String("order_id", t.OrderID),
			zap.String("to", string(t.To)),
			zap.Error(err))
	}
}

func (j *Journal) Insert(ctx context.Context, t models.Transition) error {
	details, err := json.Marshal(t.Details)
	if err != nil {
		return err
	}
	var from any
	if t.From != "" {
		from = string(t.From)
	}

	statement := j.builder.Insert("order_events").
		Columns("order_id", "direction", "from_status", "to_status", "details", "created_at").
		Values(t.OrderID, string(t.Direction), from, string(t.To), details, t.At)

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	_, err = j.db.Exec(ctx, sql, args...)
	return err
}
