package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/artwork"
	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Services groups the MES services.
type Services struct {
	Design     *DesignService
	Time       *TimeService
	Production *ProductionService
	Batch      *BatchService
	Queue      *QueueService
}

// Options wires the collaborators of the services. Zero values fall back to no-op collaborators.
type Options struct {
	Logger   *zap.Logger
	Notifier notify.Notifier
	Poster   ledger.Poster
	Artwork  artwork.Store
	Accounts ledger.Accounts
	TenantID string
	Spacing  float64 // gap between nested pieces
	Locale   string
	Clock    func() time.Time
}

func NewServices(repos *repository.Repositories, opts Options) *Services {
	c := newCore(repos, opts)
	return &Services{
		Design:     &DesignService{core: c},
		Time:       &TimeService{core: c},
		Production: &ProductionService{core: c},
		Batch:      &BatchService{core: c},
		Queue:      &QueueService{core: c},
	}
}

// core holds what every service shares.
type core struct {
	repos    *repository.Repositories
	logger   *zap.Logger
	notifier notify.Notifier
	poster   ledger.Poster
	store    artwork.Store
	accounts ledger.Accounts
	tenant   string
	spacing  float64
	printer  *message.Printer
	now      func() time.Time
}

func newCore(repos *repository.Repositories, opts Options) *core {
	c := &core{
		repos:    repos,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		poster:   opts.Poster,
		store:    opts.Artwork,
		accounts: opts.Accounts,
		tenant:   opts.TenantID,
		spacing:  opts.Spacing,
		now:      opts.Clock,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.poster == nil {
		c.poster = ledger.NewLogPoster(c.logger)
	}
	if c.accounts.Receivable == "" {
		c.accounts = ledger.DefaultAccounts
	}
	if c.tenant == "" {
		c.tenant = entity.DefaultTenant
	}
	if c.now == nil {
		c.now = time.Now
	}
	locale := opts.Locale
	if locale == "" {
		locale = "en"
	}
	c.printer = message.NewPrinter(language.Make(locale))
	return c
}

// effects are delivered only after the transaction that produced them commits.
type effects struct {
	notes   []note
	entries []ledger.Entry
}

type note struct {
	channel string
	msg     notify.Message
}

func (e *effects) notify(channel, event, text string, data map[string]interface{}) {
	e.notes = append(e.notes, note{channel: channel, msg: notify.Message{Event: event, Text: text, Data: data}})
}

func (e *effects) post(entry ledger.Entry) {
	e.entries = append(e.entries, entry)
}

// inTx runs fn inside one database transaction with repositories bound to it.
func (c *core) inTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	return c.repos.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(c.repos.WithTx(tx))
	})
}

// dispatch delivers notifications and journal entries. Failures are logged and never
// returned: the workflow has already committed.
func (c *core) dispatch(ctx context.Context, eff *effects) {
	for _, n := range eff.notes {
		if err := c.notifier.Notify(ctx, n.channel, n.msg); err != nil {
			c.logger.Warn("notify failed",
				zap.String("channel", n.channel),
				zap.String("event", n.msg.Event),
				zap.Error(err))
		}
	}
	for _, entry := range eff.entries {
		if err := c.poster.Post(ctx, entry); err != nil {
			c.logger.Error("post journal entry failed",
				zap.String("reference", entry.Reference),
				zap.String("description", entry.Description),
				zap.Error(err))
		}
	}
}

func (c *core) audit(ctx context.Context, r *repository.Repositories, entityType, entityID, from, to, operator string, meta map[string]interface{}) error {
	change := &entity.StatusChange{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
		OperatorID: operator,
		CreatedAt:  c.now(),
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
		change.Meta = datatypes.JSON(raw)
	}
	if err := r.Audit.Record(ctx, change); err != nil {
		return fmt.Errorf("record status change: %w", err)
	}
	return nil
}

// billingRate reads the tenant rate once per operation. A tenant without a rate bills nothing.
func (c *core) billingRate(ctx context.Context, r *repository.Repositories) (*entity.BillingRate, error) {
	rate, err := r.Settings.GetBillingRate(ctx, c.tenant)
	if errors.Is(err, repository.ErrNotFound) {
		return &entity.BillingRate{TenantID: c.tenant}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load billing rate: %w", err)
	}
	return rate, nil
}

// newCode builds a unique human readable code such as TSK-20260302-1A2B3C4D.
func (c *core) newCode(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, c.now().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func notFound(what, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
