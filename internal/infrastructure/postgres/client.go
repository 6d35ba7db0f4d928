package postgres

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
)

// Cache stores query results. Keys handed to the cache are relative; the
// implementation owns its namespace.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Client runs queries for every model on a pgx connection pool or on a
// single transaction.
type Client struct {
	db       DBTX
	beginner TxBeginner
	logger   *logrus.Logger
	cache    Cache
	pub      events.Publisher
	omit     query.GlobalOmit
	mws      []Middleware
	now      func() time.Time
	txOpts   repository.TxOptions

	tx *txState

	user            *Delegate[entity.User]
	cosmetic        *Delegate[entity.Cosmetic]
	link            *Delegate[entity.Link]
	label           *Delegate[entity.Label]
	socialIcon      *Delegate[entity.SocialIcon]
	backgroundColor *Delegate[entity.BackgroundColor]
	neonColor       *Delegate[entity.NeonColor]
	statusbar       *Delegate[entity.Statusbar]
	views           map[string]repository.ModelDelegate
}

type Option func(*Client)

func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Client) { c.pub = p }
}

// WithOmit leaves fields out of every result of a model unless selected.
func WithOmit(model string, fields ...string) Option {
	return func(c *Client) {
		if c.omit == nil {
			c.omit = query.GlobalOmit{}
		}
		c.omit[model] = append(c.omit[model], fields...)
	}
}

// WithMiddleware wraps every operation, outermost first.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Client) { c.mws = append(c.mws, mws...) }
}

// WithClock overrides the time source used for updatedAt and events.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTxOptions changes the defaults every Transaction starts from.
func WithTxOptions(opts ...repository.TxOption) Option {
	return func(c *Client) {
		for _, opt := range opts {
			opt(&c.txOpts)
		}
	}
}

// NewClient builds a client on db. Transactions are available when db
// also implements TxBeginner.
func NewClient(db DBTX, opts ...Option) *Client {
	c := &Client{db: db, now: time.Now, txOpts: repository.DefaultTxOptions()}
	if b, ok := db.(TxBeginner); ok {
		c.beginner = b
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.pub == nil {
		c.pub = events.NopPublisher{}
	}
	c.initDelegates()
	return c
}

// Use appends middlewares. It must not be called concurrently with queries.
func (c *Client) Use(mws ...Middleware) {
	c.mws = append(c.mws, mws...)
}

func (c *Client) initDelegates() {
	c.user = newDelegate[entity.User](c, schema.User)
	c.cosmetic = newDelegate[entity.Cosmetic](c, schema.Cosmetic)
	c.link = newDelegate[entity.Link](c, schema.Link)
	c.label = newDelegate[entity.Label](c, schema.Label)
	c.socialIcon = newDelegate[entity.SocialIcon](c, schema.SocialIcon)
	c.backgroundColor = newDelegate[entity.BackgroundColor](c, schema.BackgroundColor)
	c.neonColor = newDelegate[entity.NeonColor](c, schema.NeonColor)
	c.statusbar = newDelegate[entity.Statusbar](c, schema.Statusbar)
	c.views = map[string]repository.ModelDelegate{
		schema.User.Name:            &modelView[entity.User]{c.user},
		schema.Cosmetic.Name:        &modelView[entity.Cosmetic]{c.cosmetic},
		schema.Link.Name:            &modelView[entity.Link]{c.link},
		schema.Label.Name:           &modelView[entity.Label]{c.label},
		schema.SocialIcon.Name:      &modelView[entity.SocialIcon]{c.socialIcon},
		schema.BackgroundColor.Name: &modelView[entity.BackgroundColor]{c.backgroundColor},
		schema.NeonColor.Name:       &modelView[entity.NeonColor]{c.neonColor},
		schema.Statusbar.Name:       &modelView[entity.Statusbar]{c.statusbar},
	}
}

func (c *Client) User() repository.UserDelegate                       { return c.user }
func (c *Client) Cosmetic() repository.CosmeticDelegate               { return c.cosmetic }
func (c *Client) Link() repository.LinkDelegate                       { return c.link }
func (c *Client) Label() repository.LabelDelegate                     { return c.label }
func (c *Client) SocialIcon() repository.SocialIconDelegate           { return c.socialIcon }
func (c *Client) BackgroundColor() repository.BackgroundColorDelegate { return c.backgroundColor }
func (c *Client) NeonColor() repository.NeonColorDelegate             { return c.neonColor }
func (c *Client) Statusbar() repository.StatusbarDelegate             { return c.statusbar }

// Model returns the untyped view of a model by name.
func (c *Client) Model(name string) (repository.ModelDelegate, bool) {
	v, ok := c.views[name]
	return v, ok
}

// parallel runs tasks concurrently on the pool and sequentially on a
// transaction, whose connection cannot serve concurrent queries.
func (c *Client) parallel(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	if c.tx != nil || len(tasks) < 2 {
		for _, t := range tasks {
			if err := t(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error { return t(gctx) })
	}
	return g.Wait()
}

// emit publishes mutation events and invalidates cached reads. Inside a
// transaction both wait for the commit.
func (c *Client) emit(ctx context.Context, evs ...events.MutationEvent) {
	if c.tx != nil {
		c.tx.pending = append(c.tx.pending, evs...)
		return
	}
	c.flush(ctx, evs)
}

func (c *Client) flush(ctx context.Context, evs []events.MutationEvent) {
	if len(evs) == 0 {
		return
	}
	c.invalidate(ctx, evs)
	for _, ev := range evs {
		if err := c.pub.Publish(ctx, ev); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"model":  ev.Model,
				"action": ev.Action,
			}).Warn("publish mutation event failed")
		}
	}
}

// invalidate drops cached reads of the mutated models and of every model
// that can include them.
func (c *Client) invalidate(ctx context.Context, evs []events.MutationEvent) {
	if c.cache == nil {
		return
	}
	models := map[string]bool{}
	for _, ev := range evs {
		models[ev.Model] = true
		if m, ok := schema.Lookup(ev.Model); ok {
			for _, r := range m.Relations {
				models[r.Target] = true
			}
		}
	}
	for name := range models {
		if err := c.cache.DeletePrefix(ctx, name+":"); err != nil {
			c.logger.WithError(err).WithField("model", name).Warn("cache invalidation failed")
		}
	}
}
