package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"coldreach/inbox"
	"coldreach/models"
	"coldreach/utils"
)

const healthCheckInterval = 24 * time.Hour

// Orchestrator drives the whole engine: inbox polling, scheduling, and
// dispatch, on a fixed tick.
type Orchestrator struct {
	db         *gorm.DB
	scheduler  *Scheduler
	dispatcher *Dispatcher
	poller     *inbox.Poller
	logger     *logrus.Logger

	tick        time.Duration
	maxParallel int
}

func NewOrchestrator(db *gorm.DB, scheduler *Scheduler, dispatcher *Dispatcher, poller *inbox.Poller, logger *logrus.Logger, tick time.Duration, maxParallel int) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Orchestrator{
		db:          db,
		scheduler:   scheduler,
		dispatcher:  dispatcher,
		poller:      poller,
		logger:      logger,
		tick:        tick,
		maxParallel: maxParallel,
	}
}

// Start runs the tick loop until the context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.WithField("interval", o.tick.String()).Info("campaign orchestrator started")

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("campaign orchestrator stopped")
			return
		case now := <-ticker.C:
			o.runTick(ctx, now)
		}
	}
}

func (o *Orchestrator) runTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("orchestrator tick panic: %v", r)
			o.logger.WithField("panic", r).Error("tick recovered")
			sentry.CaptureException(err)
		}
	}()

	if err := ResetDailyCounters(ctx, o.db, now); err != nil {
		o.failTick(err, "daily counter reset failed")
		return
	}

	o.runHealthChecks(ctx, now)

	// Replies first so a contact who answered overnight is excluded from
	// this very tick's sends.
	o.poller.PollAll(ctx, now)

	work, err := o.scheduler.DueWork(ctx, now)
	if err != nil {
		o.failTick(err, "scheduling scan failed")
		return
	}
	if len(work) == 0 {
		return
	}

	queues, accounts := o.assign(work, now)
	o.drain(ctx, queues, accounts)
}

// failTick logs and reports a fatal store error; the tick is abandoned
// and retried at the next interval.
func (o *Orchestrator) failTick(err error, msg string) {
	o.logger.WithError(err).Error(msg)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "orchestrator")
		sentry.CaptureException(err)
	})
}

// assign picks a sending account for each due send, rotating through
// each campaign's pool least-recently-used first while respecting the
// remaining daily quota.
func (o *Orchestrator) assign(work []Work, now time.Time) (map[uint][]Work, map[uint]*models.EmailAccount) {
	canonical := make(map[uint]*models.EmailAccount)
	queues := make(map[uint][]Work)

	for _, w := range work {
		pool := make([]*models.EmailAccount, 0, len(w.Campaign.Accounts))
		for i := range w.Campaign.Accounts {
			a := &w.Campaign.Accounts[i]
			if existing, ok := canonical[a.ID]; ok {
				pool = append(pool, existing)
			} else {
				canonical[a.ID] = a
				pool = append(pool, a)
			}
		}

		account := PickAccount(pool)
		if account == nil {
			o.logger.WithField("campaign_id", w.Campaign.ID).Debug("account pool exhausted, send deferred")
			continue
		}

		// The account's first send this tick must still honor the delay
		// since its last send on a previous tick. Later queue items are
		// spaced by drain.
		if len(queues[account.ID]) == 0 && !cooledDown(account, w.Campaign, now) {
			o.logger.WithFields(logrus.Fields{
				"campaign_id": w.Campaign.ID,
				"account_id":  account.ID,
			}).Debug("inter-send delay pending, send deferred")
			continue
		}

		// In-memory bookkeeping only; the authoritative claim happens in
		// the dispatcher.
		account.SentToday++
		used := now
		account.LastUsed = &used

		queues[account.ID] = append(queues[account.ID], w)
	}
	return queues, canonical
}

// cooledDown reports whether the campaign's inter-send delay has elapsed
// since the account's last send.
func cooledDown(account *models.EmailAccount, campaign *models.Campaign, now time.Time) bool {
	if account.LastUsed == nil {
		return true
	}
	return now.Sub(*account.LastUsed) >= utils.SendDelay(campaign.EmailDelaySeconds)
}

// drain works each account's queue serially with the campaign's
// inter-send delay, running distinct accounts in parallel under the
// configured bound.
func (o *Orchestrator) drain(ctx context.Context, queues map[uint][]Work, accounts map[uint]*models.EmailAccount) {
	sem := make(chan struct{}, o.maxParallel)
	var wg sync.WaitGroup

	for accountID, queue := range queues {
		account := accounts[accountID]
		wg.Add(1)
		go func(account *models.EmailAccount, queue []Work) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			for i, w := range queue {
				if i > 0 {
					select {
					case <-time.After(utils.SendDelay(w.Campaign.EmailDelaySeconds)):
					case <-ctx.Done():
						return
					}
				}

				err := o.dispatcher.Send(ctx, w, account)
				switch {
				case err == nil:
				case errors.Is(err, ErrQuotaExhausted):
					o.logger.WithField("account_id", account.ID).Info("daily limit reached, queue deferred")
					return
				case errors.Is(err, context.Canceled):
					return
				default:
					// Transport failures are already recorded; keep going.
					o.logger.WithError(err).WithField("account_id", account.ID).Warn("send failed")
				}
			}
		}(account, queue)
	}
	wg.Wait()
}

// runHealthChecks verifies each sending domain's DNS posture once a day
// and surfaces problems in the activity feed.
func (o *Orchestrator) runHealthChecks(ctx context.Context, now time.Time) {
	var accounts []models.EmailAccount
	if err := o.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("last_health_check_at IS NULL OR last_health_check_at < ?", now.Add(-healthCheckInterval)).
		Find(&accounts).Error; err != nil {
		o.logger.WithError(err).Error("listing accounts for health checks")
		return
	}

	for i := range accounts {
		account := &accounts[i]
		domain := account.Domain()
		if domain == "" {
			continue
		}

		health := utils.CheckDomainHealth(ctx, domain)
		if !health.Healthy() {
			for _, issue := range health.Issues {
				models.LogActivity(o.db, models.ActivityLog{
					UserID:    account.UserID,
					Source:    "send",
					Level:     "warning",
					Message:   fmt.Sprintf("Domain %s: %s", domain, issue),
					AccountID: &account.ID,
				})
			}
			o.logger.WithFields(logrus.Fields{
				"domain": domain,
				"issues": health.Issues,
			}).Warn("sending domain health check found problems")
		}

		if err := o.db.WithContext(ctx).Model(account).
			Update("last_health_check_at", now).Error; err != nil {
			o.logger.WithError(err).Warn("recording health check time failed")
		}
	}
}
