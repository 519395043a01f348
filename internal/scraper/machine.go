package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HafssaBN/human-imitation-for-airbnb/internal/browser"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/governor"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/models"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/parser"
	"github.com/HafssaBN/human-imitation-for-airbnb/internal/ratelimit"
)

// Options tunes one machine. Zero values fall back to defaults that
// match the config package.
type Options struct {
	// StageTimeout bounds a single stage; zero means no bound.
	StageTimeout time.Duration
	// GalleryNoNewLimit consecutive scrolls yielding no new photos end
	// the gallery loop.
	GalleryNoNewLimit int
	// GalleryScrollCap bounds gallery scrolling even if the page keeps
	// producing new content.
	GalleryScrollCap int
	// ReviewPageCap bounds review pagination.
	ReviewPageCap int
	// Force re-runs stages whose checkpoint is already done.
	Force bool
	// Discover receives listing targets found while walking a host
	// profile. May be nil.
	Discover func(Target)
}

func DefaultMachineOptions() Options {
	return Options{
		StageTimeout:      10 * time.Minute,
		GalleryNoNewLimit: 3,
		GalleryScrollCap:  120,
		ReviewPageCap:     200,
	}
}

// Machine drives one target through its ordered stages. Each stage
// reads its checkpoint, skips if done, resumes from the stored cursor
// otherwise, and persists extracted records before advancing the
// cursor, so a crash can only cause re-work, never data loss.
type Machine struct {
	session Session
	store   Store
	gov     *governor.Governor
	limiter ratelimit.RateLimiter
	parser  *parser.AirbnbParser
	opts    Options
	logger  *slog.Logger
}

func NewMachine(session Session, store Store, gov *governor.Governor, limiter ratelimit.RateLimiter, opts Options) *Machine {
	def := DefaultMachineOptions()
	if opts.GalleryNoNewLimit <= 0 {
		opts.GalleryNoNewLimit = def.GalleryNoNewLimit
	}
	if opts.GalleryScrollCap <= 0 {
		opts.GalleryScrollCap = def.GalleryScrollCap
	}
	if opts.ReviewPageCap <= 0 {
		opts.ReviewPageCap = def.ReviewPageCap
	}

	return &Machine{
		session: session,
		store:   store,
		gov:     gov,
		limiter: limiter,
		parser:  parser.NewAirbnbParser(),
		opts:    opts,
		logger:  slog.Default().With("component", "scraper"),
	}
}

// Run executes every stage of the target in order. The first stage
// error stops the run; completed stages keep their done checkpoints and
// the failed stage keeps its last persisted cursor.
func (m *Machine) Run(ctx context.Context, t Target) error {
	for _, stage := range StagesFor(t.Kind) {
		cp, err := m.store.ReadCheckpoint(ctx, t.Key(), stage)
		if err != nil {
			return fmt.Errorf("read checkpoint %s/%s: %w", t.Key(), stage, err)
		}
		if cp != nil && !models.KnownCheckpointStatus(cp.Status) {
			return fmt.Errorf("%w: %s/%s has status %q", ErrCheckpointCorrupt, t.Key(), stage, cp.Status)
		}
		if cp != nil && cp.Status == models.CheckpointDone {
			if !m.opts.Force {
				m.logger.Debug("stage already done", "target", t.Key(), "stage", stage)
				continue
			}
			if err := m.store.ResetCheckpoint(ctx, t.Key(), stage); err != nil {
				return fmt.Errorf("reset checkpoint %s/%s: %w", t.Key(), stage, err)
			}
			cp = nil
		}

		cursor := ""
		if cp != nil {
			cursor = cp.Cursor
		}
		if err := m.setCheckpoint(ctx, t, stage, models.CheckpointInProgress, cursor); err != nil {
			return fmt.Errorf("checkpoint %s/%s: %w", t.Key(), stage, err)
		}

		m.logger.Info("stage start", "target", t.Key(), "stage", stage, "cursor", cursor)

		stageCtx := ctx
		cancel := context.CancelFunc(func() {})
		if m.opts.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, m.opts.StageTimeout)
		}
		final, err := m.runStage(stageCtx, t, stage, cursor)
		cancel()
		if err != nil {
			m.markFailed(ctx, t, stage)
			return fmt.Errorf("stage %s: %w", stage, err)
		}

		if err := m.setCheckpoint(ctx, t, stage, models.CheckpointDone, final); err != nil {
			return fmt.Errorf("checkpoint %s/%s: %w", t.Key(), stage, err)
		}
		m.logger.Info("stage done", "target", t.Key(), "stage", stage)
	}
	return nil
}

func (m *Machine) runStage(ctx context.Context, t Target, stage, cursor string) (string, error) {
	switch stage {
	case StageProfile:
		return m.runProfile(ctx, t)
	case StageListings:
		return m.runListings(ctx, t, cursor)
	case StageListingDetail:
		return m.runListingDetail(ctx, t)
	case StageReviews:
		return m.runReviews(ctx, t, cursor)
	case StagePhotos:
		return m.runPhotos(ctx, t, cursor)
	case StageGuidebooks:
		return m.runGuidebooks(ctx, t, cursor)
	case StageTravelHistory:
		return m.runTravelHistory(ctx, t)
	}
	return "", fmt.Errorf("unknown stage %q", stage)
}

func (m *Machine) setCheckpoint(ctx context.Context, t Target, stage string, status models.CheckpointStatus, cursor string) error {
	return m.store.WriteCheckpoint(ctx, &models.Checkpoint{
		TargetKey: t.Key(),
		Stage:     stage,
		Status:    status,
		Cursor:    cursor,
		UpdatedAt: time.Now(),
	})
}

// markFailed records the failure without touching the cursor, so the
// next run resumes from the last persisted position.
func (m *Machine) markFailed(ctx context.Context, t Target, stage string) {
	cursor := ""
	if cp, err := m.store.ReadCheckpoint(ctx, t.Key(), stage); err == nil && cp != nil {
		cursor = cp.Cursor
	}
	if err := m.setCheckpoint(ctx, t, stage, models.CheckpointFailed, cursor); err != nil {
		m.logger.Error("write failed checkpoint", "target", t.Key(), "stage", stage, "error", err)
	}
}

// navigate performs one governed page load: admission check, pacing,
// transient retry, then block classification and reporting. Soft-block
// pages are retried after backoff until the governor blocks the target.
func (m *Machine) navigate(ctx context.Context, t Target, url string) (*browser.PageState, error) {
	softSeen := false
	for {
		if err := m.gov.Allow(t.Key()); err != nil {
			if softSeen && !errors.Is(err, governor.ErrTargetHardBlocked) {
				return nil, fmt.Errorf("%w: %w", ErrSoftBlock, err)
			}
			return nil, err
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var st *browser.PageState
		err := m.gov.RetryTransient(ctx, t.Key(), func() error {
			s, err := m.session.Navigate(ctx, url)
			if err != nil {
				return err
			}
			st = s
			return nil
		})
		if err != nil {
			return nil, err
		}

		m.gov.Report(t.Key(), st.Class)
		switch st.Class {
		case browser.PageHardBlock:
			return nil, fmt.Errorf("%w: %s", ErrHardBlock, url)
		case browser.PageSoftBlock:
			softSeen = true
			m.logger.Warn("soft block page", "target", t.Key(), "url", url)
			if err := m.gov.Wait(ctx, t.Key()); err != nil {
				return nil, err
			}
			continue
		}
		return st, nil
	}
}

// scroll performs one governed in-page scroll. A block page appearing
// mid-scroll fails the stage; the checkpoint keeps the cursor.
func (m *Machine) scroll(ctx context.Context, t Target) (*browser.PageState, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	st, err := m.session.Scroll(ctx)
	if err != nil {
		return nil, err
	}
	m.gov.Report(t.Key(), st.Class)
	switch st.Class {
	case browser.PageHardBlock:
		return nil, fmt.Errorf("%w: during scroll of %s", ErrHardBlock, t.Key())
	case browser.PageSoftBlock:
		return nil, fmt.Errorf("%w: during scroll of %s", ErrSoftBlock, t.Key())
	}
	return st, nil
}
