package tap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/tap-freshdesk/filter"
	"github.com/s0up4200/tap-freshdesk/freshdesk"
)

const (
	// DefaultPageSize is the largest page the Freshdesk API returns
	DefaultPageSize = 100
	// DefaultConcurrency is the number of streams synced at once
	DefaultConcurrency = 2
)

// Client is the part of freshdesk.Client the runner needs
type Client interface {
	Get(ctx context.Context, resource string, params url.Values) (any, error)
	Close()
}

// ClientFactory opens a client. Every stream gets its own client so that no
// rate limiter or session is shared between goroutines.
type ClientFactory func(ctx context.Context) (Client, error)

// Runner syncs streams and emits their records and bookmarks
type Runner struct {
	newClient   ClientFactory
	store       StateStore
	emitter     *Emitter
	filters     map[string]*filter.Filter
	startDate   time.Time
	pageSize    int
	concurrency int
	logger      zerolog.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithStartDate sets the lower bound for streams without a bookmark
func WithStartDate(t time.Time) RunnerOption {
	return func(r *Runner) {
		r.startDate = t
	}
}

// WithPageSize sets per_page
func WithPageSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.pageSize = size
		}
	}
}

// WithConcurrency sets how many streams are synced at once
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithFilters sets per stream record filters
func WithFilters(filters map[string]*filter.Filter) RunnerOption {
	return func(r *Runner) {
		r.filters = filters
	}
}

// NewRunner creates a new stream runner
func NewRunner(factory ClientFactory, store StateStore, emitter *Emitter, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		newClient:   factory,
		store:       store,
		emitter:     emitter,
		filters:     make(map[string]*filter.Filter),
		pageSize:    DefaultPageSize,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run syncs the selected streams. Progress made by streams that finished is
// persisted even when another stream fails.
func (r *Runner) Run(ctx context.Context, sel Selection) error {
	state, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, stream := range sel.plan() {
		g.Go(func() error {
			if err := r.runStream(gctx, stream, sel, state); err != nil {
				return fmt.Errorf("stream %s: %w", stream.Name, err)
			}
			return r.store.Save(gctx, state)
		})
	}

	runErr := g.Wait()

	if err := r.emitter.WriteState(state); err != nil {
		return errors.Join(runErr, err)
	}
	// the group context is gone by now, save with the caller's
	if err := r.store.Save(ctx, state); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to save state: %w", err))
	}

	for stream, count := range r.emitter.Counts() {
		r.logger.Info().Str("stream", stream).Int("records", count).Msg("Stream synced")
	}

	return runErr
}

func (r *Runner) runStream(ctx context.Context, stream *Stream, sel Selection, state *State) error {
	client, err := r.newClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	r.logger.Info().Str("stream", stream.Name).Msg("Starting sync")

	var child *childSync
	if stream.Child != nil && sel[stream.Child.Name] {
		child = &childSync{stream: stream.Child, since: r.since(state, stream.Child.Name, stream.Child.ReplicationKey)}
		child.maxSeen = child.since
	}
	onRecord := func(record map[string]any) error {
		if child == nil {
			return nil
		}
		return r.syncChild(ctx, client, child, record["id"])
	}

	since := r.since(state, stream.Name, stream.ReplicationKey)
	maxSeen, err := r.syncPages(ctx, client, stream, nil, nil, since, sel[stream.Name], onRecord)

	if errors.Is(err, freshdesk.ErrAccessDenied) {
		r.logger.Warn().Err(err).Str("stream", stream.Name).Msg("Skipping stream, access denied")
		return nil
	}
	if err != nil {
		return err
	}

	if sel[stream.Name] {
		state.SetBookmark(stream.Name, stream.ReplicationKey, maxSeen)

		for _, v := range stream.Variants {
			if err := r.syncVariant(ctx, client, stream, v, state); err != nil {
				return err
			}
		}
	}
	if child != nil {
		state.SetBookmark(child.stream.Name, child.stream.ReplicationKey, child.maxSeen)
	}

	return r.emitter.WriteState(state)
}

// syncVariant runs one filtered pass of stream. Child streams are not walked
// for variant records.
func (r *Runner) syncVariant(ctx context.Context, client Client, stream *Stream, v Variant, state *State) error {
	since := r.since(state, v.Name, stream.ReplicationKey)
	maxSeen, err := r.syncPages(ctx, client, stream, nil, v.Params, since, true, nil)
	if errors.Is(err, freshdesk.ErrAccessDenied) {
		r.logger.Warn().Err(err).Str("stream", v.Name).Msg("Skipping variant, access denied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", v.Name, err)
	}

	state.SetBookmark(v.Name, stream.ReplicationKey, maxSeen)
	return nil
}

// childSync tracks a child stream across all parent records
type childSync struct {
	stream  *Stream
	since   time.Time
	maxSeen time.Time
}

func (r *Runner) syncChild(ctx context.Context, client Client, child *childSync, parentID any) error {
	if parentID == nil {
		return nil
	}

	maxSeen, err := r.syncPages(ctx, client, child.stream, parentID, nil, child.since, true, nil)
	if errors.Is(err, freshdesk.ErrAccessDenied) {
		// skip only this parent
		r.logger.Warn().Err(err).
			Str("stream", child.stream.Name).
			Str("parent_id", formatID(parentID)).
			Msg("Skipping parent, access denied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s of %s: %w", child.stream.Name, formatID(parentID), err)
	}
	if maxSeen.After(child.maxSeen) {
		child.maxSeen = maxSeen
	}
	return nil
}

// syncPages walks every page of a stream, emitting records at or after since.
// It returns the largest replication value seen.
func (r *Runner) syncPages(ctx context.Context, client Client, stream *Stream, parentID any, extra url.Values, since time.Time, emit bool, onRecord func(map[string]any) error) (time.Time, error) {
	params := url.Values{}
	for k, v := range stream.Params {
		params[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		params[k] = append([]string(nil), v...)
	}
	params.Set("per_page", strconv.Itoa(r.pageSize))
	if stream.FilterParam != "" && !since.IsZero() {
		params.Set(stream.FilterParam, since.UTC().Format(time.RFC3339))
	}

	maxSeen := since
	resource := stream.ResourcePath(parentID)

	for page := 1; ; page++ {
		params.Set("page", strconv.Itoa(page))

		payload, err := client.Get(ctx, resource, params)
		if err != nil {
			return maxSeen, err
		}

		rows, ok := payload.([]any)
		if !ok {
			return maxSeen, fmt.Errorf("unexpected %T payload from %s", payload, resource)
		}

		for _, row := range rows {
			record, ok := row.(map[string]any)
			if !ok {
				continue
			}

			replicated, _ := time.Parse(time.RFC3339, fmt.Sprint(record[stream.ReplicationKey]))
			if !replicated.IsZero() && replicated.Before(since) {
				continue
			}

			if onRecord != nil {
				if err := onRecord(record); err != nil {
					return maxSeen, err
				}
			}

			// filtered records still advance the bookmark
			if replicated.After(maxSeen) {
				maxSeen = replicated
			}

			if !emit || !r.matches(stream.Name, record) {
				continue
			}
			if err := r.emitter.WriteRecord(stream.Name, record); err != nil {
				return maxSeen, err
			}
		}

		r.logger.Debug().
			Str("stream", stream.Name).
			Int("page", page).
			Int("count", len(rows)).
			Msg("Fetched page")

		if len(rows) < r.pageSize {
			return maxSeen, nil
		}
	}
}

func (r *Runner) matches(stream string, record map[string]any) bool {
	f, ok := r.filters[stream]
	if !ok {
		return true
	}

	matched, err := f.Match(record)
	if err != nil {
		r.logger.Warn().Err(err).Str("stream", stream).Msg("Filter evaluation failed, skipping record")
		return false
	}
	return matched
}

// since returns the later of the named bookmark and the start date
func (r *Runner) since(state *State, name, key string) time.Time {
	bookmark, ok := state.Bookmark(name, key)
	if !ok || bookmark.Before(r.startDate) {
		return r.startDate
	}
	return bookmark
}
