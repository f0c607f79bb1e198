// Package memory provides an in-process store.Store for development and tests.
package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/crawlsearch/internal/store"
)

// Store keeps every entity in maps guarded by a single mutex. Transactions
// hold the mutex for their whole duration and restore a snapshot on error.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// InTx runs fn with exclusive access; a non-nil error discards fn's writes.
func (s *Store) InTx(ctx context.Context, fn func(store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(s.st); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}

// History returns a copy of the recorded searches.
func (s *Store) History() []store.SearchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.SearchRecord(nil), s.st.history...)
}

// Links returns a copy of the recorded links, ordered by target URL.
func (s *Store) Links() []store.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Link, 0, len(s.st.links))
	for _, l := range s.st.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ToURL == out[j].ToURL {
			return out[i].FromPageID < out[j].FromPageID
		}
		return out[i].ToURL < out[j].ToURL
	})
	return out
}

// FrontierEntries returns a copy of the queue ordered by id.
func (s *Store) FrontierEntries() []store.FrontierEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.FrontierEntry, 0, len(s.st.frontier))
	for _, e := range s.st.frontier {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TokenWeights returns a copy of a page's index entries.
func (s *Store) TokenWeights(pageID int64) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.st.tokens[pageID]))
	for k, v := range s.st.tokens[pageID] {
		out[k] = v
	}
	return out
}

func (s *Store) EnsureDomain(ctx context.Context, hostname string, tier int) (store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.EnsureDomain(ctx, hostname, tier)
}

func (s *Store) GetDomain(ctx context.Context, id int64) (store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetDomain(ctx, id)
}

func (s *Store) GetDomainByHost(ctx context.Context, hostname string) (store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetDomainByHost(ctx, hostname)
}

func (s *Store) ListDomains(ctx context.Context) ([]store.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListDomains(ctx)
}

func (s *Store) UpdateDomain(ctx context.Context, hostname string, enabled bool, tier int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateDomain(ctx, hostname, enabled, tier)
}

func (s *Store) SetRobotsPolicy(ctx context.Context, domainID int64, policy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetRobotsPolicy(ctx, domainID, policy)
}

func (s *Store) UpsertFrontierEntry(ctx context.Context, url string, domainID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertFrontierEntry(ctx, url, domainID, at)
}

func (s *Store) ClaimFrontierEntry(ctx context.Context, sampleSize int, at time.Time) (store.FrontierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ClaimFrontierEntry(ctx, sampleSize, at)
}

func (s *Store) GetFrontierEntry(ctx context.Context, url string) (store.FrontierEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetFrontierEntry(ctx, url)
}

func (s *Store) DeleteFrontierEntry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteFrontierEntry(ctx, id)
}

func (s *Store) UnlockFrontierEntry(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UnlockFrontierEntry(ctx, id)
}

func (s *Store) ReleaseStaleLocks(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReleaseStaleLocks(ctx, before)
}

func (s *Store) UpsertPage(ctx context.Context, page store.Page) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertPage(ctx, page)
}

func (s *Store) GetPage(ctx context.Context, id int64) (store.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetPage(ctx, id)
}

func (s *Store) PageIDByURL(ctx context.Context, url string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PageIDByURL(ctx, url)
}

func (s *Store) ListPages(ctx context.Context, afterID int64, limit int) ([]store.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListPages(ctx, afterID, limit)
}

func (s *Store) UpsertLink(ctx context.Context, toURL string, fromPageID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertLink(ctx, toURL, fromPageID, at)
}

func (s *Store) ReplaceTokenWeights(ctx context.Context, pageID int64, weights map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReplaceTokenWeights(ctx, pageID, weights)
}

func (s *Store) TokenTotal(ctx context.Context, token string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.TokenTotal(ctx, token)
}

func (s *Store) TokenPostings(ctx context.Context, token string) ([]store.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.TokenPostings(ctx, token)
}

func (s *Store) RecordSearch(ctx context.Context, record store.SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RecordSearch(ctx, record)
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Stats(ctx)
}

type linkKey struct {
	to   string
	from int64
}

// state is the unguarded data set. Its methods implement store.Repository and
// assume the caller holds Store.mu.
type state struct {
	nextDomain   int64
	nextPage     int64
	nextFrontier int64

	domains       map[int64]store.Domain
	domainsByHost map[string]int64
	pages         map[int64]store.Page
	pagesByURL    map[string]int64
	frontier      map[int64]store.FrontierEntry
	frontierByURL map[string]int64
	links         map[linkKey]store.Link
	tokens        map[int64]map[string]float64
	history       []store.SearchRecord
}

func newState() *state {
	return &state{
		domains:       make(map[int64]store.Domain),
		domainsByHost: make(map[string]int64),
		pages:         make(map[int64]store.Page),
		pagesByURL:    make(map[string]int64),
		frontier:      make(map[int64]store.FrontierEntry),
		frontierByURL: make(map[string]int64),
		links:         make(map[linkKey]store.Link),
		tokens:        make(map[int64]map[string]float64),
	}
}

func (st *state) clone() *state {
	cp := newState()
	cp.nextDomain, cp.nextPage, cp.nextFrontier = st.nextDomain, st.nextPage, st.nextFrontier
	for k, v := range st.domains {
		cp.domains[k] = copyDomain(v)
	}
	for k, v := range st.domainsByHost {
		cp.domainsByHost[k] = v
	}
	for k, v := range st.pages {
		cp.pages[k] = v
	}
	for k, v := range st.pagesByURL {
		cp.pagesByURL[k] = v
	}
	for k, v := range st.frontier {
		cp.frontier[k] = copyEntry(v)
	}
	for k, v := range st.frontierByURL {
		cp.frontierByURL[k] = v
	}
	for k, v := range st.links {
		cp.links[k] = v
	}
	for page, weights := range st.tokens {
		m := make(map[string]float64, len(weights))
		for k, v := range weights {
			m[k] = v
		}
		cp.tokens[page] = m
	}
	cp.history = append([]store.SearchRecord(nil), st.history...)
	return cp
}

func (st *state) EnsureDomain(_ context.Context, hostname string, tier int) (store.Domain, error) {
	if id, ok := st.domainsByHost[hostname]; ok {
		return copyDomain(st.domains[id]), nil
	}
	st.nextDomain++
	d := store.Domain{ID: st.nextDomain, Hostname: hostname, Tier: tier}
	st.domains[d.ID] = d
	st.domainsByHost[hostname] = d.ID
	return d, nil
}

func (st *state) GetDomain(_ context.Context, id int64) (store.Domain, error) {
	d, ok := st.domains[id]
	if !ok {
		return store.Domain{}, store.ErrNotFound
	}
	return copyDomain(d), nil
}

func (st *state) GetDomainByHost(ctx context.Context, hostname string) (store.Domain, error) {
	id, ok := st.domainsByHost[hostname]
	if !ok {
		return store.Domain{}, store.ErrNotFound
	}
	return st.GetDomain(ctx, id)
}

func (st *state) ListDomains(context.Context) ([]store.Domain, error) {
	out := make([]store.Domain, 0, len(st.domains))
	for _, d := range st.domains {
		out = append(out, copyDomain(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier == out[j].Tier {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}

func (st *state) UpdateDomain(_ context.Context, hostname string, enabled bool, tier int) error {
	id, ok := st.domainsByHost[hostname]
	if !ok {
		return store.ErrNotFound
	}
	d := st.domains[id]
	d.Enabled = enabled
	d.Tier = tier
	st.domains[id] = d
	return nil
}

func (st *state) SetRobotsPolicy(_ context.Context, domainID int64, policy string) error {
	d, ok := st.domains[domainID]
	if !ok {
		return store.ErrNotFound
	}
	p := policy
	d.RobotsPolicy = &p
	st.domains[domainID] = d
	return nil
}

func (st *state) UpsertFrontierEntry(_ context.Context, url string, domainID int64, at time.Time) error {
	if _, ok := st.domains[domainID]; !ok {
		return store.ErrNotFound
	}
	if id, ok := st.frontierByURL[url]; ok {
		if e := st.frontier[id]; !e.Locked() {
			e.AddedAt = at
			st.frontier[id] = e
		}
		return nil
	}
	st.nextFrontier++
	e := store.FrontierEntry{ID: st.nextFrontier, URL: url, DomainID: domainID, AddedAt: at}
	st.frontier[e.ID] = e
	st.frontierByURL[url] = e.ID
	return nil
}

func (st *state) ClaimFrontierEntry(_ context.Context, sampleSize int, at time.Time) (store.FrontierEntry, error) {
	eligible := make([]store.FrontierEntry, 0)
	for _, e := range st.frontier {
		if e.LockedAt != nil || !st.domains[e.DomainID].Enabled {
			continue
		}
		eligible = append(eligible, e)
	}
	if len(eligible) == 0 {
		return store.FrontierEntry{}, store.ErrNotFound
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].AddedAt.Equal(eligible[j].AddedAt) {
			return eligible[i].ID > eligible[j].ID
		}
		return eligible[i].AddedAt.After(eligible[j].AddedAt)
	})
	if sampleSize > 0 && len(eligible) > sampleSize {
		eligible = eligible[:sampleSize]
	}
	picked := eligible[rand.IntN(len(eligible))]
	lockedAt := at
	picked.LockedAt = &lockedAt
	st.frontier[picked.ID] = picked
	return copyEntry(picked), nil
}

func (st *state) GetFrontierEntry(_ context.Context, url string) (store.FrontierEntry, error) {
	id, ok := st.frontierByURL[url]
	if !ok {
		return store.FrontierEntry{}, store.ErrNotFound
	}
	return copyEntry(st.frontier[id]), nil
}

func (st *state) DeleteFrontierEntry(_ context.Context, id int64) error {
	e, ok := st.frontier[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(st.frontier, id)
	delete(st.frontierByURL, e.URL)
	return nil
}

func (st *state) UnlockFrontierEntry(_ context.Context, id int64) error {
	e, ok := st.frontier[id]
	if !ok {
		return store.ErrNotFound
	}
	e.LockedAt = nil
	st.frontier[id] = e
	return nil
}

func (st *state) ReleaseStaleLocks(_ context.Context, before time.Time) (int64, error) {
	var released int64
	for id, e := range st.frontier {
		if e.LockedAt != nil && e.LockedAt.Before(before) {
			e.LockedAt = nil
			st.frontier[id] = e
			released++
		}
	}
	return released, nil
}

func (st *state) UpsertPage(_ context.Context, page store.Page) (int64, error) {
	if _, ok := st.domains[page.DomainID]; !ok {
		return 0, store.ErrNotFound
	}
	if id, ok := st.pagesByURL[page.URL]; ok {
		page.ID = id
		st.pages[id] = page
		return id, nil
	}
	st.nextPage++
	page.ID = st.nextPage
	st.pages[page.ID] = page
	st.pagesByURL[page.URL] = page.ID
	return page.ID, nil
}

func (st *state) GetPage(_ context.Context, id int64) (store.Page, error) {
	p, ok := st.pages[id]
	if !ok {
		return store.Page{}, store.ErrNotFound
	}
	return p, nil
}

func (st *state) PageIDByURL(_ context.Context, url string) (int64, error) {
	id, ok := st.pagesByURL[url]
	if !ok {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func (st *state) ListPages(_ context.Context, afterID int64, limit int) ([]store.Page, error) {
	out := make([]store.Page, 0)
	for id, p := range st.pages {
		if id > afterID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) UpsertLink(_ context.Context, toURL string, fromPageID int64, at time.Time) error {
	if _, ok := st.pages[fromPageID]; !ok {
		return store.ErrNotFound
	}
	st.links[linkKey{to: toURL, from: fromPageID}] = store.Link{ToURL: toURL, FromPageID: fromPageID, LastSeen: at}
	return nil
}

func (st *state) ReplaceTokenWeights(_ context.Context, pageID int64, weights map[string]float64) error {
	if _, ok := st.pages[pageID]; !ok {
		return store.ErrNotFound
	}
	m := make(map[string]float64, len(weights))
	for k, v := range weights {
		m[k] = v
	}
	st.tokens[pageID] = m
	return nil
}

func (st *state) TokenTotal(_ context.Context, token string) (float64, error) {
	var total float64
	for _, weights := range st.tokens {
		total += weights[token]
	}
	return total, nil
}

func (st *state) TokenPostings(_ context.Context, token string) ([]store.Posting, error) {
	out := make([]store.Posting, 0)
	for page, weights := range st.tokens {
		if w, ok := weights[token]; ok {
			out = append(out, store.Posting{PageID: page, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

func (st *state) RecordSearch(_ context.Context, record store.SearchRecord) error {
	st.history = append(st.history, record)
	return nil
}

func (st *state) Stats(context.Context) (store.Stats, error) {
	stats := store.Stats{
		Domains:         int64(len(st.domains)),
		FrontierEntries: int64(len(st.frontier)),
		Pages:           int64(len(st.pages)),
	}
	for _, d := range st.domains {
		if d.Enabled {
			stats.EnabledDomains++
		}
	}
	for _, e := range st.frontier {
		if e.LockedAt != nil {
			stats.LockedEntries++
		}
	}
	return stats, nil
}

func copyDomain(d store.Domain) store.Domain {
	if d.RobotsPolicy != nil {
		p := *d.RobotsPolicy
		d.RobotsPolicy = &p
	}
	return d
}

func copyEntry(e store.FrontierEntry) store.FrontierEntry {
	if e.LockedAt != nil {
		t := *e.LockedAt
		e.LockedAt = &t
	}
	return e
}
