package contactlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"

	"contact-manager/internal/cache"
	"contact-manager/internal/contact"
	"contact-manager/internal/shared"
)

// Remote is the proxy as the client sees it.
type Remote interface {
	Source
	CreateContact(ctx context.Context, c contact.Contact) error
	CreateUser(ctx context.Context, username string) error
	Logout(ctx context.Context) error
}

// Query selects what List shows.
type Query struct {
	Filter string
	Page   int
	Size   int
}

// Page is one screen of contacts.
type Page struct {
	Contacts []contact.Contact
	// Total counts contacts after filtering.
	Total int
	Pages int
	// New lists names on this page created here and not shown before.
	New []string
}

// Service is the client's contact workflow on top of the Orchestrator: it
// keeps the cache and unseen names consistent with what the proxy says.
type Service struct {
	remote Remote
	cache  cache.Store
	unseen cache.UnseenStore
	orch   *Orchestrator
	log    *slog.Logger
}

func NewService(remote Remote, store cache.Store, unseen cache.UnseenStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if unseen == nil {
		unseen = cache.NewMemoryUnseen()
	}
	return &Service{
		remote: remote,
		cache:  store,
		unseen: unseen,
		orch:   NewOrchestrator(remote, store, WithLogger(log)),
		log:    log,
	}
}

// Orchestrator exposes the read cycle for callers that render its states.
func (s *Service) Orchestrator() *Orchestrator { return s.orch }

// All returns every contact.
func (s *Service) All(ctx context.Context) ([]contact.Contact, error) {
	res := s.orch.Load(ctx)
	if res.Err != nil {
		s.onError(ctx, res.Err)
		return nil, res.Err
	}
	return res.Data, nil
}

// List loads contacts, filters and paginates them, and marks shown names seen.
func (s *Service) List(ctx context.Context, q Query) (Page, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Page{}, err
	}
	filtered := contact.FilterByName(all, q.Filter)
	size := q.Size
	if size <= 0 {
		size = max(len(filtered), 1)
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	p := Page{
		Contacts: contact.Paginate(filtered, size, page),
		Total:    len(filtered),
		Pages:    contact.PageCount(len(filtered), size),
	}

	unseen, err := s.unseen.List(ctx)
	if err != nil {
		s.log.Warn("read unseen names", "error", err)
		return p, nil
	}
	for _, name := range contact.Names(p.Contacts) {
		if slices.Contains(unseen, name) && !slices.Contains(p.New, name) {
			p.New = append(p.New, name)
		}
	}
	if len(p.New) > 0 {
		if err := s.unseen.Remove(ctx, p.New...); err != nil {
			s.log.Warn("mark names seen", "error", err)
		}
	}
	return p, nil
}

// Refresh drops the cached set and lists again from the proxy.
func (s *Service) Refresh(ctx context.Context, q Query) (Page, error) {
	if err := s.invalidate(ctx); err != nil {
		return Page{}, err
	}
	return s.List(ctx, q)
}

// Create sends a new contact. On success the cached set is dropped so the next
// list shows it, and its name is remembered as unseen.
func (s *Service) Create(ctx context.Context, c contact.Contact) error {
	if err := s.remote.CreateContact(ctx, c); err != nil {
		s.onError(ctx, err)
		return err
	}
	if err := s.invalidate(ctx); err != nil {
		return err
	}
	if err := s.unseen.Add(ctx, c.Name); err != nil {
		s.log.Warn("remember unseen name", "name", c.Name, "error", err)
	}
	return nil
}

// CreateUser registers username with the resource server.
func (s *Service) CreateUser(ctx context.Context, username string) error {
	err := s.remote.CreateUser(ctx, username)
	if err != nil {
		s.onError(ctx, err)
	}
	return err
}

// Export writes every contact as vCard.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	return contact.WriteVCards(w, all)
}

// Logout wipes local state first, then ends the proxy session. A session the
// proxy no longer knows still counts as logged out.
func (s *Service) Logout(ctx context.Context) error {
	clearErr := s.clearLocal(ctx)
	err := s.remote.Logout(ctx)
	if shared.IsAuth(err) {
		err = nil
	}
	return errors.Join(err, clearErr)
}

func (s *Service) onError(ctx context.Context, err error) {
	if !shared.IsAuth(err) {
		s.log.Debug("proxy call failed", "kind", shared.KindOf(err).String(), "status", shared.StatusOf(err))
		return
	}
	s.log.Info("session lost, clearing local contacts")
	if cerr := s.clearLocal(ctx); cerr != nil {
		s.log.Warn("clear local state", "error", cerr)
	}
}

func (s *Service) invalidate(ctx context.Context) error {
	s.orch.Reset()
	return s.cache.Clear(ctx)
}

func (s *Service) clearLocal(ctx context.Context) error {
	return errors.Join(s.invalidate(ctx), s.unseen.Clear(ctx))
}
