package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/internal/repository"
	"github.com/annalist/annalist-backend/pkg/cache"
	"github.com/annalist/annalist-backend/pkg/logger"
	"github.com/google/uuid"
)

// Snapshot override values accepted on save requests.
const (
	SnapshotForce = "force"
	SnapshotSkip  = "skip"
)

// DocumentService handles document business logic. Saves run the
// versioning policy after the document's own persistence succeeds; a
// snapshot failure is logged and reported in the response but never
// fails the save itself.
type DocumentService interface {
	Create(ctx context.Context, req *domain.DocumentRequest, editorID string) (*domain.Document, *domain.Version, error)
	Update(ctx context.Context, publicID string, req *domain.DocumentRequest, editorID, snapshot string) (*domain.Document, *domain.Version, error)
	Get(ctx context.Context, publicID string) (*domain.Document, error)
	List(page, limit int) ([]domain.Document, int64, error)
	// Delete removes the document and cascades its whole version history.
	Delete(ctx context.Context, publicID string) error
	// Revert restores the document from one of its versions and saves it.
	// No snapshot is captured by the revert itself.
	Revert(ctx context.Context, publicID string, req *domain.RevertRequest) (*domain.Document, error)
	// SetGate toggles automatic snapshots for the document within this
	// server instance. ClearGate returns it to the type default.
	SetGate(publicID string, enabled bool)
	ClearGate(publicID string)
}

type documentService struct {
	repo     repository.DocumentRepository
	policy   PolicyService
	versions VersionService
	reverts  RevertService
	cache    cache.Service

	mu    sync.Mutex
	gates map[string]*domain.Gate
}

// NewDocumentService creates a new DocumentService. cacheService may be
// nil when Redis is unavailable.
func NewDocumentService(
	repo repository.DocumentRepository,
	policy PolicyService,
	versions VersionService,
	reverts RevertService,
	cacheService cache.Service,
) DocumentService {
	return &documentService{
		repo:     repo,
		policy:   policy,
		versions: versions,
		reverts:  reverts,
		cache:    cacheService,
		gates:    make(map[string]*domain.Gate),
	}
}

func (s *documentService) Create(ctx context.Context, req *domain.DocumentRequest, editorID string) (*domain.Document, *domain.Version, error) {
	doc := &domain.Document{
		PublicID: uuid.New().String(),
		Title:    req.Title,
		Content:  req.Content,
		Tags:     req.Tags,
		EditorID: editorID,
	}

	if err := s.repo.Create(doc); err != nil {
		return nil, nil, fmt.Errorf("%w: creating document: %v", common.ErrPersistence, err)
	}

	v := s.afterSave(doc, s.gateFor(doc.PublicID))
	return doc, v, nil
}

func (s *documentService) Update(ctx context.Context, publicID string, req *domain.DocumentRequest, editorID, snapshot string) (*domain.Document, *domain.Version, error) {
	doc, err := s.find(publicID)
	if err != nil {
		return nil, nil, err
	}

	doc.Title = req.Title
	doc.Content = req.Content
	doc.Tags = req.Tags
	doc.EditorID = editorID

	gate := s.gateFor(publicID)
	var v *domain.Version
	save := func() error {
		if err := s.repo.Update(doc); err != nil {
			return fmt.Errorf("%w: updating document: %v", common.ErrPersistence, err)
		}
		v = s.afterSave(doc, gate)
		return nil
	}

	switch snapshot {
	case SnapshotForce:
		err = gate.Scoped(true, save)
	case SnapshotSkip:
		err = gate.Scoped(false, save)
	default:
		err = save()
	}
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, publicID)
	return doc, v, nil
}

func (s *documentService) Get(ctx context.Context, publicID string) (*domain.Document, error) {
	if s.cache != nil {
		var cached domain.Document
		if err := s.cache.GetDocument(ctx, publicID, &cached); err == nil {
			return &cached, nil
		}
	}

	doc, err := s.find(publicID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDocument(ctx, publicID, doc); err != nil {
			logger.GetLogger().Warn().Err(err).Str("document", publicID).Msg("document cache write failed")
		}
	}
	return doc, nil
}

func (s *documentService) List(page, limit int) ([]domain.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(page, limit)
}

func (s *documentService) Delete(ctx context.Context, publicID string) error {
	doc, err := s.find(publicID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(publicID); err != nil {
		return fmt.Errorf("%w: deleting document: %v", common.ErrPersistence, err)
	}

	// Dependent lifecycle: the owner's versions go with it.
	if err := s.versions.DeleteHistory(doc.Ref()); err != nil {
		logger.WithOwner(doc.Ref().Type, doc.Ref().ID).Error().Err(err).
			Msg("failed to cascade version history delete")
	}

	s.mu.Lock()
	delete(s.gates, publicID)
	s.mu.Unlock()

	s.invalidate(ctx, publicID)
	return nil
}

func (s *documentService) Revert(ctx context.Context, publicID string, req *domain.RevertRequest) (*domain.Document, error) {
	doc, err := s.find(publicID)
	if err != nil {
		return nil, err
	}

	v, err := s.reverts.Resolve(doc.Ref(), req.Version)
	if err != nil {
		return nil, err
	}

	var except map[string]bool
	if len(req.Except) > 0 {
		except = make(map[string]bool, len(req.Except))
		for _, k := range req.Except {
			except[k] = true
		}
	}

	if err := s.reverts.Revert(s.owned(doc), v, except); err != nil {
		return nil, err
	}

	s.invalidate(ctx, publicID)
	return doc, nil
}

func (s *documentService) SetGate(publicID string, enabled bool) {
	s.gateFor(publicID).Set(enabled)
}

func (s *documentService) ClearGate(publicID string) {
	s.mu.Lock()
	delete(s.gates, publicID)
	s.mu.Unlock()
}

// afterSave runs the versioning policy for a save that already
// succeeded. Snapshot failure is observable in logs but never
// propagates: the save's own success is independent of its snapshot.
func (s *documentService) afterSave(doc *domain.Document, gate *domain.Gate) *domain.Version {
	v, err := s.policy.OnSaved(s.owned(doc), gate)
	if err != nil {
		ref := doc.Ref()
		logger.WithOwner(ref.Type, ref.ID).Error().Err(err).Msg("snapshot capture failed")
		return nil
	}
	return v
}

func (s *documentService) find(publicID string) (*domain.Document, error) {
	doc, err := s.repo.FindByPublicID(publicID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading document: %v", common.ErrPersistence, err)
	}
	if doc == nil {
		return nil, common.ErrDocumentNotFound
	}
	return doc, nil
}

// gateFor returns the document's per-instance gate, creating an unset
// one on first use. Gates live only in this process's memory.
func (s *documentService) gateFor(publicID string) *domain.Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[publicID]
	if !ok {
		g = &domain.Gate{}
		s.gates[publicID] = g
	}
	return g
}

func (s *documentService) invalidate(ctx context.Context, publicID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDocument(ctx, publicID); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		logger.GetLogger().Warn().Err(err).Str("document", publicID).Msg("document cache invalidation failed")
	}
}

// owned adapts a document to the versioning engine's owner contract,
// wiring Persist back through this service's repository.
func (s *documentService) owned(doc *domain.Document) domain.Owner {
	return &ownedDocument{Document: doc, repo: s.repo}
}

type ownedDocument struct {
	*domain.Document
	repo repository.DocumentRepository
}

func (o *ownedDocument) Persist() error {
	return o.repo.Update(o.Document)
}
