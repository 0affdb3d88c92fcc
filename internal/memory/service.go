package memory

import (
	"context"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// Service adapts the Store to the ADK memory.Service interface. ADK
// sessions are opened with the client ID as user ID, so every search stays
// inside one client namespace.
type Service struct {
	store *Store
}

// NewService creates a memory service over store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// AddSession does nothing. Analysis records are written by the orchestrator
// with the question as the user asked it, not the augmented prompt a session
// holds.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	return nil
}

// Search runs an MMR retrieval in the namespace of req.UserID. Each entry
// carries the document kind as its author.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if req.UserID == "" {
		return &adkmemory.SearchResponse{Memories: []adkmemory.Entry{}}, nil
	}

	docs, err := s.store.Retrieve(ctx, req.UserID, req.Query, s.store.opts.K, s.store.opts.FetchK)
	if err != nil {
		return nil, err
	}

	memories := make([]adkmemory.Entry, 0, len(docs))
	for _, d := range docs {
		if d.Content == "" {
			continue
		}
		memories = append(memories, adkmemory.Entry{
			Content:   genai.NewContentFromText(d.Content, genai.RoleModel),
			Author:    string(d.Kind),
			Timestamp: d.CreatedAt,
		})
	}

	return &adkmemory.SearchResponse{Memories: memories}, nil
}

var _ adkmemory.Service = (*Service)(nil)
