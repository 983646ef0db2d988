package viewer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muradrava/reportsync/internal/models"
)

// MaxUploads is how many uploaded images are kept before the oldest is dropped.
const MaxUploads = 32

// Upload is an image submitted through the page. It lives only in memory.
type Upload struct {
	ID       string
	Name     string
	Data     []byte
	Received time.Time
}

// File describes the upload like a report on disk.
func (u *Upload) File() models.ReportFile {
	return models.ReportFile{Name: u.Name, Kind: KindOf(u.Name)}
}

type uploadStore struct {
	mu    sync.Mutex
	limit int
	order []string
	items map[string]*Upload
}

func newUploadStore(limit int) *uploadStore {
	return &uploadStore{limit: limit, items: make(map[string]*Upload)}
}

func (s *uploadStore) add(name string, data []byte) *Upload {
	u := &Upload{
		ID:       uuid.NewString(),
		Name:     name,
		Data:     data,
		Received: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[u.ID] = u
	s.order = append(s.order, u.ID)
	for len(s.order) > s.limit {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	return u
}

func (s *uploadStore) get(id string) (*Upload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.items[id]
	return u, ok
}

func (s *uploadStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
