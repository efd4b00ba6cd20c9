package sharelinks

import (
	"sync"
	"time"

	"github.com/maltedev/wishlist-scraper/internal/models"
)

const DefaultCapacity = 20

// Sink keeps the most recent shared links and pushes new ones to
// subscribers. It replaces polling a global list.
type Sink struct {
	mu      sync.Mutex
	buf     []models.SharedLink
	next    int
	full    bool
	subs    map[int]chan models.SharedLink
	nextSub int
	now     func() time.Time
}

func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		buf:  make([]models.SharedLink, capacity),
		subs: make(map[int]chan models.SharedLink),
		now:  time.Now,
	}
}

// Record stores a link, evicting the oldest one when full, and notifies
// subscribers. Slow subscribers miss links rather than block the caller.
func (s *Sink) Record(raw, url string) models.SharedLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	link := models.SharedLink{Raw: raw, URL: url, ReceivedAt: s.now().UTC()}
	s.buf[s.next] = link
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}

	for _, ch := range s.subs {
		select {
		case ch <- link:
		default:
		}
	}
	return link
}

// Recent returns stored links, newest first.
func (s *Sink) Recent() []models.SharedLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.buf)
	}
	out := make([]models.SharedLink, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.buf {
		s.buf[i] = models.SharedLink{}
	}
	s.next = 0
	s.full = false
}

// Subscribe returns a channel of newly recorded links and a cancel func that
// closes it.
func (s *Sink) Subscribe(buffer int) (<-chan models.SharedLink, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan models.SharedLink, buffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}
