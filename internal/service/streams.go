package service

import (
	"sync"

	"github.com/mhodzic/parley/internal/domain"
)

// Live streams deliver full ordered snapshots: each receive replaces the
// previous one. The channel has capacity one and stale snapshots are
// overwritten, so a slow consumer always observes the latest state. Cancel is
// idempotent and guarantees no further delivery once it returns; the channel
// is closed afterwards.

type MessageStream struct {
	C    <-chan []domain.Message
	once sync.Once
	stop func()
}

func (s *MessageStream) Cancel() { s.once.Do(s.stop) }

type SummaryStream struct {
	C    <-chan *domain.Conversation
	once sync.Once
	stop func()
}

func (s *SummaryStream) Cancel() { s.once.Do(s.stop) }

type ConversationListStream struct {
	C    <-chan []domain.ConversationListItem
	once sync.Once
	stop func()
}

func (s *ConversationListStream) Cancel() { s.once.Do(s.stop) }

// replaceLatest delivers v on a capacity-one channel, discarding any
// undelivered previous snapshot.
func replaceLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}
