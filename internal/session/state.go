package session

import "github.com/krakenlabs/krakbit/models"

// Status is the lifecycle of the current generation.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusStreaming  Status = "streaming"
	StatusError      Status = "error"
)

// ErrorKind classifies a surfaced session failure.
type ErrorKind string

const (
	ErrorConnection ErrorKind = "connection"
	ErrorRequest    ErrorKind = "request"
)

// State is the authoritative record of one digest session: generation status,
// the append-only item collection and the wholesale-replaced trending feed.
// It performs no I/O and is only ever touched from the controller loop, so it
// needs no locking.
type State struct {
	status        Status
	statusMessage string
	errorKind     ErrorKind
	items         []models.Item
	trending      []models.TrendingPost
}

// NewState returns an idle session with empty collections.
func NewState() *State {
	return &State{status: StatusIdle}
}

// Reset marks the start of a new generation: status becomes Requesting and
// the item collection is cleared in the same step, so no observer on the loop
// can see one without the other. The trending feed is untouched; its
// lifecycle is independent of generations.
func (s *State) Reset() {
	s.status = StatusRequesting
	s.statusMessage = ""
	s.errorKind = ""
	s.items = nil
}

// SetStatusMessage records a free-text progress message without touching the
// item collection.
func (s *State) SetStatusMessage(msg string) {
	s.statusMessage = msg
}

// AppendItem adds one item to the end of the collection, moving the session
// to Streaming if it was still waiting for the first item.
func (s *State) AppendItem(item models.Item) {
	if s.status == StatusRequesting {
		s.status = StatusStreaming
	}
	s.items = append(s.items, item)
}

// ReplaceTrending swaps the trending feed wholesale.
func (s *State) ReplaceTrending(posts []models.TrendingPost) {
	s.trending = posts
}

// SetError surfaces a failure on the session itself so the presentation
// layer can decide how to show it.
func (s *State) SetError(kind ErrorKind, msg string) {
	s.status = StatusError
	s.errorKind = kind
	s.statusMessage = msg
}

func (s *State) Status() Status        { return s.status }
func (s *State) StatusMessage() string { return s.statusMessage }
func (s *State) Error() ErrorKind      { return s.errorKind }
func (s *State) Len() int              { return len(s.items) }

// Items returns a copy of the item collection in arrival order.
func (s *State) Items() []models.Item {
	out := make([]models.Item, len(s.items))
	copy(out, s.items)
	return out
}

// Item returns the item at index i.
func (s *State) Item(i int) models.Item { return s.items[i] }

// Trending returns a copy of the current trending feed.
func (s *State) Trending() []models.TrendingPost {
	out := make([]models.TrendingPost, len(s.trending))
	copy(out, s.trending)
	return out
}

// ContentText concatenates the content of every accumulated item, in order.
// It is the context body for follow-up questions.
func (s *State) ContentText() string {
	var out string
	for i, item := range s.items {
		if i > 0 {
			out += " "
		}
		out += item.Content
	}
	return out
}
