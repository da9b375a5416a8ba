package comms

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/krakenlabs/krakbit/models"
)

// Request kinds a client may send over the persistent connection.
const (
	KindGenDaily    = "gen_daily"
	KindGenQuestion = "gen_question"
)

// KindClientComms wraps every server-to-client delivery.
const KindClientComms = "client_comms"

// Payload types carried inside a client_comms envelope.
const (
	TypeStatus   = "status"
	TypeNewData  = "new_data"
	TypeTrending = "new_data_x"
)

// ErrUnknownKind marks envelopes whose kind or payload type this client does
// not understand. Dispatchers drop these silently.
var ErrUnknownKind = errors.New("comms: unknown envelope kind")

// Request is an outbound frame on the persistent connection. Generation
// requests carry the session's generation counter so the server can echo it
// back on every event it streams for that request.
type Request struct {
	Kind       string          `json:"kind"`
	Generation uint64          `json:"generation,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// GenQuestionPayload is the body of a gen_question request.
type GenQuestionPayload struct {
	Query string `json:"query"`
}

// NewGenDaily builds a full-digest generation request.
func NewGenDaily(generation uint64) Request {
	return Request{Kind: KindGenDaily, Generation: generation}
}

// NewGenQuestion builds a query-driven generation request.
func NewGenQuestion(generation uint64, query string) (Request, error) {
	data, err := json.Marshal(GenQuestionPayload{Query: query})
	if err != nil {
		return Request{}, err
	}
	return Request{Kind: KindGenQuestion, Generation: generation, Data: data}, nil
}

// Envelope is the inbound frame: a kind tag plus the client_comms body.
type Envelope struct {
	Kind string       `json:"kind"`
	Data EnvelopeData `json:"data"`
}

// EnvelopeData is the client_comms body as it appears on the wire.
type EnvelopeData struct {
	Type       string          `json:"type"`
	Generation uint64          `json:"generation,omitempty"`
	Status     string          `json:"status,omitempty"`
	Info       json.RawMessage `json:"info,omitempty"`
}

// Event is the decoded, typed form of one inbound delivery. It is a closed
// union: StatusEvent, ItemEvent, TrendingEvent, ConnectedEvent and
// DisconnectedEvent are the only implementations.
type Event interface {
	sessionEvent()
}

// StatusEvent carries a free-text progress message for the generation it is
// tagged with.
type StatusEvent struct {
	Generation uint64
	Message    string
}

// ItemEvent carries one generated article to append to the collection.
type ItemEvent struct {
	Generation uint64
	Item       models.Item
}

// TrendingEvent carries the full trending feed; the previous feed is replaced
// wholesale.
type TrendingEvent struct {
	Posts []models.TrendingPost
}

// ConnectedEvent signals the persistent connection opened.
type ConnectedEvent struct{}

// DisconnectedEvent signals the persistent connection dropped. Err is nil on
// a clean local close.
type DisconnectedEvent struct {
	Err error
}

func (StatusEvent) sessionEvent()       {}
func (ItemEvent) sessionEvent()         {}
func (TrendingEvent) sessionEvent()     {}
func (ConnectedEvent) sessionEvent()    {}
func (DisconnectedEvent) sessionEvent() {}

// DecodeEvent parses one raw frame into a typed event. Unknown kinds and
// unknown payload types return ErrUnknownKind; structurally broken frames
// return a wrapped decode error. Neither is fatal to the session.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("comms: decode envelope: %w", err)
	}
	if env.Kind != KindClientComms {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	switch env.Data.Type {
	case TypeStatus:
		return StatusEvent{Generation: env.Data.Generation, Message: env.Data.Status}, nil
	case TypeNewData:
		var item models.Item
		if err := json.Unmarshal(env.Data.Info, &item); err != nil {
			return nil, fmt.Errorf("comms: decode item: %w", err)
		}
		return ItemEvent{Generation: env.Data.Generation, Item: item}, nil
	case TypeTrending:
		var posts []models.TrendingPost
		if err := json.Unmarshal(env.Data.Info, &posts); err != nil {
			return nil, fmt.Errorf("comms: decode trending posts: %w", err)
		}
		return TrendingEvent{Posts: posts}, nil
	default:
		return nil, fmt.Errorf("%w: client_comms type %q", ErrUnknownKind, env.Data.Type)
	}
}

// EncodeStatus builds the wire form of a status delivery.
func EncodeStatus(generation uint64, message string) Envelope {
	return Envelope{Kind: KindClientComms, Data: EnvelopeData{Type: TypeStatus, Generation: generation, Status: message}}
}

// EncodeItem builds the wire form of a new_data delivery.
func EncodeItem(generation uint64, item models.Item) (Envelope, error) {
	info, err := json.Marshal(item)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindClientComms, Data: EnvelopeData{Type: TypeNewData, Generation: generation, Info: info}}, nil
}

// EncodeTrending builds the wire form of a new_data_x delivery.
func EncodeTrending(posts []models.TrendingPost) (Envelope, error) {
	info, err := json.Marshal(posts)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindClientComms, Data: EnvelopeData{Type: TypeTrending, Info: info}}, nil
}
