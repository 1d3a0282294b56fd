package livestate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/carbondale-church/archiver"
)

var ErrCorruptState = errors.New("persisted state is unreadable")
var ErrLockTimeout = errors.New("timed out waiting for state lock")

const documentVersion = 2

// Document is everything the archiver persists between runs
type Document struct {
	Version int                `json:"version"`
	Live    archiver.LiveState `json:"live"`
	// Downloads maps broadcast ID to the path (relative to the download directory)
	// its recording was saved to
	Downloads map[string]string `json:"downloads"`
	// LastLookahead and LastReport hold the local date (YYYY-MM-DD) on which the
	// lookahead schedule check and the weekly report last ran
	LastLookahead string `json:"lastLookahead,omitempty"`
	LastReport    string `json:"lastReport,omitempty"`
}

func NewDocument() *Document {
	return &Document{
		Version:   documentVersion,
		Live:      archiver.LiveState{},
		Downloads: map[string]string{},
	}
}

// Store loads and saves the persisted Document. Lock must be held across a
// Load/Save pair when more than one archiver process may run at once.
type Store interface {
	Lock(ctx context.Context) (release func(), err error)
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}

// legacyDocument is the layout written by the earlier download script
type legacyDocument struct {
	LiveIds               []string `json:"live_ids"`
	LastScheduleCheckDate string   `json:"last_schedule_check_date"`
	LastAnalyticsDate     string   `json:"last_analytics_date"`
}

// decodeDocument parses persisted state, accepting both the current layout and the
// legacy one. Any failure yields ErrCorruptState along with an empty document.
func decodeDocument(data []byte) (*Document, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return NewDocument(), errors.Join(ErrCorruptState, err)
	}

	if _, ok := probe["version"]; !ok {
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err != nil {
			return NewDocument(), errors.Join(ErrCorruptState, err)
		}
		doc := NewDocument()
		for _, id := range legacy.LiveIds {
			doc.Live[id] = true
		}
		doc.LastLookahead = legacy.LastScheduleCheckDate
		doc.LastReport = legacy.LastAnalyticsDate
		return doc, nil
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return NewDocument(), errors.Join(ErrCorruptState, err)
	}
	if doc.Live == nil {
		doc.Live = archiver.LiveState{}
	}
	if doc.Downloads == nil {
		doc.Downloads = map[string]string{}
	}
	doc.Version = documentVersion
	return doc, nil
}

func encodeDocument(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
