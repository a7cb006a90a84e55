package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

const defaultIndexPath = "media-fetch.bleve"

// Item is one searchable artifact. Fields are searchable by their JSON names,
// e.g. '+container:mp3' or 'title:trailer'.
type Item struct {
	ID        string    `json:"id"`   // the artifact filename
	Type      string    `json:"type"` // "audio" or "video"
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	SourceURL string    `json:"sourceUrl"`
	Host      string    `json:"host,omitempty"`
	Container string    `json:"container"`
	FormatID  string    `json:"formatId,omitempty"`
	SizeBytes float64   `json:"sizeBytes,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// Set by the torrent command.
	TorrentPath string `json:"torrentPath,omitempty"`
	MagnetLink  string `json:"magnetLink,omitempty"`
}

// ItemFromArtifact maps a ledger entry to its index document. audioTarget is
// the container that marks audio-only output.
func ItemFromArtifact(art models.Artifact, audioTarget string) Item {
	kind := "video"
	if art.Container == audioTarget || strings.EqualFold(filepath.Ext(art.Filename), "."+audioTarget) {
		kind = "audio"
	}
	return Item{
		ID:          art.Filename,
		Type:        kind,
		Title:       art.Title,
		Filename:    art.Filename,
		SourceURL:   art.SourceURL,
		Host:        hostOf(art.SourceURL),
		Container:   art.Container,
		FormatID:    art.FormatID,
		SizeBytes:   float64(art.Size),
		CreatedAt:   art.CreatedAt,
		TorrentPath: art.TorrentPath,
		MagnetLink:  art.MagnetLink,
	}
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimPrefix(s, "www."))
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new index at: %s", indexPath)
		index, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// IndexItem adds or updates an item.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// DeleteItem removes an item; deleting an unknown id is not an error.
func DeleteItem(index bleve.Index, id string) error {
	return index.Delete(id)
}

// SearchIndex runs a query-string search; an empty query matches everything.
func SearchIndex(index bleve.Index, query string, limit int) (*bleve.SearchResult, error) {
	var searchRequest *bleve.SearchRequest
	if strings.TrimSpace(query) == "" {
		searchRequest = bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	} else {
		searchRequest = bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	}
	if limit > 0 {
		searchRequest.Size = limit
	}
	searchRequest.Fields = []string{"*"}
	return index.Search(searchRequest)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Warnf("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
