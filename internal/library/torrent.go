package library

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

// ErrNotRecorded means the file has no ledger entry.
var ErrNotRecorded = errors.New("artifact not recorded in ledger")

const torrentPieceLength = 512 * 1024

// TorrentOptions controls .torrent generation.
type TorrentOptions struct {
	Trackers  []string
	OutputDir string // defaults to the library's output directory
	Overwrite bool
}

// MakeTorrent writes a single-file .torrent for a recorded artifact and stores
// the torrent path and magnet link back into the ledger and index. An
// existing .torrent is reused unless Overwrite is set.
func (l *Library) MakeTorrent(filename string, opts TorrentOptions) (models.Artifact, error) {
	art, ok := l.Lookup(filename)
	if !ok {
		return models.Artifact{}, fmt.Errorf("%w: %s", ErrNotRecorded, filename)
	}
	sourcePath := l.Path(art.Filename)
	if _, err := os.Stat(sourcePath); err != nil {
		return art, fmt.Errorf("error stating source path %s: %w", sourcePath, err)
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = l.OutputDir
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return art, fmt.Errorf("error creating output directory %s: %w", outDir, err)
	}
	outPath := filepath.Join(outDir, art.Filename+".torrent")

	var mi *metainfo.MetaInfo
	if _, err := os.Stat(outPath); err == nil && !opts.Overwrite {
		log.WithField("path", outPath).Info("Reusing existing torrent file (use --overwrite to replace)")
		mi, err = metainfo.LoadFromFile(outPath)
		if err != nil {
			return art, fmt.Errorf("error loading existing torrent %s: %w", outPath, err)
		}
	} else {
		mi, err = buildTorrent(sourcePath, opts.Trackers)
		if err != nil {
			return art, err
		}
		if err := writeTorrent(outPath, mi); err != nil {
			return art, err
		}
		log.WithField("path", outPath).Info("Generated torrent file")
	}

	art.TorrentPath = outPath
	art.MagnetLink = magnetURI(mi, art.Filename, opts.Trackers)
	if err := l.Save(art); err != nil {
		return art, err
	}
	return art, nil
}

func buildTorrent(sourcePath string, trackers []string) (*metainfo.MetaInfo, error) {
	mi := &metainfo.MetaInfo{
		AnnounceList: make([][]string, len(trackers)),
		CreatedBy:    "go-media-fetch",
	}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}

	info := metainfo.Info{PieceLength: torrentPieceLength}
	if err := info.BuildFromFilePath(sourcePath); err != nil {
		return nil, fmt.Errorf("error building torrent info from path %s: %w", sourcePath, err)
	}
	var err error
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("error marshaling torrent info: %w", err)
	}
	return mi, nil
}

func writeTorrent(outPath string, mi *metainfo.MetaInfo) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	defer f.Close()
	if err := mi.Write(f); err != nil {
		return fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}
	return nil
}

func magnetURI(mi *metainfo.MetaInfo, displayName string, trackers []string) string {
	parts := []string{
		"magnet:?xt=urn:btih:" + mi.HashInfoBytes().HexString(),
		"dn=" + url.QueryEscape(displayName),
	}
	for _, tracker := range trackers {
		parts = append(parts, "tr="+url.QueryEscape(tracker))
	}
	return strings.Join(parts, "&")
}
