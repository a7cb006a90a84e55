package models

import (
	"time"
)

type (
	Config struct {
		// Paths
		OutputDir      string `toml:"OutputDir"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Engine
		YtDlpPath         string `toml:"YtDlpPath"`
		FfmpegLocation    string `toml:"FfmpegLocation"`
		ExtractTimeoutSec int    `toml:"ExtractTimeoutSec"`
		AudioContainer    string `toml:"AudioContainer"` // container that means "extract audio"
		MuxContainer      string `toml:"MuxContainer"`   // container video+audio gets merged into
		Retries           int    `toml:"Retries"`

		// Server
		Listen             string   `toml:"Listen"`
		AllowedOrigins     []string `toml:"AllowedOrigins"`
		ServePrefix        string   `toml:"ServePrefix"`
		DetachOnDisconnect bool     `toml:"DetachOnDisconnect"`
		LogRequests        bool     `toml:"LogRequests"`
		RequestLogPath     string   `toml:"RequestLogPath"`

		// Retention
		RetentionHours       int `toml:"RetentionHours"`
		SweepIntervalMinutes int `toml:"SweepIntervalMinutes"`
	}

	// VideoMetadata is the normalized result of a metadata extraction.
	VideoMetadata struct {
		ID         string             `json:"id"`
		Title      string             `json:"title"`
		Duration   float64            `json:"duration"`
		Thumbnail  string             `json:"thumbnail"`
		Uploader   string             `json:"uploader"`
		UploadDate string             `json:"upload_date"`
		Formats    []FormatDescriptor `json:"formats"`
	}

	// FormatDescriptor is one concrete encoding the engine can fetch.
	FormatDescriptor struct {
		FormatID          string  `json:"format_id"`
		FormatNote        string  `json:"format_note"`
		Ext               string  `json:"ext"`
		VideoCodec        string  `json:"vcodec"`
		AudioCodec        string  `json:"acodec"`
		Resolution        string  `json:"resolution"`
		Width             int     `json:"width,omitempty"`
		Height            int     `json:"height,omitempty"`
		FPS               float64 `json:"fps,omitempty"`
		TBR               float64 `json:"tbr,omitempty"` // total bitrate, kbps
		ABR               float64 `json:"abr,omitempty"` // audio bitrate, kbps
		FileSize          *int64  `json:"filesize"`
		FileSizeEstimated bool    `json:"filesize_estimated,omitempty"`
		URL               string  `json:"url"`
	}

	// QualityOption is one entry of the per-container quality menu.
	QualityOption struct {
		FormatID   string `json:"format_id"`
		Label      string `json:"label"`
		Resolution string `json:"resolution"`
		FileSize   *int64 `json:"filesize,omitempty"`
	}

	// Menu is the full selection menu derived from a catalog.
	Menu struct {
		Containers []string                   `json:"containers"`
		Qualities  map[string][]QualityOption `json:"qualities"`
	}

	// Engine records as decoded from yt-dlp's JSON dump. Optional values are pointers so
	// "missing" and "zero" stay distinguishable until the normalizer validates them.
	RawInfo struct {
		ID         string      `json:"id"`
		Title      string      `json:"title"`
		Duration   *float64    `json:"duration"`
		Thumbnail  string      `json:"thumbnail"`
		Uploader   string      `json:"uploader"`
		UploadDate string      `json:"upload_date"`
		Formats    []RawFormat `json:"formats"`
	}

	RawFormat struct {
		FormatID   string   `json:"format_id"`
		FormatNote string   `json:"format_note"`
		Ext        string   `json:"ext"`
		URL        string   `json:"url"`
		VideoCodec *string  `json:"vcodec"`
		AudioCodec *string  `json:"acodec"`
		Resolution string   `json:"resolution"`
		Width      *int     `json:"width"`
		Height     *int     `json:"height"`
		FPS        *float64 `json:"fps"`
		TBR        *float64 `json:"tbr"`
		ABR        *float64 `json:"abr"`
		FileSize   *int64   `json:"filesize"`
	}

	// DownloadJob lives for the duration of one download request.
	DownloadJob struct {
		ID             int64
		SourceURL      string
		Container      string
		FormatID       string
		State          JobState
		OutputTemplate string
		Title          string
	}

	// ProgressEvent is one normalized progress tick.
	ProgressEvent struct {
		Percent        float64
		ETASeconds     *int64
		BytesPerSecond *float64
	}

	// JobResult is the terminal value of a job; exactly one is produced per job.
	JobResult struct {
		Success     bool   `json:"success"`
		Filename    string `json:"filename,omitempty"`
		FileSize    int64  `json:"filesize,omitempty"`
		DownloadURL string `json:"downloadUrl,omitempty"`
		Error       string `json:"error,omitempty"`
	}

	// Artifact is a completed file in the output directory, as recorded in the ledger.
	Artifact struct {
		Filename    string    `json:"filename"`
		Title       string    `json:"title"`
		SourceURL   string    `json:"sourceUrl"`
		Container   string    `json:"container"`
		FormatID    string    `json:"formatId"`
		Size        int64     `json:"size"`
		BLAKE3      string    `json:"blake3,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
		TorrentPath string    `json:"torrentPath,omitempty"`
		MagnetLink  string    `json:"magnetLink,omitempty"`
	}
)

// JobState is the orchestrator state of a DownloadJob.
type JobState string

const (
	StatePlanned        JobState = "Planned"
	StateExtracting     JobState = "Extracting"
	StateDownloading    JobState = "Downloading"
	StatePostProcessing JobState = "PostProcessing"
	StateLocating       JobState = "Locating"
	StateCompleted      JobState = "Completed"
	StateFailed         JobState = "Failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Failed builds a failure result.
func Failed(message string) JobResult {
	return JobResult{Success: false, Error: message}
}
