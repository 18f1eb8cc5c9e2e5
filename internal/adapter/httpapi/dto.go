package httpapi

import (
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/tunesession/internal/domain"
)

type mediaItem struct {
	URI        string `json:"uri"`
	Title      string `json:"title,omitempty"`
	Subtitle   string `json:"subtitle,omitempty"`
	ArtworkURI string `json:"artwork_uri,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

func toMediaItems(items []domain.MediaReference) []mediaItem {
	return lo.Map(items, func(item domain.MediaReference, _ int) mediaItem {
		return mediaItem{
			URI:        item.URI,
			Title:      item.Title,
			Subtitle:   item.Subtitle,
			ArtworkURI: item.ArtworkURI,
			MimeType:   item.MimeType,
		}
	})
}

func fromMediaItems(items []mediaItem) []domain.MediaReference {
	return lo.Map(items, func(item mediaItem, _ int) domain.MediaReference {
		return domain.MediaReference{
			URI:        item.URI,
			Title:      item.Title,
			Subtitle:   item.Subtitle,
			ArtworkURI: item.ArtworkURI,
			MimeType:   item.MimeType,
		}
	})
}

type nowPlaying struct {
	Title            string    `json:"title"`
	Subtitle         string    `json:"subtitle"`
	ArtworkURI       string    `json:"artwork_uri,omitempty"`
	URI              string    `json:"uri"`
	MimeType         string    `json:"mime_type,omitempty"`
	Speed            float32   `json:"speed"`
	Shuffle          bool      `json:"shuffle"`
	Repeat           string    `json:"repeat"`
	DurationMs       int64     `json:"duration_ms"`
	PositionMs       int64     `json:"position_ms"`
	Favourite        bool      `json:"favourite"`
	PlayWhenReady    bool      `json:"play_when_ready"`
	Playing          bool      `json:"playing"`
	State            string    `json:"state"`
	Error            string    `json:"error,omitempty"`
	VideoWidth       int       `json:"video_width,omitempty"`
	VideoHeight      int       `json:"video_height,omitempty"`
	HasNext          bool      `json:"has_next"`
	HasPrevious      bool      `json:"has_previous"`
	SleepAt          int64     `json:"sleep_at"`
	SleepRemainingMs int64     `json:"sleep_remaining_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

func toNowPlaying(np *domain.NowPlaying, now time.Time) nowPlaying {
	remaining := domain.SleepUnset
	if left := np.SleepRemaining(now); left >= 0 {
		remaining = left.Milliseconds()
	}
	return nowPlaying{
		Title:            np.Title,
		Subtitle:         np.Subtitle,
		ArtworkURI:       np.ArtworkURI,
		URI:              np.URI,
		MimeType:         np.MimeType,
		Speed:            np.Speed,
		Shuffle:          np.Shuffle,
		Repeat:           np.Repeat.String(),
		DurationMs:       np.Duration,
		PositionMs:       np.Position,
		Favourite:        np.Favourite,
		PlayWhenReady:    np.PlayWhenReady,
		Playing:          np.IsPlaying(),
		State:            np.State.String(),
		Error:            np.Error,
		VideoWidth:       np.VideoWidth,
		VideoHeight:      np.VideoHeight,
		HasNext:          np.IsNextAvailable(),
		HasPrevious:      np.IsPrevAvailable(),
		SleepAt:          np.SleepAt,
		SleepRemainingMs: remaining,
		Timestamp:        np.Timestamp,
	}
}

type addRequest struct {
	Items []mediaItem `json:"items"`
	Index *int        `json:"index,omitempty"` // nil appends
}

type replaceRequest struct {
	Items      []mediaItem `json:"items"`
	Index      *int        `json:"index,omitempty"`
	PositionMs int64       `json:"position_ms"`
}

type seekRequest struct {
	Fraction *float64 `json:"fraction,omitempty"`
	DeltaMs  *int64   `json:"delta_ms,omitempty"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type repeatRequest struct {
	Mode string `json:"mode"`
}

type speedRequest struct {
	Speed float32 `json:"speed"`
}

type sleepRequest struct {
	Millis int64 `json:"millis"`
}

type sleepResponse struct {
	RemainingMs int64 `json:"remaining_ms"`
}

type equalizer struct {
	Enabled    bool   `json:"enabled"`
	Properties string `json:"properties"`
}

type countResponse struct {
	Count int `json:"count"`
}

type likeResponse struct {
	Favourite bool `json:"favourite"`
}

func parseRepeatMode(value string) (domain.RepeatMode, bool) {
	for _, mode := range []domain.RepeatMode{domain.RepeatOff, domain.RepeatOne, domain.RepeatAll} {
		if mode.String() == value {
			return mode, true
		}
	}
	return domain.RepeatOff, false
}
