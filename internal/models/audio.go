package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Topic is the subject area of a listening clip
type Topic string

const (
	TopicDaily    Topic = "daily"
	TopicBusiness Topic = "business"
	TopicTravel   Topic = "travel"
	TopicCulture  Topic = "culture"
)

// Topics lists every topic in display order
var Topics = []Topic{TopicDaily, TopicBusiness, TopicTravel, TopicCulture}

// IsValid reports whether the topic is one of the known topics
func (t Topic) IsValid() bool {
	switch t {
	case TopicDaily, TopicBusiness, TopicTravel, TopicCulture:
		return true
	default:
		return false
	}
}

// DefaultColor returns the thumbnail color used when none is given
func (t Topic) DefaultColor() ThumbnailColor {
	switch t {
	case TopicBusiness:
		return ColorBlue
	case TopicTravel:
		return ColorMint
	case TopicCulture:
		return ColorLilac
	default:
		return ColorPeach
	}
}

// JLPTLevel is the target proficiency level of a clip
type JLPTLevel string

const (
	LevelN2 JLPTLevel = "N2"
	LevelN3 JLPTLevel = "N3"
)

// DefaultLevel is used when a level is not supplied
const DefaultLevel = LevelN3

// IsValid reports whether the level is supported
func (l JLPTLevel) IsValid() bool {
	return l == LevelN2 || l == LevelN3
}

// ThumbnailColor is the card color shown by the client
type ThumbnailColor string

const (
	ColorPeach ThumbnailColor = "peach"
	ColorBlue  ThumbnailColor = "blue"
	ColorMint  ThumbnailColor = "mint"
	ColorLilac ThumbnailColor = "lilac"
)

// IsValid reports whether the color is supported
func (c ThumbnailColor) IsValid() bool {
	switch c {
	case ColorPeach, ColorBlue, ColorMint, ColorLilac:
		return true
	default:
		return false
	}
}

// DefaultDuration is the duration in seconds stored when probing fails
const DefaultDuration = 60

// Audio represents a listening clip with its transcript
type Audio struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Topic          Topic           `json:"topic"`
	JLPTLevel      JLPTLevel       `json:"jlptLevel"`
	AudioURL       string          `json:"audioUrl"`
	StorageKey     string          `json:"-"`
	Duration       int             `json:"duration"` // Seconds
	ThumbnailColor ThumbnailColor  `json:"thumbnailColor"`
	Transcript     *string         `json:"transcript"`
	TranscriptJSON json.RawMessage `json:"transcriptJson,omitempty"`
	IsPublished    bool            `json:"isPublished"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// HasTranscript reports whether a transcript with more than whitespace is stored
func (a *Audio) HasTranscript() bool {
	return a.Transcript != nil && strings.TrimSpace(*a.Transcript) != ""
}

// AudioListItem is the catalogue view of a clip
type AudioListItem struct {
	Audio
	QuizCount int `json:"quizCount"`
}

// AudioDetail is a clip together with its ordered quizzes
type AudioDetail struct {
	Audio
	Quizzes []Quiz `json:"quizzes"`
}

// AudioFilter holds catalogue query parameters
type AudioFilter struct {
	Topic              Topic
	JLPTLevel          JLPTLevel
	IncludeUnpublished bool
	Page               int
	Limit              int
}

// AudioPage is a page of catalogue results
type AudioPage struct {
	Data       []AudioListItem `json:"data"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// TopicStat is the published clip count of one topic
type TopicStat struct {
	ID    Topic  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
	Count int    `json:"count"`
}

// CreateAudioRequest creates a record for media that is already stored
type CreateAudioRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Topic          Topic          `json:"topic"`
	JLPTLevel      JLPTLevel      `json:"jlptLevel"`
	AudioURL       string         `json:"audioUrl"`
	Duration       int            `json:"duration"`
	ThumbnailColor ThumbnailColor `json:"thumbnailColor"`
	Transcript     *string        `json:"transcript"`
}

// UpdateAudioRequest holds a partial update, nil fields are left unchanged
type UpdateAudioRequest struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Topic          *Topic          `json:"topic"`
	JLPTLevel      *JLPTLevel      `json:"jlptLevel"`
	ThumbnailColor *ThumbnailColor `json:"thumbnailColor"`
	Transcript     *string         `json:"transcript"`
	IsPublished    *bool           `json:"isPublished"`
}

// UploadAudioRequest carries an uploaded file and its metadata
type UploadAudioRequest struct {
	Filename       string
	ContentType    string
	Data           []byte
	Title          string
	Description    string
	Topic          Topic
	JLPTLevel      JLPTLevel
	ThumbnailColor ThumbnailColor
	// AutoProcess starts background transcription and quiz generation after the record is created
	AutoProcess bool
}

// TranscriptResult is returned by an on-demand transcription
type TranscriptResult struct {
	AudioID    string          `json:"audioId"`
	Transcript string          `json:"transcript"`
	Segments   json.RawMessage `json:"segments,omitempty"`
	Cached     bool            `json:"cached"`
}
