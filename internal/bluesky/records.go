package bluesky

import "time"

// Lexicon identifiers used when building records.
const (
	PostCollection    = "app.bsky.feed.post"
	TagFeatureType    = "app.bsky.richtext.facet#tag"
	ExternalEmbedType = "app.bsky.embed.external"
	externalType      = "app.bsky.embed.external#external"
)

// Session is the token pair and identity returned by createSession.
type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Handle     string `json:"handle"`
	DID        string `json:"did"`
}

// BlobRef represents an AT Protocol blob reference for uploaded content.
type BlobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// PostRecord is the record body for app.bsky.feed.post.
type PostRecord struct {
	Type      string         `json:"$type"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
	Langs     []string       `json:"langs,omitempty"`
	Facets    []Facet        `json:"facets,omitempty"`
	Embed     *ExternalEmbed `json:"embed,omitempty"`
}

// NewPostRecord returns a post record stamped with createdAt in RFC 3339 UTC.
func NewPostRecord(text string, createdAt time.Time, langs []string) PostRecord {
	return PostRecord{
		Type:      PostCollection,
		Text:      text,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
		Langs:     langs,
	}
}

// Facet annotates a byte range of the post text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a half-open UTF-8 byte range into the post text.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is the rich-text feature attached to a facet. Only tags are
// produced here.
type FacetFeature struct {
	Type string `json:"$type"`
	Tag  string `json:"tag"`
}

// NewTagFacet returns a facet linking text[start:end] to the given tag.
func NewTagFacet(start, end int, tag string) Facet {
	return Facet{
		Index:    ByteSlice{ByteStart: start, ByteEnd: end},
		Features: []FacetFeature{{Type: TagFeatureType, Tag: tag}},
	}
}

// ExternalEmbed is the link-preview card attached to a post.
type ExternalEmbed struct {
	Type     string   `json:"$type"`
	External External `json:"external"`
}

// External is the body of an external embed.
type External struct {
	Type        string   `json:"$type"`
	URI         string   `json:"uri"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumb       *BlobRef `json:"thumb,omitempty"`
}

// NewExternalEmbed builds a link card. thumb may be nil.
func NewExternalEmbed(uri, title, description string, thumb *BlobRef) *ExternalEmbed {
	return &ExternalEmbed{
		Type: ExternalEmbedType,
		External: External{
			Type:        externalType,
			URI:         uri,
			Title:       title,
			Description: description,
			Thumb:       thumb,
		},
	}
}

// CreateRecordResponse is the result of com.atproto.repo.createRecord.
type CreateRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type createSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type uploadBlobResponse struct {
	Blob BlobRef `json:"blob"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
