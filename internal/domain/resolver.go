package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// SEO meta keys read when Settings.UseSEOMetadata is on.
const (
	MetaOpenGraphTitle       = "_yoast_wpseo_opengraph-title"
	MetaOpenGraphDescription = "_yoast_wpseo_opengraph-description"
	MetaOpenGraphImage       = "_yoast_wpseo_opengraph-image"
	MetaSEOTitle             = "_yoast_wpseo_title"
	MetaSEODescription       = "_yoast_wpseo_metadesc"
	MetaStockTickers         = "_yoast_wpseo_newssitemap-stocktickers"
)

// Resolver answers the metadata questions of one publish flow. Each value is
// computed at most once and cached for the life of the Resolver; a Resolver
// must not be reused across posts.
type Resolver struct {
	post     Post
	settings Settings
	cache    map[string]string

	// dropped lists the unknown placeholders removed so far.
	dropped []string
}

// NewResolver returns a Resolver for post.
func NewResolver(post Post, settings Settings) *Resolver {
	return &Resolver{
		post:     post,
		settings: settings,
		cache:    make(map[string]string),
	}
}

func (r *Resolver) memo(key string, fn func() string) string {
	if v, ok := r.cache[key]; ok {
		return v
	}
	v := fn()
	r.cache[key] = v
	return v
}

// meta returns the first non-empty meta value among keys, or "" when SEO
// metadata is disabled.
func (r *Resolver) meta(keys ...string) string {
	if !r.settings.UseSEOMetadata {
		return ""
	}
	for _, k := range keys {
		if v := strings.TrimSpace(r.post.Meta[k]); v != "" {
			return v
		}
	}
	return ""
}

// Title returns the entity-decoded title: social title, then SEO title, then
// the post's own.
func (r *Resolver) Title() string {
	return r.memo("title", func() string {
		title := r.meta(MetaOpenGraphTitle, MetaSEOTitle)
		if title == "" {
			title = r.post.Title
		}
		return DecodeEntities(title)
	})
}

// Excerpt returns the social description, then the SEO description, then the
// post's own excerpt.
func (r *Resolver) Excerpt() string {
	return r.memo("excerpt", func() string {
		if d := r.meta(MetaOpenGraphDescription, MetaSEODescription); d != "" {
			return d
		}
		return r.post.Excerpt
	})
}

// Description returns the excerpt or, when it is empty and a fallback text
// is configured, the expanded fallback text, normalised with Truncate. It is
// both the {excerpt} of the post text and the link card description.
func (r *Resolver) Description() string {
	return r.memo("description", func() string {
		excerpt := r.Excerpt()
		if strings.TrimSpace(excerpt) == "" && r.settings.FallbackText != "" {
			empty := func() string { return "" }
			excerpt = expandTemplate(r.settings.FallbackText, r.values(empty), r.dropPlaceholder)
		}
		return Truncate(excerpt)
	})
}

// values maps each placeholder to its resolver, with excerpt standing in
// for {excerpt}.
func (r *Resolver) values(excerpt func() string) map[placeholder]func() string {
	return map[placeholder]func() string{
		placeholderTitle:    r.Title,
		placeholderExcerpt:  excerpt,
		placeholderLink:     r.Link,
		placeholderHashtags: r.Hashtags,
	}
}

func (r *Resolver) dropPlaceholder(name string) {
	r.dropped = append(r.dropped, name)
}

// ImageURL returns the social image, then the featured image.
func (r *Resolver) ImageURL() string {
	return r.memo("image", func() string {
		if img := r.meta(MetaOpenGraphImage); img != "" {
			return img
		}
		return r.post.ImageURL
	})
}

// Link returns the permalink rewritten onto BaseURL and, when link tracking is
// enabled, carrying the UTM parameters.
func (r *Resolver) Link() string {
	return r.memo("link", func() string {
		return trackedLink(r.post, r.settings)
	})
}

// Hashtags returns the tag hashtags followed by any cashtags.
func (r *Resolver) Hashtags() string {
	return r.memo("hashtags", func() string {
		tags := Hashtags(r.post.Tags)
		cash := Cashtags(r.meta(MetaStockTickers))
		switch {
		case tags == "":
			return cash
		case cash == "":
			return tags
		default:
			return tags + " " + cash
		}
	})
}

// Preview returns the link card data of the post.
func (r *Resolver) Preview() PreviewData {
	return PreviewData{
		URI:         r.Link(),
		Title:       r.Title(),
		Description: r.Description(),
		ThumbURL:    r.ImageURL(),
	}
}

func trackedLink(post Post, settings Settings) string {
	link := rebase(post.Link, settings.BaseURL)
	if !settings.LinkTracking {
		return link
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	expand := strings.NewReplacer("{id}", strconv.FormatInt(post.ID, 10), "{slug}", post.Slug)
	q := u.Query()
	added := false
	for _, p := range []struct{ key, value string }{
		{"utm_source", settings.UTM.Source},
		{"utm_medium", settings.UTM.Medium},
		{"utm_campaign", settings.UTM.Campaign},
		{"utm_term", settings.UTM.Term},
		{"utm_content", settings.UTM.Content},
	} {
		if p.value == "" {
			continue
		}
		q.Set(p.key, expand.Replace(p.value))
		added = true
	}
	if !added {
		return link
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// rebase replaces the scheme and host of link with base. A path on base is
// kept as a prefix.
func rebase(link, base string) string {
	if base == "" || link == "" {
		return link
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || b.Host == "" {
		return link
	}
	u.Scheme = b.Scheme
	u.Host = b.Host
	u.User = b.User
	if b.Path != "" {
		u.Path = b.Path + u.Path
		u.RawPath = ""
	}
	return u.String()
}
