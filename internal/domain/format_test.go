package domain

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/rivo/uniseg"
)

func TestHashtags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tags []Tag
		want string
	}{
		{"empty", nil, ""},
		{"names lower-cased", []Tag{{Name: "News"}, {Name: "AI"}}, "#news #ai"},
		{"slug wins over name", []Tag{{Name: "Go Lang", Slug: "golang"}}, "#golang"},
		{"special characters stripped", []Tag{{Slug: "c++"}, {Slug: "node.js"}, {Slug: "open-source"}}, "#c #nodejs #open-source"},
		{"leading hyphen dropped", []Tag{{Slug: "-meta"}, {Slug: "ok"}}, "#ok"},
		{"nothing left dropped", []Tag{{Slug: "日本"}, {Slug: "!!"}}, ""},
		{"order preserved", []Tag{{Slug: "zeta"}, {Slug: "alpha"}, {Slug: "2024"}}, "#zeta #alpha #2024"},
	}

	valid := regexp.MustCompile(`^#[a-z0-9][a-z0-9-]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Hashtags(tt.tags)
			if got != tt.want {
				t.Errorf("Hashtags() = %q, want %q", got, tt.want)
			}
			for _, tok := range strings.Fields(got) {
				if !valid.MatchString(tok) {
					t.Errorf("token %q does not match %s", tok, valid)
				}
			}
		})
	}
}

func TestCashtags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"NASDAQ:AAPL, NYSE:GOOGL, NASDAQ:MSFT", "$AAPL $GOOGL $MSFT"},
		{"BOM:500.325", "$500.325"},
		{"AAPL, NYSE:ibm, NYSE:IBM", "$IBM"},
		{" NYSE : BRK.B ", "$BRK.B"},
	}
	for _, tt := range tests {
		if got := Cashtags(tt.in); got != tt.want {
			t.Errorf("Cashtags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	t.Run("short text unchanged", func(t *testing.T) {
		in := strings.Repeat("a", MaxGraphemes)
		if got := Truncate(in); got != in {
			t.Errorf("Truncate changed a %d grapheme string", MaxGraphemes)
		}
	})

	t.Run("long text cut to 297 plus ellipsis", func(t *testing.T) {
		got := Truncate(strings.Repeat("a", MaxGraphemes+1))
		want := strings.Repeat("a", 297) + "..."
		if got != want {
			t.Errorf("Truncate() = %q, want %q", got, want)
		}
	})

	t.Run("graphemes not bytes", func(t *testing.T) {
		thumb := "👍🏽"
		in := strings.Repeat(thumb, 250)
		if got := Truncate(in); got != in {
			t.Error("Truncate cut 250 multi-codepoint graphemes")
		}

		got := Truncate(strings.Repeat(thumb, 400))
		if n := uniseg.GraphemeClusterCount(got); n != MaxGraphemes {
			t.Errorf("grapheme count = %d, want %d", n, MaxGraphemes)
		}
		if want := strings.Repeat(thumb, 297) + "..."; got != want {
			t.Error("truncated text is not the first 297 graphemes plus ellipsis")
		}
	})

	t.Run("markup and entities", func(t *testing.T) {
		tests := []struct {
			in, want string
		}{
			{"<p>Hello <b>world</b></p>", "Hello world"},
			{"Tom &amp; Jerry &#8211; a classic", "Tom & Jerry – a classic"},
			{"<script>alert(1)</script>Hi<style>p{}</style>", "Hi"},
			{"  padded  ", "padded"},
			{"AT&T stays", "AT&T stays"},
		}
		for _, tt := range tests {
			if got := Truncate(tt.in); got != tt.want {
				t.Errorf("Truncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		}
	})
}

func TestFacets(t *testing.T) {
	t.Parallel()

	text := "Café ☕ notes #news and #AI"
	facets := Facets(text, "#news #ai #missing")
	if len(facets) != 2 {
		t.Fatalf("got %d facets, want 2", len(facets))
	}

	checks := []struct {
		substr string
		tag    string
	}{
		{"#news", "news"},
		{"#AI", "ai"},
	}
	for i, c := range checks {
		p := strings.Index(text, c.substr)
		f := facets[i]
		if f.Index.ByteStart != p || f.Index.ByteEnd != p+len(c.substr) {
			t.Errorf("facet %d = [%d,%d), want [%d,%d)", i, f.Index.ByteStart, f.Index.ByteEnd, p, p+len(c.substr))
		}
		if got := text[f.Index.ByteStart:f.Index.ByteEnd]; !strings.EqualFold(got, c.substr) {
			t.Errorf("facet %d covers %q", i, got)
		}
		if len(f.Features) != 1 || f.Features[0].Tag != c.tag || f.Features[0].Type != "app.bsky.richtext.facet#tag" {
			t.Errorf("facet %d features = %+v", i, f.Features)
		}
	}
}

func TestFacets_PrefixOfLongerTag(t *testing.T) {
	t.Parallel()

	text := "#aid day #ai"
	facets := Facets(text, "#ai")
	if len(facets) != 1 {
		t.Fatalf("got %d facets, want 1", len(facets))
	}
	if want := strings.LastIndex(text, "#ai"); facets[0].Index.ByteStart != want {
		t.Errorf("ByteStart = %d, want %d", facets[0].Index.ByteStart, want)
	}
}

func TestFacets_Cashtags(t *testing.T) {
	t.Parallel()

	text := "Apple and Google stocks. $AAPL $GOOGL $BRK.B"
	facets := Facets(text, "#stocks $AAPL $GOOGL $BRK.B")
	if len(facets) != 3 {
		t.Fatalf("got %d facets, want 3", len(facets))
	}
	if got := facets[2].Features[0].Tag; got != "brk.b" {
		t.Errorf("tag = %q, want brk.b", got)
	}
	p := strings.Index(text, "$BRK.B")
	if facets[2].Index.ByteStart != p || facets[2].Index.ByteEnd != len(text) {
		t.Errorf("facet = %+v, want start %d end %d", facets[2].Index, p, len(text))
	}
}

func TestInlineHashtags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no match inside a word", "XChat sarà una piattaforma di messaggistica #x", "XChat sarà una piattaforma di messaggistica #x"},
		{"standalone word", "La piattaforma X sarà lanciata #x", "La piattaforma #X sarà lanciata"},
		{"casing preserved", "WhatsApp è popolare #whatsapp", "#WhatsApp è popolare"},
		{"two tags", "Parliamo di WhatsApp e Telegram #whatsapp #telegram", "Parliamo di #WhatsApp e #Telegram"},
		{"partial", "XChat e WhatsApp sono app #x #whatsapp", "XChat e #WhatsApp sono app #x"},
		{"hyphenated tag stays", "Open source wins #open-source", "Open source wins #open-source"},
		{"url untouched", "Read https://example.com/news/today #news", "Read https://example.com/news/today #news"},
		{"cashtag", "Apple (AAPL) beats estimates #earnings $AAPL", "Apple ($AAPL) beats estimates #earnings"},
		{"no trailing tags", "Nothing to do here", "Nothing to do here"},
		{"only tags", "#a #b", "#a #b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InlineHashtags(tt.in)
			if got != tt.want {
				t.Errorf("InlineHashtags(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := InlineHashtags(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func testSettings() Settings {
	return Settings{
		Handle:       "alice.bsky.social",
		AppPassword:  "xxxx-xxxx-xxxx-xxxx",
		PostTemplate: DefaultPostTemplate,
		Language:     "en_US",
		MaxAttempts:  3,
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.DiscardHandler)

	post := Post{
		ID:    1,
		Title: "Hello World",
		Link:  "https://x.com/p/1",
		Tags:  []Tag{{Name: "News"}, {Name: "AI"}},
	}

	tests := []struct {
		name   string
		modify func(*Settings)
		post   func(*Post)
		want   string
	}{
		{
			name:   "basic template",
			modify: func(s *Settings) { s.PostTemplate = "{title} {link} {hashtags}" },
			want:   "Hello World https://x.com/p/1 #news #ai",
		},
		{
			name: "default template",
			want: "Hello World - https://x.com/p/1",
		},
		{
			name:   "unknown placeholder removed",
			modify: func(s *Settings) { s.PostTemplate = "{title}{author} {link}" },
			want:   "Hello World https://x.com/p/1",
		},
		{
			name: "fallback replaces empty excerpt",
			modify: func(s *Settings) {
				s.PostTemplate = "{title}: {excerpt}"
				s.FallbackText = "New on the blog {hashtags}{excerpt}"
			},
			want: "Hello World: New on the blog #news #ai",
		},
		{
			name:   "excerpt wins over fallback",
			modify: func(s *Settings) { s.PostTemplate = "{excerpt}"; s.FallbackText = "fallback" },
			post:   func(p *Post) { p.Excerpt = "<p>An <em>excerpt</em></p>" },
			want:   "An excerpt",
		},
		{
			name:   "title entities decoded",
			modify: func(s *Settings) { s.PostTemplate = "{title}" },
			post:   func(p *Post) { p.Title = "Q&amp;A &#8220;live&#8221;" },
			want:   "Q&A “live”",
		},
		{
			name: "inline hashtags",
			modify: func(s *Settings) {
				s.PostTemplate = "{title} about AI {hashtags}"
				s.InlineHashtags = true
			},
			want: "Hello World about #AI #news",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings()
			if tt.modify != nil {
				tt.modify(&s)
			}
			p := post
			if tt.post != nil {
				tt.post(&p)
			}
			got := NewFormatter(s, logger).Format(context.Background(), NewResolver(p, s))
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_TruncatesAssembledMessage(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.PostTemplate = "{title} {excerpt} {link}"
	post := Post{
		Title:   "Title",
		Excerpt: strings.Repeat("word ", 100),
		Link:    "https://example.com/a-long-permalink",
	}

	got := NewFormatter(s, slog.New(slog.DiscardHandler)).Format(context.Background(), NewResolver(post, s))
	if n := uniseg.GraphemeClusterCount(got); n != MaxGraphemes {
		t.Errorf("grapheme count = %d, want %d", n, MaxGraphemes)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("message %q has no ellipsis", got)
	}
}

func TestResolver_SEOPriority(t *testing.T) {
	t.Parallel()

	post := Post{
		Title:    "Native title",
		Excerpt:  "Native excerpt",
		ImageURL: "https://example.com/native.jpg",
		Meta: map[string]string{
			MetaSEOTitle:             "SEO title",
			MetaSEODescription:       "SEO description",
			MetaOpenGraphDescription: "Social description",
			MetaOpenGraphImage:       "https://example.com/og.jpg",
			MetaStockTickers:         "NASDAQ:AAPL",
		},
		Tags: []Tag{{Slug: "apple"}},
	}

	s := testSettings()
	r := NewResolver(post, s)
	if r.Title() != "Native title" || r.Excerpt() != "Native excerpt" || r.ImageURL() != post.ImageURL {
		t.Errorf("SEO metadata used while disabled: %q %q %q", r.Title(), r.Excerpt(), r.ImageURL())
	}
	if r.Hashtags() != "#apple" {
		t.Errorf("Hashtags() = %q, want cashtags only with SEO metadata", r.Hashtags())
	}

	s.UseSEOMetadata = true
	r = NewResolver(post, s)
	if got := r.Title(); got != "SEO title" {
		t.Errorf("Title() = %q, want SEO title", got)
	}
	if got := r.Excerpt(); got != "Social description" {
		t.Errorf("Excerpt() = %q, want social description", got)
	}
	if got := r.ImageURL(); got != "https://example.com/og.jpg" {
		t.Errorf("ImageURL() = %q", got)
	}
	if got := r.Hashtags(); got != "#apple $AAPL" {
		t.Errorf("Hashtags() = %q, want %q", got, "#apple $AAPL")
	}
}

func TestResolver_CachesPerFlow(t *testing.T) {
	t.Parallel()

	post := Post{Title: "First"}
	r := NewResolver(post, testSettings())
	_ = r.Title()
	r.post.Title = "Changed"
	if got := r.Title(); got != "First" {
		t.Errorf("Title() = %q, want cached value", got)
	}
}

func TestResolver_Link(t *testing.T) {
	t.Parallel()

	post := Post{ID: 42, Slug: "hello-world", Link: "http://internal.local/2024/hello-world/?lang=en"}

	tests := []struct {
		name   string
		modify func(*Settings)
		want   string
	}{
		{"unchanged", nil, "http://internal.local/2024/hello-world/?lang=en"},
		{"base url", func(s *Settings) { s.BaseURL = "https://blog.example.com" }, "https://blog.example.com/2024/hello-world/?lang=en"},
		{"base url with path", func(s *Settings) { s.BaseURL = "https://example.com/blog/" }, "https://example.com/blog/2024/hello-world/?lang=en"},
		{
			"utm",
			func(s *Settings) {
				s.LinkTracking = true
				s.UTM = UTM{Source: "bluesky", Medium: "social", Campaign: "post-{id}", Content: "{slug}"}
			},
			"http://internal.local/2024/hello-world/?lang=en&utm_campaign=post-42&utm_content=hello-world&utm_medium=social&utm_source=bluesky",
		},
		{"tracking without params", func(s *Settings) { s.LinkTracking = true }, "http://internal.local/2024/hello-world/?lang=en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings()
			if tt.modify != nil {
				tt.modify(&s)
			}
			if got := NewResolver(post, s).Link(); got != tt.want {
				t.Errorf("Link() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_LinkQueryKeepsAmpersands(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.PostTemplate = "{title} {link}"
	post := Post{Title: "Hello", Link: "https://blog.example/p?id=1&region=eu&copy=2&para=3&sect=4"}

	got := NewFormatter(s, slog.New(slog.DiscardHandler)).Format(context.Background(), NewResolver(post, s))
	if want := "Hello https://blog.example/p?id=1&region=eu&copy=2&para=3&sect=4"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestDecodeEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"&#8220;quoted&#8221; &#x263A;", "“quoted” ☺"},
		{"?a=1&copy=2&region=eu", "?a=1&copy=2&region=eu"},
		{"&copy 2025", "&copy 2025"},
		{"&copy; 2025", "© 2025"},
		{"&bogus; stays", "&bogus; stays"},
	}
	for _, tt := range tests {
		if got := DecodeEntities(tt.in); got != tt.want {
			t.Errorf("DecodeEntities(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolver_PreviewDescription(t *testing.T) {
	t.Parallel()

	post := Post{Title: "Hello", Link: "https://blog.example/p/1"}

	tests := []struct {
		name     string
		excerpt  string
		fallback string
		want     string
	}{
		{"fallback for empty excerpt", "", "Read {title} now", "Read Hello now"},
		{"excerpt wins", "<p>The <b>excerpt</b></p>", "Read {title} now", "The excerpt"},
		{"no fallback", "", "", ""},
		{"fallback drops unknown placeholders", " ", "New: {title}{author}", "New: Hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings()
			s.FallbackText = tt.fallback
			p := post
			p.Excerpt = tt.excerpt
			if got := NewResolver(p, s).Preview().Description; got != tt.want {
				t.Errorf("Preview().Description = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_FallbackMatchesPreview(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.PostTemplate = "{excerpt} {link}"
	s.FallbackText = "Read {title} now"
	r := NewResolver(Post{Title: "Hello", Link: "https://blog.example/p/1"}, s)

	got := NewFormatter(s, slog.New(slog.DiscardHandler)).Format(context.Background(), r)
	if want := "Read Hello now https://blog.example/p/1"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
	if d := r.Preview().Description; d != "Read Hello now" {
		t.Errorf("Preview().Description = %q, want %q", d, "Read Hello now")
	}
}
