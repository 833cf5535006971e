package content

import (
	"fmt"
	"unicode/utf8"
)

// Form selects the filename layout.
type Form int

const (
	FormShort Form = iota // {status}_{YYYYMMDD}_{slug[:22]}.{ext}
	FormLong              // {status}_{YYYYMMDD_HH-MM-SS}_{slug}.{ext}
)

// ShortSlugLen is the number of slug characters kept in short-form names.
const ShortSlugLen = 22

const (
	shortDateLayout = "20060102"
	longDateLayout  = "20060102_15-04-05"
)

// BaseSlug returns the slug used for naming: the platform slug if set,
// else the slugified title, else a token derived from the ID.
func BaseSlug(p *Post) string {
	if p.Slug != "" {
		return p.Slug
	}
	if s := Slugify(p.Title); s != "" {
		return s
	}
	return "post-" + Slugify(p.ID)
}

// DeriveName returns the archive filename for p. It is a pure function of
// the post's status, creation time, slug, and title.
func DeriveName(p *Post, form Form, extension string) string {
	slug := BaseSlug(p)
	status := p.Status.Token()

	if form == FormLong {
		return fmt.Sprintf("%s_%s_%s.%s", status, p.CreatedAt.Format(longDateLayout), slug, extension)
	}
	return fmt.Sprintf("%s_%s_%s.%s", status, p.CreatedAt.Format(shortDateLayout), truncateRunes(slug, ShortSlugLen), extension)
}

// MaxShortNameLen returns the maximum rune length of a short-form name for
// the given status and extension.
func MaxShortNameLen(status Status, extension string) int {
	return utf8.RuneCountInString(status.Token()) + 1 + len(shortDateLayout) + 1 + ShortSlugLen + 1 + utf8.RuneCountInString(extension)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
