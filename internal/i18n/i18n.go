// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// New returns a localizer for loc. loc is either a BCP 47 tag or a POSIX locale like
// "de_DE.UTF-8". An empty loc uses the locale of the environment. Languages without a
// catalog fall back to English.
func New(loc string) (*spreak.Localizer, error) {
	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}
	tag := Resolve(loc)

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// Languages returns English followed by every language a catalog is embedded for.
func Languages() []language.Tag {
	tags := []language.Tag{language.English}
	entries, err := locales.ReadDir("locale")
	if err != nil {
		return tags
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".po" {
			continue
		}
		tag, err := language.Parse(strings.TrimSuffix(name, ".po"))
		if err != nil || tag == language.English {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// Resolve maps loc to the closest language in Languages.
func Resolve(loc string) language.Tag {
	var tag language.Tag
	if loc == "" {
		detected, err := locale.Detect()
		if err != nil {
			return language.English
		}
		tag = detected
	} else {
		parsed, err := language.Parse(posixToBCP47(loc))
		if err != nil {
			return language.English
		}
		tag = parsed
	}

	supported := Languages()
	_, idx, confidence := language.NewMatcher(supported).Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supported[idx]
}

// posixToBCP47 strips the codeset and modifier of a POSIX locale, "de_DE.UTF-8@euro"
// becomes "de-DE".
func posixToBCP47(loc string) string {
	if idx := strings.IndexAny(loc, ".@"); idx != -1 {
		loc = loc[:idx]
	}
	return strings.ReplaceAll(loc, "_", "-")
}
