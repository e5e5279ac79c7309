// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
)

func (p *Presenter) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    p.timeFormat,
		"localizedTime": p.localizedTime,
		"floatFormat":   p.floatFormat,
		"loc":           p.loc,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
		"emojiSpace":    EmojiWithSpace,
		"dms":           dms,
		"distance":      distance,
	}
}

func (p *Presenter) loc(val string) string {
	if raw, ok := i18nVars[strings.ToLower(val)]; ok {
		return p.localizer.Get(raw)
	}
	return val
}

func (p *Presenter) localizedTime(val time.Time) string {
	return p.humanizer.FormatTime(val, humanize.TimeFormat)
}

func (p *Presenter) timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}

func (p *Presenter) floatFormat(val float64, precision int) string {
	pow := math.Pow(10, float64(precision))
	return fmt.Sprintf("%.*f", precision, math.Trunc(val*pow)/pow)
}

// EmojiWithSpace pads an emoji so that it takes up the same room in fonts that render it
// one or two cells wide.
func EmojiWithSpace(emoji string) string {
	width := runewidth.StringWidth(emoji)
	return fmt.Sprintf("%s%s", emoji, strings.Repeat(" ", width+1))
}

// dms formats a coordinate in degrees, minutes and seconds with its hemisphere.
func dms(val float64, latitude bool) string {
	hemisphere := "N"
	switch {
	case latitude && val < 0:
		hemisphere = "S"
	case !latitude && val < 0:
		hemisphere = "W"
	case !latitude:
		hemisphere = "E"
	}

	total := int(math.Round(math.Abs(val) * 3600))
	deg, rest := total/3600, total%3600
	return fmt.Sprintf("%d°%02d'%02d\"%s", deg, rest/60, rest%60, hemisphere)
}

// distance formats a length in meters, switching to kilometers from 1 km on.
func distance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
