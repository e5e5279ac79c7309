// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"

	"github.com/wneessen/locator/internal/config"
	"github.com/wneessen/locator/internal/location"
)

// TemplateContext is the data the text and tooltip templates are rendered with.
type TemplateContext struct {
	Known    bool
	Position location.Position
	Platform string
	Status   string
	Updating bool
	Class    string

	Icon          string
	IconWithSpace string
	Age           string
	UpdateTime    time.Time
	Sunrise       time.Time
	Sunset        time.Time
}

// Output is the JSON object a waybar custom module expects.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

type Presenter struct {
	text      *template.Template
	tooltip   *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	now       func() time.Time
}

// New parses the configured templates. The templates are test rendered once, so that
// references to unknown fields surface right away instead of on every output.
func New(conf *config.Config, localizer *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	pres := &Presenter{
		localizer: localizer,
		humanizer: collection.CreateHumanizer(localizer.Language()),
		now:       time.Now,
	}

	if pres.text, err = template.New("text").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Text); err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	if pres.tooltip, err = template.New("tooltip").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Tooltip); err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}

	probe := pres.BuildContext(location.Update{Position: location.Position{Timestamp: time.Now()}, Known: true},
		location.AuthorizedAlways, true, "probe")
	if _, err = pres.Render(probe); err != nil {
		return nil, err
	}
	return pres, nil
}

// BuildContext assembles the template data for the given observable state.
func (p *Presenter) BuildContext(update location.Update, status location.AuthorizationStatus, updating bool,
	platform string,
) TemplateContext {
	ctx := TemplateContext{
		Known:    update.Known,
		Position: update.Position,
		Platform: platform,
		Updating: updating,
	}

	switch {
	case status == location.Denied || status == location.Restricted:
		ctx.Class = ClassDenied
		ctx.Status = p.localizer.Get(StatusMessages[status])
	case update.Known:
		ctx.Class = ClassLocated
		ctx.Status = p.localizer.Get(StatusMessages[status])
	case updating:
		ctx.Class = ClassLocating
		ctx.Status = p.localizer.Get(msgLocating)
	default:
		ctx.Class = ClassIdle
		ctx.Status = p.localizer.Get(msgNoLocation)
	}
	ctx.Icon = ClassIcon[ctx.Class]
	ctx.IconWithSpace = EmojiWithSpace(ctx.Icon)

	if update.Known {
		now := p.now()
		ctx.UpdateTime = update.Position.Timestamp
		if !ctx.UpdateTime.IsZero() {
			ctx.Age = p.humanizer.NaturalTime(ctx.UpdateTime)
		}
		ctx.Sunrise, ctx.Sunset = sunrise.SunriseSunset(update.Position.Lat, update.Position.Lon,
			now.Year(), now.Month(), now.Day())
		ctx.Sunrise, ctx.Sunset = ctx.Sunrise.Local(), ctx.Sunset.Local()
	}
	return ctx
}

// Render executes the templates with ctx.
func (p *Presenter) Render(ctx TemplateContext) (Output, error) {
	out := Output{Class: ctx.Class}
	buf := bytes.NewBuffer(nil)
	if err := p.text.Execute(buf, ctx); err != nil {
		return out, fmt.Errorf("failed to render text template: %w", err)
	}
	out.Text = buf.String()

	buf.Reset()
	if err := p.tooltip.Execute(buf, ctx); err != nil {
		return out, fmt.Errorf("failed to render tooltip template: %w", err)
	}
	out.Tooltip = buf.String()
	return out, nil
}
