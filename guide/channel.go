package guide

import "encoding/json"

// Channel describes one broadcast channel as listed by the provider.
// Values are only produced by decoding and are never modified afterwards.
type Channel struct {
	id      string
	title   string
	icon    string
	logo    string
	svgLogo string
	sort    uint32
}

// channelWire is the provider's JSON shape. Pointers let the decoder tell
// an absent field from a zero value.
type channelWire struct {
	ID      *string `json:"id"`
	Title   *string `json:"title"`
	Icon    *string `json:"icon"`
	Logo    *string `json:"logo"`
	SVGLogo *string `json:"svgLogo"`
	Sort    *uint32 `json:"sort"`
}

// ID returns the provider's identifier of the channel.
func (c Channel) ID() string { return c.id }

// Title returns the display name.
func (c Channel) Title() string { return c.title }

// Icon returns the URL of the channel icon.
func (c Channel) Icon() string { return c.icon }

// Logo returns the URL of the channel logo.
func (c Channel) Logo() string { return c.logo }

// SVGLogo returns the URL of the channel logo in SVG format.
func (c Channel) SVGLogo() string { return c.svgLogo }

// Sort returns the display ordering key. It is neither unique nor contiguous.
func (c Channel) Sort() uint32 { return c.sort }

// ChannelID implements ChannelRef.
func (c Channel) ChannelID() string { return c.id }

// UnmarshalJSON decodes the wire form. Every field is required.
func (c *Channel) UnmarshalJSON(b []byte) error {
	var w channelWire
	if err := json.Unmarshal(b, &w); err != nil {
		return decodeErr("decode channel", err)
	}
	switch {
	case w.ID == nil:
		return decodeErr("decode channel", missingField("id"))
	case w.Title == nil:
		return decodeErr("decode channel", missingField("title"))
	case w.Icon == nil:
		return decodeErr("decode channel", missingField("icon"))
	case w.Logo == nil:
		return decodeErr("decode channel", missingField("logo"))
	case w.SVGLogo == nil:
		return decodeErr("decode channel", missingField("svgLogo"))
	case w.Sort == nil:
		return decodeErr("decode channel", missingField("sort"))
	}
	*c = Channel{
		id:      *w.ID,
		title:   *w.Title,
		icon:    *w.Icon,
		logo:    *w.Logo,
		svgLogo: *w.SVGLogo,
		sort:    *w.Sort,
	}
	return nil
}

// MarshalJSON encodes the channel with the provider's field names.
func (c Channel) MarshalJSON() ([]byte, error) {
	return json.Marshal(channelWire{
		ID:      &c.id,
		Title:   &c.title,
		Icon:    &c.icon,
		Logo:    &c.logo,
		SVGLogo: &c.svgLogo,
		Sort:    &c.sort,
	})
}
