package replica

import (
	"encoding/json"

	"golang.org/x/text/unicode/norm"

	"github.com/scenesync/server/internal/patch"
)

type TextAnchor string

const (
	AnchorTopLeft      TextAnchor = "TopLeft"
	AnchorTopCenter    TextAnchor = "TopCenter"
	AnchorTopRight     TextAnchor = "TopRight"
	AnchorMiddleLeft   TextAnchor = "MiddleLeft"
	AnchorMiddleCenter TextAnchor = "MiddleCenter"
	AnchorMiddleRight  TextAnchor = "MiddleRight"
	AnchorBottomLeft   TextAnchor = "BottomLeft"
	AnchorBottomCenter TextAnchor = "BottomCenter"
	AnchorBottomRight  TextAnchor = "BottomRight"
)

func (a TextAnchor) Normalize() TextAnchor {
	switch a {
	case AnchorTopLeft, AnchorTopCenter, AnchorTopRight,
		AnchorMiddleLeft, AnchorMiddleCenter, AnchorMiddleRight,
		AnchorBottomLeft, AnchorBottomCenter, AnchorBottomRight:
		return a
	}
	return AnchorTopLeft
}

const DefaultTextHeight = 1.0

// Text is a floating label. Contents are stored NFC-normalized so that the
// scene digest does not depend on which peer composed the string.
type Text struct {
	contents string
	Anchor   TextAnchor
	Height   float64
	Enabled  bool
}

func NewText(contents string) *Text {
	t := &Text{Anchor: AnchorTopLeft, Height: DefaultTextHeight, Enabled: true}
	t.SetContents(contents)
	return t
}

func (t *Text) Contents() string     { return t.contents }
func (t *Text) SetContents(s string) { t.contents = norm.NFC.String(s) }

func (t *Text) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("contents", patch.String(t.contents)).
		Set("anchor", patch.String(string(t.Anchor.Normalize()))).
		Set("height", patch.Number(t.Height)).
		Set("enabled", patch.Bool(t.Enabled)))
}

func (t *Text) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "text")
	if err != nil {
		return err
	}
	if reset {
		*t = *NewText("")
		return nil
	}
	next := *t
	if s, present, err := readString(o, "contents"); err != nil {
		return err
	} else if present {
		next.SetContents(s)
	}
	if s, present, err := readString(o, "anchor"); err != nil {
		return err
	} else if present {
		next.Anchor = TextAnchor(s).Normalize()
	}
	if h, present, err := readNumber(o, "height"); err != nil {
		return err
	} else if present {
		if h <= 0 {
			h = DefaultTextHeight
		}
		next.Height = h
	}
	if raw, ok := o.Get("enabled"); ok {
		if raw.IsNull() {
			next.Enabled = true
		} else if next.Enabled, _, err = readBool(o, "enabled"); err != nil {
			return err
		}
	}
	*t = next
	return nil
}

func (t *Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToWireValue())
}
