package browser

import (
	"strings"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// Kind is a configured browser name.
type Kind string

const (
	KindChrome   Kind = "chrome"
	KindEdge     Kind = "msedge"
	KindChromium Kind = "chromium"
	KindFirefox  Kind = "firefox"
	KindWebKit   Kind = "webkit"
)

// ParseKind normalizes a configured browser name. Blank or unknown names fall back
// to chrome.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindChrome, KindEdge, KindChromium, KindFirefox, KindWebKit:
		return k
	case "edge":
		return KindEdge
	default:
		return KindChrome
	}
}

// Family reports which rendering engine drives this kind.
func (k Kind) Family() schemas.BrowserFamily {
	switch k {
	case KindFirefox:
		return schemas.FamilyFirefox
	case KindWebKit:
		return schemas.FamilyWebKit
	default:
		return schemas.FamilyChromium
	}
}

// Channel is the branded distribution to launch, or "" for the bundled build.
func (k Kind) Channel() string {
	switch k {
	case KindChrome, KindEdge:
		return string(k)
	default:
		return ""
	}
}
