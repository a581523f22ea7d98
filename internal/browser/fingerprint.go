package browser

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shehryarbajwa/campaign-engine/pkg/models"
)

// localeZone pairs a locale with a timezone that plausibly matches it;
// mismatched pairs are a common automation tell.
type localeZone struct {
	locale   string
	timezone string
}

var localeZones = []localeZone{
	{"en-US", "America/New_York"},
	{"en-US", "America/Chicago"},
	{"en-US", "America/Los_Angeles"},
	{"en-GB", "Europe/London"},
	{"en-CA", "America/Toronto"},
	{"de-DE", "Europe/Berlin"},
	{"fr-FR", "Europe/Paris"},
	{"es-ES", "Europe/Madrid"},
	{"en-AU", "Australia/Sydney"},
	{"nl-NL", "Europe/Amsterdam"},
}

var userAgents = []struct {
	ua       string
	platform string
}{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "Win32"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36", "Win32"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "MacIntel"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15", "MacIntel"},
	{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "Linux x86_64"},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", "Win32"},
}

var screenSizes = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{2560, 1440},
	{1680, 1050},
}

// FingerprintGenerator draws randomized but internally consistent
// browser fingerprints.
type FingerprintGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFingerprintGenerator creates a generator. A nil rng gets a
// time-based seed.
func NewFingerprintGenerator(rng *rand.Rand) *FingerprintGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &FingerprintGenerator{rng: rng}
}

// Generate draws a fresh fingerprint.
func (g *FingerprintGenerator) Generate() models.Fingerprint {
	g.mu.Lock()
	defer g.mu.Unlock()

	agent := userAgents[g.rng.Intn(len(userAgents))]
	screen := screenSizes[g.rng.Intn(len(screenSizes))]
	lz := localeZones[g.rng.Intn(len(localeZones))]

	scale := 1.0
	if g.rng.Float64() < 0.3 {
		scale = 2.0
	}

	return models.Fingerprint{
		UserAgent:    agent.ua,
		Platform:     agent.platform,
		ScreenWidth:  screen[0],
		ScreenHeight: screen[1],
		Locale:       lz.locale,
		Timezone:     lz.timezone,
		ScaleFactor:  scale,
	}
}

// StealthScript renders the anti-automation overrides injected once at
// context creation: webdriver flag, plugin enumeration, and noise on
// canvas/WebGL readbacks.
func StealthScript(fp models.Fingerprint) string {
	return fmt.Sprintf(`(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  Object.defineProperty(navigator, 'platform', { get: () => %q });
  Object.defineProperty(navigator, 'language', { get: () => %q });
  Object.defineProperty(navigator, 'languages', { get: () => [%q, 'en'] });
  Object.defineProperty(navigator, 'plugins', {
    get: () => [
      { name: 'PDF Viewer', filename: 'internal-pdf-viewer' },
      { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer' },
      { name: 'Native Client', filename: 'internal-nacl-plugin' },
    ],
  });
  const getParameter = WebGLRenderingContext.prototype.getParameter;
  WebGLRenderingContext.prototype.getParameter = function (param) {
    if (param === 37445) return 'Intel Inc.';
    if (param === 37446) return 'Intel Iris OpenGL Engine';
    return getParameter.call(this, param);
  };
  const toDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function (...args) {
    const ctx = this.getContext('2d');
    if (ctx && this.width > 0 && this.height > 0) {
      const pixel = ctx.getImageData(0, 0, 1, 1);
      pixel.data[0] = pixel.data[0] ^ 1;
      ctx.putImageData(pixel, 0, 0);
    }
    return toDataURL.apply(this, args);
  };
})();`, fp.Platform, fp.Locale, fp.Locale)
}
