package fetcher

import "math/rand"

// Class groups user agents by the kind of client they impersonate, used to
// weight the random draw in §4.3 step 4.
type Class int

const (
	// ClassAll draws from the full pool regardless of device shape.
	ClassAll Class = iota
	ClassDesktop
	ClassMobile
)

// agent pairs a UA string with the device class it belongs to and whether
// it is Chrome/Edge-shaped (and therefore gets Sec-Ch-Ua* headers).
type agent struct {
	ua       string
	class    Class
	chromium bool
}

var pool = []agent{
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", ClassDesktop, true},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", ClassDesktop, true},
	{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edg/124.0.0.0 Safari/537.36", ClassDesktop, true},
	{"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0", ClassDesktop, false},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15", ClassDesktop, false},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1", ClassMobile, false},
	{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36", ClassMobile, true},
}

// Pick draws a random user agent for the given class, falling back to the
// full pool when the class has no members or is ClassAll.
func Pick(class Class) agent {
	candidates := pool
	if class != ClassAll {
		filtered := make([]agent, 0, len(pool))
		for _, a := range pool {
			if a.class == class {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	return candidates[rand.Intn(len(candidates))]
}
