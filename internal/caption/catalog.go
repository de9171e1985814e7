// Package caption holds the fixed meme template catalog and the keyword
// matcher that turns a free-text prompt into a top/bottom caption pair.
package caption

import (
	"math/rand/v2"
	"strings"
	"sync"
)

// Pair is the top/bottom text overlaid on a generated image.
type Pair struct {
	Top    string `json:"top"`
	Bottom string `json:"bottom"`
}

// Default is the caption shown before anything has been generated.
var Default = Pair{Top: "TOP TEXT", Bottom: "BOTTOM TEXT"}

// AutoCaptionSeed is matched when auto-caption runs without a prompt.
const AutoCaptionSeed = "weird meme"

// Template is a quick-select prompt with its own caption.
type Template struct {
	PromptSeed string `json:"prompt"`
	Caption    Pair   `json:"caption"`
}

// Label returns the short button text for the template.
func (t Template) Label() string {
	seed := []rune(t.PromptSeed)
	if len(seed) > 18 {
		seed = seed[:18]
	}
	return strings.ToUpper(string(seed)) + "..."
}

// Templates is the fixed quick-select catalog. Order is significant.
var Templates = []Template{
	{PromptSeed: "weird distorted face meme", Caption: Pair{"ME WHEN", "REALITY HITS"}},
	{PromptSeed: "ugly crying cat meme", Caption: Pair{"MY VIBES", "ALL THE TIME"}},
	{PromptSeed: "deformed wojak sad", Caption: Pair{"EXPECTATION", "WHAT I GOT"}},
	{PromptSeed: "glitchy broken image", Caption: Pair{"WHEN LIFE", "DOESNT WORK"}},
	{PromptSeed: "weird creature blob", Caption: Pair{"ME AS A", "PERSON"}},
	{PromptSeed: "distorted nightmare fuel", Caption: Pair{"THIS IS FINE", "NOT REALLY"}},
}

// Rule maps a keyword set to a caption. A rule matches when any keyword is
// a substring of the lower-cased prompt.
type Rule struct {
	Keywords []string
	Caption  Pair
}

// Rules is evaluated in order; the first match wins.
var Rules = []Rule{
	{Keywords: []string{"weird", "distorted", "ugly"}, Caption: Pair{"ME WHEN", "I SEE MYSELF"}},
	{Keywords: []string{"crying", "sad", "wojak"}, Caption: Pair{"MY VIBES", "ALL THE TIME"}},
	{Keywords: []string{"nightmare", "fuel"}, Caption: Pair{"THIS IS FINE", "NOT REALLY"}},
	{Keywords: []string{"glitch", "broken"}, Caption: Pair{"WHEN LIFE", "DOESNT WORK"}},
	{Keywords: []string{"blob", "creature"}, Caption: Pair{"ME AS A", "PERSON"}},
	{Keywords: []string{"cat", "pet"}, Caption: Pair{"ME WHEN I SEE", "MY PET"}},
	{Keywords: []string{"game", "gamer"}, Caption: Pair{"ME: JUST ONE GAME", "5 HOURS LATER..."}},
	{Keywords: []string{"drake", "pointing"}, Caption: Pair{"NOT THAT", "THIS ONE"}},
}

// Fallback is the pool used when no rule matches.
var Fallback = []Pair{
	{"EXPECTATION", "REALITY"},
	{"ME TRYING TO", "BE NORMAL"},
	{"THE PLAN", "WHAT HAPPENED"},
	{"SMALL BRAIN", "BIG BRAIN"},
	{"BEFORE COFFEE", "AFTER COFFEE"},
	{"2020 ME", "2024 ME"},
	{"WHAT I ORDERED", "WHAT I GOT"},
	{"MY CONFIDENCE", "MY ACTUAL SKILLS"},
	{"NORMAL PEOPLE", "ME"},
	{"WHEN SOMEONE", "ACTUALLY UNDERSTANDS"},
}

// Match returns the caption of the first rule matching prompt.
func Match(prompt string) (Pair, bool) {
	lower := strings.ToLower(prompt)
	for _, rule := range Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Caption, true
			}
		}
	}
	return Pair{}, false
}

// IsFallback reports whether p is a member of the fallback pool.
func IsFallback(p Pair) bool {
	for _, f := range Fallback {
		if f == p {
			return true
		}
	}
	return false
}

// Resolver resolves prompts to captions using a pluggable random source for
// the fallback pick. It is safe for concurrent use.
type Resolver struct {
	mu   sync.Mutex
	intn func(n int) int
}

// NewResolver returns a Resolver backed by math/rand/v2.
func NewResolver() *Resolver {
	return &Resolver{intn: rand.IntN}
}

// NewSeededResolver returns a Resolver with a deterministic random sequence.
func NewSeededResolver(seed uint64) *Resolver {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Resolver{intn: r.IntN}
}

// Resolve maps a prompt to a caption: first matching rule, otherwise a
// uniform pick from Fallback. It never fails.
func (r *Resolver) Resolve(prompt string) Pair {
	if p, ok := Match(prompt); ok {
		return p
	}
	r.mu.Lock()
	i := r.intn(len(Fallback))
	r.mu.Unlock()
	return Fallback[i]
}

// TemplateAt returns the template at index i.
func TemplateAt(i int) (Template, bool) {
	if i < 0 || i >= len(Templates) {
		return Template{}, false
	}
	return Templates[i], true
}
