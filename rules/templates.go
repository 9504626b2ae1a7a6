package rules

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/warp/capture-engine/engine"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// CHALLENGE TEMPLATES
// =============================================================================

type challengeTemplate struct {
	Title       string
	Description string
}

var challengeTemplates = map[engine.ChallengeType]challengeTemplate{
	engine.ChallengeLongestSession: {
		Title:       "Marathon Capture",
		Description: "Hold a single capture session for {{duration .Target}} {{.When}}.",
	},
	engine.ChallengeSessionDuration: {
		Title:       "Time Keeper",
		Description: "Capture for a total of {{duration .Target}} {{.When}}.",
	},
	// Any session counts toward entry_count. Its sampled category only shifts
	// reward difficulty, so the copy leaves it out.
	engine.ChallengeEntryCount: {
		Title:       "Regular",
		Description: "Complete {{plural .Target \"capture session\" \"capture sessions\"}} {{.When}}.",
	},
	engine.ChallengeUniquePOIs: {
		Title:       "Wanderer",
		Description: "Capture {{plural .Target \"different location\" \"different locations\"}}.",
	},
	engine.ChallengeCrownClaim: {
		Title:       "Crown Keeper",
		Description: "Capture {{plural .Target \"time\" \"times\"}} at locations where you hold the crown {{.When}}.",
	},
	engine.ChallengeCategoryVariety: {
		Title:       "Variety Seeker",
		Description: "Capture locations from {{plural .Target \"category\" \"different categories\"}}.",
	},
	engine.ChallengeCategorySimilarity: {
		Title:       "{{.Category}} Devotee",
		Description: "Capture the same {{.Category}} location {{plural .Target \"time\" \"times\"}}.",
	},
	engine.ChallengeNewLocation: {
		Title:       "Pathfinder",
		Description: "Capture {{plural .Target \"location\" \"locations\"}} you have never visited before {{.When}}.",
	},
}

var periodPhrases = map[engine.Period]string{
	engine.PeriodDaily:   "today",
	engine.PeriodWeekly:  "this week",
	engine.PeriodMonthly: "this month",
}

// templateData is what every template sees.
type templateData struct {
	Target   int64
	When     string
	Category string
}

// Templates renders challenge titles and descriptions.
type Templates struct {
	titles       map[engine.ChallengeType]*template.Template
	descriptions map[engine.ChallengeType]*template.Template
}

// NewTemplates parses the built-in templates.
func NewTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"duration": FormatDuration,
		"plural":   plural,
	}
	t := &Templates{
		titles:       make(map[engine.ChallengeType]*template.Template),
		descriptions: make(map[engine.ChallengeType]*template.Template),
	}
	for typ, ct := range challengeTemplates {
		title, err := template.New(string(typ) + ".title").Funcs(funcs).Parse(ct.Title)
		if err != nil {
			return nil, fmt.Errorf("failed to parse title template for %s: %w", typ, err)
		}
		desc, err := template.New(string(typ) + ".description").Funcs(funcs).Parse(ct.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to parse description template for %s: %w", typ, err)
		}
		t.titles[typ] = title
		t.descriptions[typ] = desc
	}
	return t, nil
}

// MustTemplates panics if the built-in templates fail to parse.
func MustTemplates() *Templates {
	t, err := NewTemplates()
	if err != nil {
		panic(err)
	}
	return t
}

// Render returns the title and description for a challenge. category is the
// display name and may be empty.
func (t *Templates) Render(typ engine.ChallengeType, target int64, p engine.Period, category string) (string, string, error) {
	title, ok := t.titles[typ]
	if !ok {
		return "", "", fmt.Errorf("no template for challenge type %q", typ)
	}
	data := templateData{
		Target:   target,
		When:     periodPhrases[p],
		Category: DisplayCategory(category),
	}

	var tb, db bytes.Buffer
	if err := title.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err := t.descriptions[typ].Execute(&db, data); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(tb.String()), collapseSpaces(db.String()), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// DisplayCategory title-cases a category name or key ("coffee-shop" ->
// "Coffee Shop"). A Caser is stateful so one is built per call.
func DisplayCategory(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "-", " "))
}

// FormatDuration renders seconds as "1 hour 30 minutes", "1 minute 30 seconds"
// or "30 seconds".
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return plural(seconds, "second", "seconds")
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour", "hours"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute", "minutes"))
	}
	if secs > 0 {
		parts = append(parts, plural(secs, "second", "seconds"))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
