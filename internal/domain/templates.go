package domain

// Category groups templates by the kind of organization they serve.
type Category string

const (
	CategoryTrackAndField Category = "TRACK_AND_FIELD"
	CategoryRunningClub   Category = "RUNNING_CLUB"
	CategorySwimming      Category = "SWIMMING"
	CategoryBaseball      Category = "BASEBALL"
	CategoryBasketball    Category = "BASKETBALL"
	CategoryGym           Category = "GYM_MEMBERSHIP"
	CategorySalesTeam     Category = "SALES_TEAM"
	CategoryRepOverview   Category = "REP_OVERVIEW"
	CategoryLibrary       Category = "LIBRARY"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTrackAndField, CategoryRunningClub, CategorySwimming,
		CategoryBaseball, CategoryBasketball, CategoryGym,
		CategorySalesTeam, CategoryRepOverview, CategoryLibrary:
		return true
	}
	return false
}

// Template describes one renderable composition.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description,omitempty"`
}

// templateRegistry maps every template the render engine ships. The registry
// is code, not data: adding a template means adding a composition to the
// engine, so the two move together.
var templateRegistry = []Template{
	{ID: "track-athlete-season-recap", Name: "Athlete Season Recap", Category: CategoryTrackAndField, Description: "Individual athlete highlights with PBs and season progression"},
	{ID: "track-team-championship", Name: "Team Championship", Category: CategoryTrackAndField, Description: "Team performance summary with top athletes"},
	{ID: "track-event-leaderboard", Name: "Event Leaderboard", Category: CategoryTrackAndField, Description: "Rankings for a specific event"},

	{ID: "running-member-year-review", Name: "Member Year Review", Category: CategoryRunningClub, Description: "Individual member running stats and races"},
	{ID: "running-club-leaderboard", Name: "Club Leaderboard", Category: CategoryRunningClub, Description: "Club distance and activity rankings"},
	{ID: "running-race-recap", Name: "Race Recap", Category: CategoryRunningClub, Description: "Race day highlights and results"},

	{ID: "swim-athlete-progression", Name: "Athlete Progression", Category: CategorySwimming, Description: "Swimmer improvement over the season"},
	{ID: "swim-meet-highlights", Name: "Meet Highlights", Category: CategorySwimming, Description: "Swim meet results and PBs"},
	{ID: "swim-team-records", Name: "Team Records", Category: CategorySwimming, Description: "Team record board by event"},

	{ID: "baseball-player-card", Name: "Player Card", Category: CategoryBaseball, Description: "Animated player stats card"},
	{ID: "baseball-season-recap", Name: "Season Recap", Category: CategoryBaseball, Description: "Team season summary with leaders"},
	{ID: "baseball-game-summary", Name: "Game Summary", Category: CategoryBaseball, Description: "Single game recap"},

	{ID: "basketball-player-highlights", Name: "Player Highlights", Category: CategoryBasketball, Description: "Player stats and shooting percentages"},
	{ID: "basketball-team-season", Name: "Team Season", Category: CategoryBasketball, Description: "Team season summary"},
	{ID: "basketball-game-recap", Name: "Game Recap", Category: CategoryBasketball, Description: "Game highlights with box score"},

	{ID: "gym-member-year-review", Name: "Member Year Review", Category: CategoryGym, Description: "Member attendance and achievements"},
	{ID: "gym-leaderboard", Name: "Leaderboard", Category: CategoryGym, Description: "Most active members ranking"},
	{ID: "gym-milestone-celebration", Name: "Milestone Celebration", Category: CategoryGym, Description: "Achievement unlocked animation"},

	{ID: "sales-team-quarter", Name: "Team Quarter", Category: CategorySalesTeam, Description: "Quarterly team performance"},
	{ID: "sales-leaderboard", Name: "Sales Leaderboard", Category: CategorySalesTeam, Description: "Rep revenue rankings"},
	{ID: "sales-celebration", Name: "Celebration", Category: CategorySalesTeam, Description: "Quota or deal celebration"},

	{ID: "rep-performance-card", Name: "Performance Card", Category: CategoryRepOverview, Description: "Individual rep stats card"},
	{ID: "rep-year-in-review", Name: "Year in Review", Category: CategoryRepOverview, Description: "Annual performance summary"},
	{ID: "rep-deal-celebration", Name: "Deal Celebration", Category: CategoryRepOverview, Description: "Big deal closed animation"},

	{ID: "library-patron-year-review", Name: "Patron Year Review", Category: CategoryLibrary, Description: "A patron's reading year in numbers"},
	{ID: "library-reading-journey", Name: "Reading Journey", Category: CategoryLibrary, Description: "Timeline of books read"},
	{ID: "library-top-books", Name: "Top Books Showcase", Category: CategoryLibrary, Description: "Most borrowed titles"},
}

// LookupTemplate returns the template with the given id.
func LookupTemplate(id string) (Template, bool) {
	for _, t := range templateRegistry {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Templates returns registered templates, optionally filtered by category.
func Templates(category Category) []Template {
	if category == "" {
		out := make([]Template, len(templateRegistry))
		copy(out, templateRegistry)
		return out
	}
	var out []Template
	for _, t := range templateRegistry {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// TemplatesByCategory groups the registry for listing responses.
func TemplatesByCategory() map[Category][]Template {
	out := make(map[Category][]Template)
	for _, t := range templateRegistry {
		out[t.Category] = append(out[t.Category], t)
	}
	return out
}
