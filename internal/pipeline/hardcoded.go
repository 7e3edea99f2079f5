package pipeline

import "github.com/mohammad-safakhou/atlast/models"

// hardcoded is the last resort, one item per tier family.
var hardcoded = map[string]models.ContentItem{
	"INDIA": {
		Riddle: "A white marble tomb rises beside a slow river, built by an emperor for the wife he lost. " +
			"Sunrise paints it pink and moonlight turns it silver. " +
			"Millions cross the world to stand in its garden. Where in the world am I?",
		Answer:     "Agra",
		Difficulty: string(models.IndiaEasy),
		Location:   models.Location{Name: "Agra", Lat: 27.1767, Lng: 78.0081},
	},
	"GLOBAL": {
		Riddle: "An iron lattice once called an eyesore now lights up every hour after dusk. " +
			"Cafes spill onto boulevards laid out by a baron, and a river splits the city into left and right. " +
			"Where in the world am I?",
		Answer:     "Paris",
		Difficulty: string(models.GlobalEasy),
		Location:   models.Location{Name: "Paris", Lat: 48.8566, Lng: 2.3522},
	},
}

// hardcodedFor returns the built-in item for the difficulty's family, GLOBAL when unknown.
func hardcodedFor(d models.Difficulty) models.ContentItem {
	item, ok := hardcoded[d.Family()]
	if !ok {
		item = hardcoded["GLOBAL"]
	} else if d != "" {
		item.Difficulty = string(d.Normalize())
	}
	return item
}
