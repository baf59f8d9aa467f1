package progress

// Character is a selectable avatar glyph
type Character struct {
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
	// UnlockLevel is nil for characters available from the start
	UnlockLevel *int `json:"unlockLevel,omitempty"`
}

// ColorTheme is a selectable avatar background
type ColorTheme struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func level(n int) *int { return &n }

// Characters in picker order
var Characters = []Character{
	{Emoji: "🦊", Name: "Fox"},
	{Emoji: "🐻", Name: "Bear"},
	{Emoji: "🐰", Name: "Bunny"},
	{Emoji: "🐼", Name: "Panda"},
	{Emoji: "🦁", Name: "Lion", UnlockLevel: level(10)},
	{Emoji: "🐯", Name: "Tiger", UnlockLevel: level(15)},
	{Emoji: "🦄", Name: "Unicorn", UnlockLevel: level(20)},
	{Emoji: "🐉", Name: "Dragon", UnlockLevel: level(25)},
}

// ColorThemes in picker order
var ColorThemes = []ColorTheme{
	{ID: "purple-pink", Name: "Purple Pink"},
	{ID: "blue-cyan", Name: "Blue Cyan"},
	{ID: "green-lime", Name: "Green Lime"},
	{ID: "orange-red", Name: "Orange Red"},
	{ID: "pink-rose", Name: "Pink Rose"},
	{ID: "indigo-purple", Name: "Indigo Purple"},
}

const (
	DefaultCharacter = "🦊"
	DefaultColor     = "blue-cyan"
)

// FindCharacter looks up a character by glyph
func FindCharacter(emoji string) (Character, bool) {
	for _, c := range Characters {
		if c.Emoji == emoji {
			return c, true
		}
	}
	return Character{}, false
}

// IsColorTheme reports whether id names a known color theme
func IsColorTheme(id string) bool {
	for _, c := range ColorThemes {
		if c.ID == id {
			return true
		}
	}
	return false
}
