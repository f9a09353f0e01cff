// Package game holds the level catalogue and the round loop shared by every
// mini-game screen.
//
// A [Screen] is created when the child enters a mini-game and closed when they
// leave it. It owns one audio session, one speech gate and one narrator, so
// nothing audible survives navigation. A [Round] runs the "hear a word, pick
// the matching item" loop on top of a screen and reports score and unlocks to
// the [progress.Store].
package game

import (
	"fmt"

	"github.com/MrWong99/dinoenglish/internal/progress"
	"github.com/MrWong99/dinoenglish/pkg/provider/tts"
)

// Level describes one stop on the adventure map.
type Level struct {
	// ID is the 1-based position on the map.
	ID int

	// Title is shown on the map marker.
	Title string

	// Route identifies the mini-game screen.
	Route string

	// Theme groups levels visually on the map.
	Theme string

	// Prompt is a fmt template with one %s verb for the target word.
	Prompt string

	// Words is the answer bank a round draws targets from.
	Words []string

	// Voice narrates the level's prompts.
	Voice tts.VoiceProfile
}

// PromptFor renders the spoken prompt for word.
func (l Level) PromptFor(word string) string {
	return fmt.Sprintf(l.Prompt, word)
}

var levels = []Level{
	{ID: 1, Title: "Dino Snack", Route: "/game/feed", Theme: "jungle", Prompt: "Can you feed me the %s, please?", Words: []string{"apple", "banana", "cake", "orange", "bread"}, Voice: tts.VoiceZephyr},
	{ID: 2, Title: "Word Jungle", Route: "/game/jungle", Theme: "jungle", Prompt: "Where is the %s?", Words: []string{"lion", "monkey", "snake", "bird", "flower", "butterfly"}, Voice: tts.VoicePuck},
	{ID: 3, Title: "Alpha Fire", Route: "/game/volcano", Theme: "volcano", Prompt: "Find the letter %s!", Words: []string{"A", "B", "C", "D", "E", "F"}, Voice: tts.VoiceKore},
	{ID: 4, Title: "Bubble Pop", Route: "/game/bubbles", Theme: "ocean", Prompt: "Pop the %s bubble!", Words: []string{"red", "blue", "green", "yellow", "purple", "orange"}, Voice: tts.VoicePuck},
	{ID: 5, Title: "Egg Count", Route: "/game/eggs", Theme: "jungle", Prompt: "Can you find %s eggs?", Words: []string{"one", "two", "three", "four", "five"}, Voice: tts.VoiceKore},
	{ID: 6, Title: "Shape Dunes", Route: "/game/desert", Theme: "desert", Prompt: "Find the %s!", Words: []string{"square", "circle", "triangle", "pentagon"}, Voice: tts.VoiceKore},
	{ID: 7, Title: "Ice Logic", Route: "/game/arctic", Theme: "arctic", Prompt: "Is it hot or cold? %s!", Words: []string{"ice", "fire", "sun", "snowman", "hot soup", "ice cream"}, Voice: tts.VoiceCharon},
	{ID: 8, Title: "Fish Verbs", Route: "/game/ocean", Theme: "ocean", Prompt: "Who can %s?", Words: []string{"swim", "jump", "sleep", "dance"}, Voice: tts.VoicePuck},
	{ID: 9, Title: "Star ABC", Route: "/game/space", Theme: "space", Prompt: "%s! What letter does it start with?", Words: []string{"apple", "banana", "cat", "dog", "egg", "fish"}, Voice: tts.VoiceZephyr},
	{ID: 10, Title: "Farm Joy", Route: "/game/farm", Theme: "farm", Prompt: "Who is %s?", Words: []string{"happy", "sad", "angry"}, Voice: tts.VoiceKore},
	{ID: 11, Title: "Rainbow Sky", Route: "/game/rainbow", Theme: "sky", Prompt: "Touch the color %s!", Words: []string{"red", "orange", "yellow", "green", "blue", "purple"}, Voice: tts.VoiceKore},
	{ID: 12, Title: "Dino Style", Route: "/game/dressup", Theme: "city", Prompt: "Put on the %s!", Words: []string{"hat", "crown", "glasses", "scarf", "shirt", "gloves", "shoes"}, Voice: tts.VoicePuck},
	{ID: 13, Title: "Magic Math", Route: "/game/math", Theme: "space", Prompt: "What is %s?", Words: []string{"one plus one", "two plus one", "two plus two", "three plus two"}, Voice: tts.VoiceCharon},
	{ID: 14, Title: "Weather", Route: "/game/weather", Theme: "sky", Prompt: "Today it is %s!", Words: []string{"sunny", "rainy", "snowy"}, Voice: tts.VoiceZephyr},
	{ID: 15, Title: "Bug Hunter", Route: "/game/bugs", Theme: "jungle", Prompt: "Find the bug %s the leaf!", Words: []string{"on", "under", "in"}, Voice: tts.VoiceKore},
	{ID: 16, Title: "Daily Fun", Route: "/game/routine", Theme: "city", Prompt: "Time to %s!", Words: []string{"brush teeth", "wash face", "go to sleep", "eat breakfast"}, Voice: tts.VoiceKore},
	{ID: 17, Title: "Plurals", Route: "/game/plurals", Theme: "farm", Prompt: "Give me the %s!", Words: []string{"apples", "bananas", "oranges"}, Voice: tts.VoicePuck},
	{ID: 18, Title: "Pet Parlor", Route: "/game/parlor", Theme: "jungle", Prompt: "Brush the puppy's %s!", Words: []string{"nose", "ears", "tail", "paws"}, Voice: tts.VoiceZephyr},
	{ID: 19, Title: "Kitchen Chef", Route: "/game/chef", Theme: "farm", Prompt: "Chef needs the %s!", Words: []string{"spoon", "plate", "pot", "cup"}, Voice: tts.VoiceCharon},
	{ID: 20, Title: "Traffic Hero", Route: "/game/traffic", Theme: "city", Prompt: "The light is %s!", Words: []string{"red", "green"}, Voice: tts.VoiceCharon},
	{ID: 21, Title: "Size Lab", Route: "/game/size", Theme: "space", Prompt: "Which one is %s?", Words: []string{"big", "small"}, Voice: tts.VoiceKore},
	{ID: 22, Title: "Sound Studio", Route: "/game/music", Theme: "city", Prompt: "Play the %s!", Words: []string{"piano", "guitar", "drums", "trumpet"}, Voice: tts.VoicePuck},
	{ID: 23, Title: "Dino Match", Route: "/game/memory", Theme: "jungle", Prompt: "Find two %s cards!", Words: []string{"dino", "egg", "leaf", "volcano"}, Voice: tts.VoiceZephyr},
	{ID: 24, Title: "Body Map", Route: "/game/body", Theme: "farm", Prompt: "Touch your %s!", Words: []string{"head", "hand", "leg", "tummy"}, Voice: tts.VoiceKore},
	{ID: 25, Title: "Verb Run", Route: "/game/verbs", Theme: "jungle", Prompt: "Dino, %s!", Words: []string{"run", "jump", "fly", "swim"}, Voice: tts.VoicePuck},
	{ID: 26, Title: "Color Lab", Route: "/game/colorlab", Theme: "space", Prompt: "Mix the colors to make %s!", Words: []string{"orange", "green", "purple"}, Voice: tts.VoiceCharon},
	{ID: 27, Title: "Dino Finale", Route: "/game/finale", Theme: "sky", Prompt: "Say it with me: %s!", Words: []string{"hello", "thank you", "goodbye"}, Voice: tts.VoiceZephyr},
}

func init() {
	if len(levels) != progress.TotalLevels {
		panic(fmt.Sprintf("game: catalogue has %d levels, progress expects %d", len(levels), progress.TotalLevels))
	}
}

// Levels returns a copy of the catalogue ordered by ID.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// Lookup returns the level with the given id.
func Lookup(id int) (Level, bool) {
	if id < 1 || id > len(levels) {
		return Level{}, false
	}
	return levels[id-1], true
}

// LookupRoute returns the level served at route.
func LookupRoute(route string) (Level, bool) {
	for _, l := range levels {
		if l.Route == route {
			return l, true
		}
	}
	return Level{}, false
}
