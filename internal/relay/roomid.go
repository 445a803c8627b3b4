package relay

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// roomIDWords is the number of words in a generated room ID.
const roomIDWords = 4

var wordLists = [][]string{
	{ // animals
		"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
		"lynx", "badger", "marmot", "gecko", "llama", "alpaca", "walrus", "heron", "ibis", "wombat",
		"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "canary", "narwhal", "dolphin",
	},
	{ // dishes
		"pancake", "waffle", "sushi", "ramen", "curry", "taco", "burrito", "biryani", "paella", "risotto",
		"lasagna", "pizza", "dumpling", "noodle", "omelette", "quiche", "kebab", "fondue", "gnocchi", "falafel",
		"samosa", "poutine", "dimsum", "pho", "tamale", "churro", "brioche", "crepe", "bagel", "pretzel",
	},
	{ // names
		"alice", "bob", "charlie", "daisy", "ella", "finn", "grace", "henry", "isla", "jack",
		"kai", "luna", "mia", "noah", "olivia", "peter", "quinn", "rachel", "sam", "tina",
		"uma", "victor", "winnie", "xavier", "yara", "zoe", "aaron", "bella", "carlos", "diana",
	},
	{ // things
		"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
		"marble", "maple", "cocoa", "hazel", "breeze", "meadow", "willow", "ember", "cinnamon", "poppy",
		"pixel", "biscuit", "nugget", "toffee", "sprinkle", "lantern", "puddle", "pebble", "comet", "orbit",
	},
	{ // adjectives
		"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
		"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
		"silent", "bouncy", "fuzzy", "plucky", "merry", "peppy", "mellow", "witty", "lucky", "nimble",
	},
	{ // creatures
		"dragon", "unicorn", "griffin", "phoenix", "fairy", "gnome", "sprite", "pixie", "mermaid", "elf",
		"hobbit", "goblin", "troll", "kraken", "yeti", "sphinx", "pegasus", "wizard", "golem", "imp",
	},
}

// GenerateRoomID returns a memorable room ID made of four hyphen-joined words,
// each drawn from a different word list, e.g. "fluffy-otter-ramen-comet".
func GenerateRoomID() string {
	lists := make([]int, len(wordLists))
	for i := range lists {
		lists[i] = i
	}
	// partial Fisher-Yates over the list indices
	for i := 0; i < roomIDWords; i++ {
		j := i + randomIndex(len(lists)-i)
		lists[i], lists[j] = lists[j], lists[i]
	}

	words := make([]string, roomIDWords)
	for i := range words {
		list := wordLists[lists[i]]
		words[i] = list[randomIndex(len(list))]
	}
	return strings.Join(words, "-")
}

// randomIndex returns a uniformly random index in [0, n) from crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("relay: reading random source: " + err.Error())
	}
	return int(v.Int64())
}
