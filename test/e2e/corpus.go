// Package e2e provides end-to-end tests over a generated quote corpus and multiple queries.
package e2e

import (
	"fmt"

	"github.com/hyperjump/ruiji/internal/models"
)

// QueryTestCase is a query and the record key that must rank first.
type QueryTestCase struct {
	Query       string
	ExpectedKey string
}

// Corpus holds records and query test cases for e2e tests.
type Corpus struct {
	Records   []models.RawRecord
	TestCases []QueryTestCase
}

var quotes = []struct {
	text  string
	movie string
}{
	{"May the Force be with you.", "Star Wars"},
	{"I'll be back.", "The Terminator"},
	{"Here's looking at you, kid.", "Casablanca"},
	{"You're gonna need a bigger boat.", "Jaws"},
	{"I'm the king of the world!", "Titanic"},
	{"Houston, we have a problem.", "Apollo 13"},
	{"There's no place like home.", "The Wizard of Oz"},
	{"You talking to me?", "Taxi Driver"},
	{"Life is like a box of chocolates.", "Forrest Gump"},
	{"I see dead people.", "The Sixth Sense"},
	{"Why so serious?", "The Dark Knight"},
	{"To infinity and beyond!", "Toy Story"},
	{"Just keep swimming.", "Finding Nemo"},
	{"Hasta la vista, baby.", "Terminator 2: Judgment Day"},
	{"E.T. phone home.", "E.T. the Extra-Terrestrial"},
	{"Bond. James Bond.", "Dr. No"},
	{"Show me the money!", "Jerry Maguire"},
	{"You can't handle the truth!", "A Few Good Men"},
	{"Keep your friends close, but your enemies closer.", "The Godfather Part II"},
	{"I'm going to make him an offer he can't refuse.", "The Godfather"},
	{"Nobody puts Baby in a corner.", "Dirty Dancing"},
	{"Say hello to my little friend!", "Scarface"},
	{"Frankly, my dear, I don't give a damn.", "Gone with the Wind"},
	{"Elementary, my dear Watson.", "The Adventures of Sherlock Holmes"},
	{"Toto, I've a feeling we're not in Kansas anymore.", "The Wizard of Oz"},
	{"Go ahead, make my day.", "Sudden Impact"},
	{"Rosebud.", "Citizen Kane"},
	{"I feel the need, the need for speed.", "Top Gun"},
	{"Carpe diem. Seize the day, boys.", "Dead Poets Society"},
	{"Wax on, wax off.", "The Karate Kid"},
	{"Here's Johnny!", "The Shining"},
	{"Yippee-ki-yay.", "Die Hard"},
	{"My precious.", "The Lord of the Rings: The Two Towers"},
	{"I am your father.", "The Empire Strikes Back"},
	{"Open the pod bay doors, HAL.", "2001: A Space Odyssey"},
	{"There is no spoon.", "The Matrix"},
	{"Roads? Where we're going, we don't need roads.", "Back to the Future"},
	{"With great power comes great responsibility.", "Spider-Man"},
	{"After all, tomorrow is another day!", "Gone with the Wind"},
	{"Hakuna Matata.", "The Lion King"},
}

// BuildCorpus returns n records cycling through the quote list. Records past the
// list length get a numbered suffix so every text is unique.
func BuildCorpus(n int) *Corpus {
	c := &Corpus{}
	for i := 0; i < n; i++ {
		q := quotes[i%len(quotes)]
		text := q.text
		if i >= len(quotes) {
			text = fmt.Sprintf("%s (take %d)", q.text, i/len(quotes)+1)
		}
		key := fmt.Sprintf("q-%03d", i+1)
		c.Records = append(c.Records, models.RawRecord{Key: key, Text: text, Label: q.movie})
		c.TestCases = append(c.TestCases, QueryTestCase{Query: text, ExpectedKey: key})
	}
	return c
}
