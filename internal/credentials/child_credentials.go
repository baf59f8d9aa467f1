package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// ChildEmailDomain is the mailbox domain given to guardian-created learners
const ChildEmailDomain = "learners.mathquest.local"

// Word lists for generating kid-friendly usernames
var adjectives = []string{
	"happy", "sunny", "brave", "bright", "cool", "swift", "clever", "jolly",
	"mighty", "super", "star", "wild", "funny", "lucky", "magic", "bouncy",
	"cheerful", "daring", "eager", "flying", "gentle", "hyper", "jazzy", "kindly",
	"lively", "merry", "noble", "perky", "quick", "royal", "snappy", "turbo",
	"zippy", "awesome", "bold", "cosmic", "dynamic", "epic", "fantastic", "groovy",
}

// Math-flavoured nouns
var nouns = []string{
	"fox", "bear", "bunny", "panda", "lion", "tiger", "unicorn", "dragon",
	"counter", "adder", "divider", "fraction", "decimal", "prime", "square", "cube",
	"circle", "triangle", "hexagon", "pyramid", "abacus", "compass", "ruler", "number",
	"rocket", "comet", "explorer", "ranger", "wizard", "genius", "captain", "champion",
}

// passwordChars leaves out characters children confuse (0/O, 1/l/I)
const passwordChars = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ChildPasswordLength meets the minimum password length for accounts
const ChildPasswordLength = 8

// GenerateChildUsername returns "adjective-noun-NN"
func GenerateChildUsername() (string, error) {
	adjective, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%02d", adjective, noun, n.Int64()), nil
}

// ChildEmail turns a generated username into the account's login email
func ChildEmail(username string) string {
	return username + "@" + ChildEmailDomain
}

// GenerateChildPassword returns a random password of ChildPasswordLength
func GenerateChildPassword() (string, error) {
	password := make([]byte, ChildPasswordLength)
	for i := range password {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordChars))))
		if err != nil {
			return "", err
		}
		password[i] = passwordChars[num.Int64()]
	}
	return string(password), nil
}

func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}
	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}
	return slice[num.Int64()], nil
}
