// Package names generates room IDs and guest display names.
package names

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	roomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	roomIDLength = 6
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RoomID returns a short random room ID such as "k3x9qa".
func RoomID() (string, error) {
	id, err := gonanoid.Generate(roomAlphabet, roomIDLength)
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	return id, nil
}

// ValidRoomID reports whether id is safe to type and share: letters, digits,
// dashes and underscores, at most 64 characters.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// GuestName returns a memorable display name such as "sleepy-otter".
func GuestName() string {
	return adjectives[randomIndex(len(adjectives))] + "-" + animals[randomIndex(len(animals))]
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
