package rendezvous

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var (
	roomAdjectives = []string{
		"amber", "brisk", "calm", "daring", "eager", "gentle", "hazel", "ivory",
		"jolly", "keen", "lucid", "mellow", "nimble", "olive", "plucky", "quiet",
		"rapid", "sunny", "tidy", "vivid", "witty", "zesty",
	}
	roomNouns = []string{
		"otter", "heron", "maple", "comet", "lantern", "harbor", "meadow", "falcon",
		"pebble", "willow", "cedar", "badger", "river", "summit", "orchid", "ember",
		"kestrel", "glacier", "walrus", "thistle", "canyon", "puffin",
	}
	roomTails = []string{
		"clinic", "ward", "lounge", "desk", "studio", "bay", "suite", "corner",
		"porch", "garden", "atrium", "nook",
	}
)

// newRoomName returns an unused memorable id such as "calm-heron-atrium".
func newRoomName(taken func(string) bool) string {
	for {
		id := strings.Join([]string{
			pick(roomAdjectives),
			pick(roomNouns),
			pick(roomTails),
		}, "-")
		if !taken(id) {
			return id
		}
	}
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		panic("rendezvous: crypto/rand failed: " + err.Error())
	}
	return words[n.Int64()]
}
