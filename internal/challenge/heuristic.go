package challenge

import (
	"bytes"
)

// challengeMarkers are lowercase phrases that show up on interstitial verification pages.
var challengeMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("are you a robot"),
	[]byte("verify you are human"),
	[]byte("verify that you are human"),
	[]byte("security check"),
	[]byte("checking your browser"),
	[]byte("one more step"),
	[]byte("cf-challenge"),
}

// LooksLikeChallenge reports whether page markup suggests a verification wall even when no
// solvable widget could be located.
func LooksLikeChallenge(html []byte) bool {
	if len(html) == 0 {
		return false
	}
	lower := bytes.ToLower(html)
	for _, marker := range challengeMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
