package util

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// HashAnalysisKey creates an MD5 hash from the user and listing ids, used as the
// document id of a cached condition assessment.
func HashAnalysisKey(userID, listingID string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSpace(strings.ToLower(userID)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToLower(listingID)))
	return hashString(builder.String())
}

// HashString returns the MD5 hash of an arbitrary string.
func HashString(input string) string {
	return hashString(strings.TrimSpace(strings.ToLower(input)))
}

func hashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
