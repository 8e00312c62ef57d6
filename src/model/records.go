package model

import (
	"strings"
	"time"
)

type ActivityRecord struct {
	Recipient string
	Timestamp time.Time
	Tags      []string
}

// SplitReactions turns the raw reaction column of a chat export into tags.
func SplitReactions(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type CompletionFlag string

const ( // needs to match `CHAI_done` in the registry
	CompletionFlagNotDone CompletionFlag = "no"
	CompletionFlagDone    CompletionFlag = "yes"
)

func ParseCompletionFlag(raw string) CompletionFlag {
	return CompletionFlag(strings.ToLower(strings.TrimSpace(raw)))
}

type CompletionRecord struct {
	RecordID  string
	Recipient string
	Wallet    string
	Flag      CompletionFlag
	CreatedAt time.Time
}
