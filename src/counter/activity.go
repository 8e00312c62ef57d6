package counter

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/onemorebsmith/chai-counter/src/model"
	"go.uber.org/zap"
)

const P2PMarker = "p2p"

// "p2p (3)" as chat exports write it, or the bare "p2p 3"
var countTokenRegex = regexp.MustCompile(`^(?:\((\d{1,2})\)|(\d{1,2}))$`)

// MatchingTag returns the last tag carrying the marker.
func MatchingTag(tags []string, marker string) (string, bool) {
	for i := len(tags) - 1; i >= 0; i-- {
		if strings.Contains(tags[i], marker) {
			return tags[i], true
		}
	}
	return "", false
}

// ExtractCount reads the count token that follows the last "<marker> " in tag.
func ExtractCount(recipient, tag, marker string) (uint64, error) {
	idx := strings.LastIndex(tag, marker+" ")
	if idx < 0 {
		return 0, &ParseError{Recipient: recipient, Tag: tag, Reason: "no count after marker"}
	}
	token := strings.TrimSpace(tag[idx+len(marker)+1:])
	m := countTokenRegex.FindStringSubmatch(token)
	if m == nil {
		return 0, &ParseError{Recipient: recipient, Tag: tag, Reason: "count token must be one or two digits"}
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	count, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, &ParseError{Recipient: recipient, Tag: tag, Reason: err.Error()}
	}
	return count, nil
}

// FilterActivity keeps the records tagged with the marker, ordered by time.
func FilterActivity(records []*model.ActivityRecord, marker string) []*model.ActivityRecord {
	var out []*model.ActivityRecord
	for _, r := range records {
		if r == nil || r.Recipient == "" {
			continue
		}
		if _, ok := MatchingTag(r.Tags, marker); ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// AggregateActivity credits unitMultiplier * count per matching record. Every
// recipient with a matching record gets an entry, even when nothing could be
// credited. Malformed tags are skipped and returned.
func AggregateActivity(records []*model.ActivityRecord, unitMultiplier uint64, logger *zap.Logger) (*model.Ledger, []*ParseError) {
	ledger := model.NewLedger()
	var skipped []*ParseError
	for _, r := range FilterActivity(records, P2PMarker) {
		ledger.Touch(r.Recipient)
		tag, _ := MatchingTag(r.Tags, P2PMarker)
		count, err := ExtractCount(r.Recipient, tag, P2PMarker)
		if err != nil {
			perr := err.(*ParseError)
			logger.Warn("skipping activity record", zap.String("recipient", r.Recipient),
				zap.Time("timestamp", r.Timestamp), zap.Error(perr))
			skipped = append(skipped, perr)
			continue
		}
		ledger.Add(r.Recipient, unitMultiplier*count)
	}
	return ledger, skipped
}
