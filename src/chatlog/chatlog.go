package chatlog

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	columnAuthor    = "Author"
	columnDate      = "Date"
	columnReactions = "Reactions"
)

// DirSource reads every csv export in a run's chat log folder.
type DirSource struct {
	dir    string
	logger *zap.Logger
}

func NewDirSource(root, period string, logger *zap.Logger) *DirSource {
	return &DirSource{
		dir:    filepath.Join(root, period),
		logger: logger.With(zap.String("component", "chatlog"), zap.String("dir", filepath.Join(root, period))),
	}
}

func (d *DirSource) ActivityRecords(ctx context.Context) ([]*model.ActivityRecord, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading chat log folder %s", d.dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var records []*model.ActivityRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed, err := d.readFile(filepath.Join(d.dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, parsed...)
	}
	d.logger.Info("read chat logs", zap.Int("files", len(names)), zap.Int("records", len(records)))
	return records, nil
}

func (d *DirSource) readFile(path string) ([]*model.ActivityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening %s", path)
	}
	defer f.Close()
	records, err := ReadRecords(f, d.logger.With(zap.String("file", filepath.Base(path))))
	return records, errors.Wrapf(err, "failed parsing %s", path)
}

// ReadRecords parses one export. Rows missing an author, date or reactions
// are dropped.
func ReadRecords(r io.Reader, logger *zap.Logger) ([]*model.ActivityRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed reading header")
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range []string{columnAuthor, columnDate, columnReactions} {
		if _, ok := cols[name]; !ok {
			return nil, errors.Errorf("missing column %s", name)
		}
	}

	var out []*model.ActivityRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed reading line %d", line)
		}
		author, date, reactions := cell(row, cols[columnAuthor]), cell(row, cols[columnDate]), cell(row, cols[columnReactions])
		if author == "" || date == "" || reactions == "" {
			continue
		}
		ts, err := model.ParseTimestamp(date)
		if err != nil {
			logger.Warn("dropping chat row with unreadable date", zap.Int("line", line), zap.String("author", author), zap.Error(err))
			continue
		}
		out = append(out, &model.ActivityRecord{
			Recipient: author,
			Timestamp: ts,
			Tags:      model.SplitReactions(reactions),
		})
	}
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
