package output

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DistributionCSV renders entries in the layout the safe's csv airdrop app
// expects.
func DistributionCSV(entries []model.DistributionEntry) ([]byte, error) {
	rows := [][]string{{"token_type", "token_address", "receiver", "amount"}}
	for _, e := range entries {
		rows = append(rows, []string{e.TokenType, e.TokenAddress, e.Receiver, strconv.FormatUint(e.Amount, 10)})
	}
	return encode(rows)
}

// AuditCSV ties handles to amounts for people reconciling a run by hand.
func AuditCSV(entries []model.AuditEntry) ([]byte, error) {
	rows := [][]string{{"receiver", "amount"}}
	for _, e := range entries {
		rows = append(rows, []string{e.Receiver, strconv.FormatUint(e.Amount, 10)})
	}
	return encode(rows)
}

func encode(rows [][]string) ([]byte, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

type CSVWriter struct {
	distributionDir string
	auditDir        string
	logger          *zap.Logger
}

func NewCSVWriter(distributionDir, auditDir string, logger *zap.Logger) *CSVWriter {
	return &CSVWriter{
		distributionDir: distributionDir,
		auditDir:        auditDir,
		logger:          logger.With(zap.String("component", "csv_writer")),
	}
}

func DistributionPath(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

func AuditPath(dir, period string, rule model.Rule) (string, error) {
	month, err := model.PeriodMonth(period)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("LOG--%s_%s.csv", month, rule)), nil
}

func (w *CSVWriter) WriteDistribution(name string, entries []model.DistributionEntry) error {
	data, err := DistributionCSV(entries)
	if err != nil {
		return errors.Wrap(err, "failed encoding distribution csv")
	}
	return w.write(DistributionPath(w.distributionDir, name), data)
}

func (w *CSVWriter) WriteAudit(period string, rule model.Rule, entries []model.AuditEntry) error {
	path, err := AuditPath(w.auditDir, period, rule)
	if err != nil {
		return errors.Wrap(err, "failed naming audit file")
	}
	data, err := AuditCSV(entries)
	if err != nil {
		return errors.Wrap(err, "failed encoding audit csv")
	}
	return w.write(path, data)
}

// write replaces path atomically so a failed run never leaves half a file.
func (w *CSVWriter) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed creating %s", filepath.Dir(path))
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed creating temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed writing %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed moving output into %s", path)
	}
	checksum := sha256.Sum256(data)
	w.logger.Info("wrote csv", zap.String("path", path), zap.String("sha256", hex.EncodeToString(checksum[:])))
	return nil
}
