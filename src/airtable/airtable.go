package airtable

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mehanizm/airtable"
	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultTable = "Table 1"
	// airtable allows 5 requests per second per base
	DefaultRequestsPerSecond = 4

	fieldHandle         = "Discord Handle"
	fieldIdentityWallet = "Wallet Address"
	fieldProjectWallet  = "Wallet address"
	fieldDone           = "CHAI_done"
	fieldCreated        = "Created"
)

type AirtableConfig struct {
	APIKey            string
	IdentityBase      string
	CompletionBase    string
	Table             string
	BaseURL           string
	RequestsPerSecond int
	Timeout           time.Duration
}

// Client reads the CHAI registration form and the project completion form.
type Client struct {
	identities  *airtable.Table
	completions *airtable.Table
	logger      *zap.Logger
}

func NewClient(cfg AirtableConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	at := airtable.NewClient(cfg.APIKey)
	at.SetCustomClient(&http.Client{Timeout: cfg.Timeout})
	at.SetRateLimit(cfg.RequestsPerSecond)
	if cfg.BaseURL != "" {
		if err := at.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")); err != nil {
			return nil, errors.Wrap(err, "invalid airtable base url")
		}
	}
	return &Client{
		identities:  at.GetTable(cfg.IdentityBase, cfg.Table),
		completions: at.GetTable(cfg.CompletionBase, cfg.Table),
		logger:      logger.With(zap.String("component", "airtable")),
	}, nil
}

// list walks every page of a table, requesting only fields.
func list(ctx context.Context, table *airtable.Table, fields []string, formula string) ([]*airtable.Record, error) {
	var all []*airtable.Record
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		query := table.GetRecords().ReturnFields(fields...)
		if formula != "" {
			query = query.WithFilterFormula(formula)
		}
		if offset != "" {
			query = query.WithOffset(offset)
		}
		page, err := query.Do()
		if err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

func fieldString(fields map[string]any, name string) string {
	switch v := fields[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (c *Client) WalletAddresses(ctx context.Context) (map[string]string, error) {
	records, err := list(ctx, c.identities, []string{fieldHandle, fieldIdentityWallet}, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed listing identity form")
	}
	wallets := make(map[string]string, len(records))
	for _, r := range records {
		handle, wallet := fieldString(r.Fields, fieldHandle), fieldString(r.Fields, fieldIdentityWallet)
		if handle == "" || wallet == "" {
			c.logger.Debug("ignoring incomplete identity row", zap.String("record_id", r.ID))
			continue
		}
		// later registrations win, like the form's own history
		wallets[handle] = wallet
	}
	return wallets, nil
}

func (c *Client) Completions(ctx context.Context) ([]*model.CompletionRecord, error) {
	formula := fmt.Sprintf("{%s} = '%s'", fieldDone, model.CompletionFlagNotDone)
	records, err := list(ctx, c.completions,
		[]string{fieldHandle, fieldProjectWallet, fieldDone, fieldCreated}, formula)
	if err != nil {
		return nil, errors.Wrap(err, "failed listing project completion form")
	}
	out := make([]*model.CompletionRecord, 0, len(records))
	for _, r := range records {
		created := fieldString(r.Fields, fieldCreated)
		if created == "" {
			created = r.CreatedTime
		}
		createdAt, err := model.ParseTimestamp(created)
		if err != nil {
			c.logger.Warn("ignoring completion with unreadable creation time", zap.String("record_id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, &model.CompletionRecord{
			RecordID:  r.ID,
			Recipient: fieldString(r.Fields, fieldHandle),
			Wallet:    fieldString(r.Fields, fieldProjectWallet),
			Flag:      model.ParseCompletionFlag(fieldString(r.Fields, fieldDone)),
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

func (c *Client) MarkCompleted(ctx context.Context, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.completions.UpdateRecordsPartial(&airtable.Records{
		Records: []*airtable.Record{{
			ID:     recordID,
			Fields: map[string]any{fieldDone: string(model.CompletionFlagDone)},
		}},
	})
	return errors.Wrapf(err, "failed updating record %s", recordID)
}
