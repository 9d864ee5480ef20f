package presto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
)

// QueryResults is one statement response. Large results arrive in batches;
// NextUri points at the next one until the query is finished.
type QueryResults struct {
	Id               string  `json:"id"`
	InfoUri          string  `json:"infoUri"`
	PartialCancelUri *string `json:"partialCancelUri,omitempty"`

	// NextUri is nil once all batches have been returned.
	NextUri *string `json:"nextUri,omitempty"`

	Columns []Column `json:"columns,omitempty"`

	// Data holds the rows of the current batch in wire form. DecodedData
	// converts them using the column types.
	Data []json.RawMessage `json:"data,omitempty"`

	Stats    StatementStats `json:"stats"`
	Error    *QueryError    `json:"error,omitempty"`
	Warnings []Warning      `json:"warnings"`

	// UpdateType and UpdateCount are set for INSERT, UPDATE, DELETE and DDL.
	UpdateType  *string `json:"updateType,omitempty"`
	UpdateCount *int64  `json:"updateCount,omitempty"`

	session *Session

	// decoder is built from decoderColumns and reused while Columns is unchanged.
	decoder        *RowDecoder
	decoderColumns []Column
}

// HasMoreBatch reports whether another batch can be fetched.
func (qr *QueryResults) HasMoreBatch() bool {
	return qr != nil && qr.NextUri != nil
}

// FetchNextBatch replaces the contents of qr with the next batch that carries
// data, or with the final response. If ctx is canceled while fetching, the
// query is canceled on the server before the error is returned.
func (qr *QueryResults) FetchNextBatch(ctx context.Context) error {
	if qr == nil {
		return errors.New("cannot fetch next batch: nil QueryResults")
	}
	if qr.session == nil {
		return errors.New("cannot fetch next batch: no session associated with results")
	}

	for qr.NextUri != nil {
		nextUri := *qr.NextUri
		newQr, _, err := qr.session.FetchNextBatch(ctx, nextUri)
		if err != nil {
			if ctx.Err() != nil {
				// ctx is already done, so cancel with a fresh one.
				_, _, cancelErr := qr.session.CancelQuery(context.Background(), nextUri)
				if cancelErr != nil {
					log.Debug().Err(cancelErr).Str("query_id", qr.Id).Msg("failed to cancel query after context cancellation")
				} else {
					log.Debug().Str("query_id", qr.Id).Msg("canceled query because the context was cancelled")
				}
				return fmt.Errorf("fetch next batch failed due to context cancellation for query %s: %w", qr.Id, err)
			}
			return fmt.Errorf("fetch next batch failed for query %s: %w", qr.Id, err)
		}

		columns, decoder, decoderColumns := qr.Columns, qr.decoder, qr.decoderColumns
		*qr = *newQr
		qr.session = newQr.session
		if len(qr.Columns) == 0 {
			qr.Columns = columns
		}
		qr.decoder, qr.decoderColumns = decoder, decoderColumns

		if len(qr.Data) > 0 {
			break
		}
	}
	return nil
}

// RowDecoder returns the decoder for the current columns. It is built on first
// use and rebuilt only when the columns change.
func (qr *QueryResults) RowDecoder() (*RowDecoder, error) {
	if qr.decoder != nil && reflect.DeepEqual(qr.decoderColumns, qr.Columns) {
		return qr.decoder, nil
	}
	decoder, err := BuildRowDecoder(qr.Columns)
	if err != nil {
		log.Debug().Err(err).Str("query_id", qr.Id).Msg("failed to build row decoder")
		return nil, fmt.Errorf("build row decoder for query %s: %w", qr.Id, err)
	}
	log.Debug().Str("query_id", qr.Id).Int("columns", len(qr.Columns)).Msg("built row decoder")
	qr.decoder, qr.decoderColumns = decoder, qr.Columns
	return decoder, nil
}

// DecodedData decodes every row of the current batch. Arrays become []any,
// maps map[any]any, rows map[string]any keyed by field name and varbinary
// []byte; other values keep their JSON form, with numbers as json.Number.
func (qr *QueryResults) DecodedData() ([]DecodedRow, error) {
	if len(qr.Data) == 0 {
		return nil, nil
	}
	decoder, err := qr.RowDecoder()
	if err != nil {
		return nil, err
	}
	rows := make([]DecodedRow, len(qr.Data))
	for i, raw := range qr.Data {
		row, err := decoder.DecodeJSONRow(raw)
		if err != nil {
			log.Debug().Err(err).Str("query_id", qr.Id).Int("row", i).Msg("failed to decode row")
			return nil, fmt.Errorf("decode row %d of query %s: %w", i, qr.Id, err)
		}
		rows[i] = row
	}
	return rows, nil
}

// ResultBatchHandler processes one batch during Drain.
type ResultBatchHandler func(qr *QueryResults) error

// Drain fetches every remaining batch and passes it to handler. Data is
// cleared after each batch.
func (qr *QueryResults) Drain(ctx context.Context, handler ResultBatchHandler) error {
	if qr == nil {
		return errors.New("cannot drain results: nil QueryResults")
	}
	for qr.HasMoreBatch() {
		if err := qr.FetchNextBatch(ctx); err != nil {
			return fmt.Errorf("drain operation failed: %w", err)
		}
		if handler != nil {
			if err := handler(qr); err != nil {
				qr.Data = nil
				return fmt.Errorf("batch handler returned error for query %s: %w", qr.Id, err)
			}
		}
		qr.Data = nil
	}
	return nil
}
