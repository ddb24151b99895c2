package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tradequery/internal/census"
	"tradequery/internal/logging"
	"tradequery/internal/model"
)

const (
	DefaultChunkSize   = 5
	DefaultConcurrency = 1
	DefaultWildcard    = "*"

	maxErrorBody = 200
)

var (
	ErrInvalidPlan     = errors.New("retrieval: invalid plan")
	ErrNoData          = errors.New("retrieval: no data found")
	ErrRetrievalFailed = errors.New("retrieval: sub-queries failed and no rows were returned")
	ErrSchemaMismatch  = errors.New("retrieval: schema mismatch")
	ErrHTTPStatus      = errors.New("retrieval: unexpected status")
)

// Fetcher is the transport capability the orchestrator drives.
type Fetcher interface {
	Get(ctx context.Context, endpoint string, params url.Values) (int, []byte, error)
}

// SubQueryFailure records a sub-query that produced no usable payload. The API
// key is redacted from Params.
type SubQueryFailure struct {
	Index  int
	Period model.Period
	Params url.Values
	Status int
	Err    error
}

func (f SubQueryFailure) Error() string {
	return fmt.Sprintf("sub-query %d (%s): %v", f.Index, f.Period, f.Err)
}

func (f SubQueryFailure) Unwrap() error {
	return f.Err
}

type SchemaMismatchError struct {
	Index int
	Want  []string
	Got   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%v: sub-query %d returned [%s], expected [%s]",
		ErrSchemaMismatch, e.Index, strings.Join(e.Got, ","), strings.Join(e.Want, ","))
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Outcome is the merged result of one retrieval.
type Outcome struct {
	RunID     string
	TradeType model.TradeType
	Table     *model.Table
	Calls     int
	Empty     int
	Failures  []SubQueryFailure
}

// Partial reports whether some sub-queries failed.
func (o *Outcome) Partial() bool {
	return o != nil && len(o.Failures) > 0
}

type Option func(*Orchestrator)

func WithChunkSize(size int) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithConcurrency bounds the number of in-flight sub-queries.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithWildcard sets the token sent for unfiltered dimensions. An empty token
// omits the parameter.
func WithWildcard(token string) Option {
	return func(o *Orchestrator) {
		o.wildcard = token
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type Orchestrator struct {
	fetcher     Fetcher
	chunkSize   int
	concurrency int
	wildcard    string
	logger      logrus.FieldLogger
}

func New(fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:     fetcher,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
		wildcard:    DefaultWildcard,
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithField("component", "retrieval")
	return o
}

type result struct {
	columns []string
	rows    [][]string
	failure *SubQueryFailure
}

// Retrieve plans and executes a query. A non-nil Outcome is returned with
// ErrNoData and ErrRetrievalFailed so callers can inspect the failures.
func (o *Orchestrator) Retrieve(ctx context.Context, spec model.QuerySpec, periods []model.Period, filters []model.CodeFilter) (*Outcome, error) {
	if o.fetcher == nil {
		return nil, errors.New("retrieval: fetcher is required")
	}
	plan, err := o.Plan(spec, periods, filters)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := o.logger.WithFields(logrus.Fields{
		"run_id":     runID,
		"trade_type": plan.TradeType,
	})
	logger.WithField("calls", plan.Len()).Info("retrieval started")

	results := make([]result, plan.Len())
	if o.concurrency <= 1 {
		for i, sq := range plan.SubQueries {
			results[i] = o.execute(ctx, logger, plan.Endpoint, sq)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.concurrency)
		for i, sq := range plan.SubQueries {
			i, sq := i, sq
			g.Go(func() error {
				results[i] = o.execute(ctx, logger, plan.Endpoint, sq)
				return nil
			})
		}
		_ = g.Wait()
	}

	outcome, err := merge(results)
	if err != nil {
		logger.WithError(err).Error("retrieval aborted")
		return nil, err
	}
	outcome.RunID = runID
	outcome.TradeType = plan.TradeType
	outcome.Calls = plan.Len()

	logger.WithFields(logrus.Fields{
		"rows":     outcome.Table.Len(),
		"empty":    outcome.Empty,
		"failures": len(outcome.Failures),
	}).Info("retrieval finished")

	if outcome.Table.Len() > 0 {
		return outcome, nil
	}
	if len(outcome.Failures) > 0 {
		return outcome, fmt.Errorf("%w: %d of %d calls failed, first: %v",
			ErrRetrievalFailed, len(outcome.Failures), outcome.Calls, outcome.Failures[0].Err)
	}
	return outcome, ErrNoData
}

func (o *Orchestrator) execute(ctx context.Context, logger logrus.FieldLogger, endpoint string, sq SubQuery) result {
	logger = logger.WithFields(logrus.Fields{
		"index":  sq.Index,
		"period": sq.Period.String(),
	})
	fail := func(status int, err error) result {
		logger.WithError(err).WithField("status", status).Warn("sub-query failed")
		return result{failure: &SubQueryFailure{
			Index:  sq.Index,
			Period: sq.Period,
			Params: census.RedactKey(sq.Params),
			Status: status,
			Err:    err,
		}}
	}

	status, body, err := o.fetcher.Get(ctx, endpoint, sq.Params)
	if err != nil {
		return fail(status, err)
	}
	if status == http.StatusNoContent {
		logger.WithField("status", status).Debug("no content")
		return result{}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fail(status, fmt.Errorf("%w %d: %s", ErrHTTPStatus, status, snippet(body)))
	}

	columns, rows, err := census.DecodeTable(body)
	if err != nil {
		return fail(status, err)
	}
	logger.WithFields(logrus.Fields{"status": status, "rows": len(rows)}).Debug("sub-query done")
	return result{columns: columns, rows: rows}
}

func merge(results []result) (*Outcome, error) {
	outcome := &Outcome{Table: model.NewTable(nil)}
	schemaSet := false
	for i, res := range results {
		if res.failure != nil {
			outcome.Failures = append(outcome.Failures, *res.failure)
			continue
		}
		if len(res.columns) > 0 {
			if !schemaSet {
				outcome.Table = model.NewTable(res.columns)
				schemaSet = true
			} else if !outcome.Table.SameSchema(res.columns) {
				return nil, &SchemaMismatchError{Index: i, Want: outcome.Table.Columns, Got: res.columns}
			}
		}
		if len(res.rows) == 0 {
			outcome.Empty++
			continue
		}
		outcome.Table.Append(res.rows...)
	}
	return outcome, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}
