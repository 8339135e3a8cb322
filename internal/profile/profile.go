// Package profile computes per-column statistics from a raw table in a
// single pass per column. Profiles are pure functions of the input table
// and are never mutated after creation.
package profile

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/harmonize-cli/internal/model"
)

// Options bounds profiling work.
type Options struct {
	SampleSize  int // values kept per column (first-N plus stride-N)
	DistinctCap int // stop exact distinct counting above this
}

func (o Options) sampleSize() int {
	if o.SampleSize <= 0 {
		return 10
	}
	return o.SampleSize
}

func (o Options) distinctCap() int {
	if o.DistinctCap <= 0 {
		return 10_000
	}
	return o.DistinctCap
}

// dateLayouts are the layouts the type vote recognizes as dates. The
// transform stage has its own configurable list; this one only needs to
// catch common shapes well enough to classify a column.
var dateLayouts = []string{
	"2006-01-02", "01/02/2006", "2006/01/02", "02-01-2006",
	"Jan 2, 2006", "2 Jan 2006", "2006-01-02T15:04:05Z07:00",
}

// Table profiles every column of the table, in parallel across columns.
// Returns exactly one profile per input column, in column order.
func Table(ctx context.Context, table *model.Table, opts Options) ([]model.ColumnProfile, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, eris.Errorf("profile: empty source (%s)", model.CodeEmptySource)
	}

	profiles := make([]model.ColumnProfile, len(table.Header))

	g, gCtx := errgroup.WithContext(ctx)
	for col := range table.Header {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			profiles[col] = Column(table.Header[col], col, table.Rows, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "profile: table")
	}
	return profiles, nil
}

// Column profiles a single column in one streaming pass over the rows.
// Resident memory is bounded by the sample size and the distinct cap.
func Column(name string, position int, rows [][]string, opts Options) model.ColumnProfile {
	p := model.ColumnProfile{Name: name, Position: position}

	sampleN := opts.sampleSize()
	distinctCap := opts.distinctCap()

	distinct := make(map[string]struct{}, 64)
	sampleSeen := make(map[string]struct{}, 2*sampleN)
	var firstSamples, strideSamples []string

	// Stride sampling is deterministic: every k-th non-null value, where k
	// spreads the stride samples across the whole column.
	stride := len(rows) / sampleN
	if stride < 1 {
		stride = 1
	}

	var (
		nulls      int
		numericN   int
		dateN      int
		boolN      int
		sum        float64
		minNum     float64
		maxNum     float64
		minStr     string
		maxStr     string
		nonNullIdx int
	)

	for _, row := range rows {
		var val string
		if position < len(row) {
			val = strings.TrimSpace(row[position])
		}
		if val == "" {
			nulls++
			continue
		}

		if len(distinct) < distinctCap {
			distinct[val] = struct{}{}
		}

		if _, dup := sampleSeen[val]; !dup {
			switch {
			case len(firstSamples) < sampleN:
				firstSamples = append(firstSamples, val)
				sampleSeen[val] = struct{}{}
			case nonNullIdx%stride == 0 && len(strideSamples) < sampleN:
				strideSamples = append(strideSamples, val)
				sampleSeen[val] = struct{}{}
			}
		}
		nonNullIdx++

		if minStr == "" || val < minStr {
			minStr = val
		}
		if val > maxStr {
			maxStr = val
		}

		if f, ok := parseNumeric(val); ok {
			if numericN == 0 || f < minNum {
				minNum = f
			}
			if numericN == 0 || f > maxNum {
				maxNum = f
			}
			numericN++
			sum += f
		} else if isDate(val) {
			dateN++
		} else if isBool(val) {
			boolN++
		}
	}

	total := len(rows)
	nonNull := total - nulls

	p.NullRate = float64(nulls) / float64(total)
	p.DistinctCount = len(distinct)
	p.SampleValues = append(firstSamples, strideSamples...)
	p.InferredType = voteType(nonNull, numericN, dateN, boolN)
	p.Cardinality = bucketCardinality(len(distinct), nonNull)

	switch p.InferredType {
	case model.TypeNumeric:
		p.Min = strconv.FormatFloat(minNum, 'f', -1, 64)
		p.Max = strconv.FormatFloat(maxNum, 'f', -1, 64)
		if numericN > 0 {
			mean := sum / float64(numericN)
			p.Mean = &mean
		}
	default:
		p.Min = minStr
		p.Max = maxStr
	}

	return p
}

// voteType picks the coarse type by majority vote over parseable values.
func voteType(nonNull, numeric, date, boolean int) model.DataType {
	if nonNull == 0 {
		return model.TypeString
	}
	half := nonNull / 2
	switch {
	case numeric > half:
		return model.TypeNumeric
	case date > half:
		return model.TypeDate
	case boolean > half:
		return model.TypeBoolean
	default:
		return model.TypeString
	}
}

func bucketCardinality(distinct, nonNull int) model.Cardinality {
	if nonNull == 0 {
		return model.CardinalityLow
	}
	ratio := float64(distinct) / float64(nonNull)
	switch {
	case ratio > 0.9:
		return model.CardinalityHigh
	case ratio > 0.1:
		return model.CardinalityMedium
	default:
		return model.CardinalityLow
	}
}

func parseNumeric(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "y", "n":
		return true
	}
	return false
}
