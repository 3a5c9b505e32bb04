package merger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/alphafolio-backend/internal/domain"
)

// Merge combines per-asset price series into one portfolio value curve.
// Logic:
//  1. Value every point (close * quantity) and bucket it: hourly for crypto on
//     the day period (the live last point keeps its timestamp), exact for
//     equities, one bucket per calendar day otherwise. Later points win a bucket.
//  2. Sum each class into a line over the union of its buckets, forward-filling
//     every asset and back-filling it with its first value.
//  3. Align the equity line to the crypto buckets using the session calendar.
//     An equity-only line is clipped to the period window ending at its last
//     point, since equity history is fetched over a wider range.
//
// Series keys are only used for deterministic ordering. The result is strictly
// increasing in time and empty, never nil, when there is no data.
func Merge(series map[string]domain.AssetSeries, cal *domain.SessionCalendar, period domain.Period) []domain.ValuePoint {
	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cryptoAssets, equityAssets [][]domain.ValuePoint
	for _, k := range keys {
		s := series[k]
		points := bucketAsset(s, cal, period)
		if len(points) == 0 {
			continue
		}
		if s.Class == domain.AssetClassCrypto {
			cryptoAssets = append(cryptoAssets, points)
		} else {
			equityAssets = append(equityAssets, points)
		}
	}

	crypto := sumLine(cryptoAssets)
	equity := sumLine(equityAssets)

	switch {
	case len(crypto) == 0 && len(equity) == 0:
		return []domain.ValuePoint{}
	case len(crypto) == 0:
		return clipToPeriod(equity, cal, period)
	case len(equity) == 0:
		return crypto
	}

	if period.Intraday() {
		return alignIntraday(crypto, equity, cal)
	}
	return alignDaily(crypto, equity, cal)
}

// clipToPeriod keeps the points of line inside the window ending at its last
// point: that session's date for the day period, the trailing Days() otherwise.
func clipToPeriod(line []domain.ValuePoint, cal *domain.SessionCalendar, period domain.Period) []domain.ValuePoint {
	last := line[len(line)-1].Timestamp
	start := cal.DayStart(last)
	if !period.Intraday() {
		start = cal.AddDays(start, -period.Days())
	}

	i := sort.Search(len(line), func(i int) bool {
		return !line[i].Timestamp.Before(start)
	})
	return line[i:]
}

// bucketAsset values one series and maps it to bucket timestamps
func bucketAsset(s domain.AssetSeries, cal *domain.SessionCalendar, period domain.Period) []domain.ValuePoint {
	if len(s.Points) == 0 {
		return nil
	}

	points := make([]domain.PricePoint, len(s.Points))
	copy(points, s.Points)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	out := make([]domain.ValuePoint, 0, len(points))
	for i, p := range points {
		var bucket time.Time
		switch {
		case !period.Intraday():
			bucket = cal.DayStart(p.Timestamp)
		case s.Class == domain.AssetClassCrypto && i < len(points)-1:
			bucket = p.Timestamp.Truncate(time.Hour)
		default:
			bucket = p.Timestamp
		}

		vp := domain.ValuePoint{Timestamp: bucket, TotalValue: p.Close.Mul(s.Quantity)}
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(bucket) {
			// Same bucket: the later point wins
			out[n-1] = vp
			continue
		}
		out = append(out, vp)
	}
	return out
}

// sumLine adds assets bucket by bucket over the union of their timestamps
func sumLine(assets [][]domain.ValuePoint) []domain.ValuePoint {
	if len(assets) == 0 {
		return nil
	}

	seen := make(map[int64]struct{})
	var stamps []time.Time
	for _, points := range assets {
		for _, p := range points {
			key := p.Timestamp.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			stamps = append(stamps, p.Timestamp)
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	line := make([]domain.ValuePoint, len(stamps))
	for i, ts := range stamps {
		line[i] = domain.ValuePoint{Timestamp: ts, TotalValue: decimal.Zero}
	}

	for _, points := range assets {
		// Before its first point an asset counts at its first value
		cursor := 0
		for i, ts := range stamps {
			for cursor+1 < len(points) && !points[cursor+1].Timestamp.After(ts) {
				cursor++
			}
			line[i].TotalValue = line[i].TotalValue.Add(points[cursor].TotalValue)
		}
	}
	return line
}

// equityIndex groups the equity line by trading date
type equityIndex struct {
	cal      *domain.SessionCalendar
	byDate   map[string][]domain.ValuePoint
	earliest domain.ValuePoint
	firstKey string
}

func newEquityIndex(line []domain.ValuePoint, cal *domain.SessionCalendar) *equityIndex {
	idx := &equityIndex{
		cal:      cal,
		byDate:   make(map[string][]domain.ValuePoint),
		earliest: line[0],
		firstKey: cal.DateKey(line[0].Timestamp),
	}
	for _, p := range line {
		key := cal.DateKey(p.Timestamp)
		idx.byDate[key] = append(idx.byDate[key], p)
	}
	return idx
}

// closeOnOrBefore walks back from day to the most recent date with equity
// data and returns that date's last value. The earliest equity value is
// used once the walk passes the start of the data.
func (idx *equityIndex) closeOnOrBefore(day time.Time) decimal.Decimal {
	for d := idx.cal.DayStart(day); idx.cal.DateKey(d) >= idx.firstKey; d = idx.cal.AddDays(d, -1) {
		if points, ok := idx.byDate[idx.cal.DateKey(d)]; ok {
			return points[len(points)-1].TotalValue
		}
	}
	return idx.earliest.TotalValue
}

func (idx *equityIndex) priorClose(t time.Time) decimal.Decimal {
	return idx.closeOnOrBefore(idx.cal.AddDays(idx.cal.DayStart(t), -1))
}

// latestInSession returns the last equity value at or before t on t's date
func (idx *equityIndex) latestInSession(t time.Time) (decimal.Decimal, bool) {
	points := idx.byDate[idx.cal.DateKey(t)]
	i := sort.Search(len(points), func(i int) bool { return points[i].Timestamp.After(t) })
	if i == 0 {
		return decimal.Zero, false
	}
	return points[i-1].TotalValue, true
}

// alignIntraday adds the equity value in effect at each crypto bucket
func alignIntraday(crypto, equity []domain.ValuePoint, cal *domain.SessionCalendar) []domain.ValuePoint {
	idx := newEquityIndex(equity, cal)

	out := make([]domain.ValuePoint, len(crypto))
	for i, c := range crypto {
		var ev decimal.Decimal
		switch {
		case !cal.IsTradingDay(c.Timestamp) || c.Timestamp.Before(cal.SessionOpen(c.Timestamp)):
			ev = idx.priorClose(c.Timestamp)
		case !c.Timestamp.Before(cal.SessionClose(c.Timestamp)):
			ev = idx.closeOnOrBefore(c.Timestamp)
		default:
			v, ok := idx.latestInSession(c.Timestamp)
			if !ok {
				v = idx.priorClose(c.Timestamp)
			}
			ev = v
		}
		out[i] = domain.ValuePoint{Timestamp: c.Timestamp, TotalValue: c.TotalValue.Add(ev)}
	}
	return out
}

// alignDaily adds the equity value of each crypto day, carrying the last
// trading day's value over weekends and holidays
func alignDaily(crypto, equity []domain.ValuePoint, cal *domain.SessionCalendar) []domain.ValuePoint {
	idx := newEquityIndex(equity, cal)

	var lastTrading decimal.NullDecimal
	out := make([]domain.ValuePoint, len(crypto))
	for i, c := range crypto {
		var ev decimal.Decimal
		if points, ok := idx.byDate[cal.DateKey(c.Timestamp)]; ok {
			ev = points[len(points)-1].TotalValue
			lastTrading = decimal.NewNullDecimal(ev)
		} else if !lastTrading.Valid {
			ev = idx.closeOnOrBefore(crypto[0].Timestamp)
			lastTrading = decimal.NewNullDecimal(ev)
		} else {
			ev = lastTrading.Decimal
		}
		out[i] = domain.ValuePoint{Timestamp: c.Timestamp, TotalValue: c.TotalValue.Add(ev)}
	}
	return out
}
