package indicators

// Series is aligned with its input; nil marks positions where the indicator is undefined.
type Series []*float64

func nilSeries(n int) Series {
	return make(Series, n)
}

func value(v float64) *float64 { return &v }

// SMA is the simple moving average of closes over period bars.
func SMA(closes []float64, period int) Series {
	out := nilSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = value(sum / float64(period))
		}
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first period closes.
func EMA(closes []float64, period int) Series {
	out := nilSeries(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	k := 2 / float64(period+1)
	prev := 0.0
	for i := 0; i < period; i++ {
		prev += closes[i]
	}
	prev /= float64(period)
	out[period-1] = value(prev)
	for i := period; i < len(closes); i++ {
		prev = (closes[i]-prev)*k + prev
		out[i] = value(prev)
	}
	return out
}
