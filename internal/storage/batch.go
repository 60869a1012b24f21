package storage

import "fmt"

// Span is a half-open index range [From, To) over a slice of records.
type Span struct {
	From int
	To   int
}

// Len is the number of records covered.
func (s Span) Len() int {
	return s.To - s.From
}

// SplitBatches cuts n records into consecutive spans of at most size records.
func SplitBatches(n, size int) ([]Span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if n < 0 {
		return nil, fmt.Errorf("record count must be >= 0")
	}

	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{From: start, To: end})
	}
	return spans, nil
}
