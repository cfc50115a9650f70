package storage

import "sort"

// Transition is one staged (from, to, rate) triple. Rate is always
// strictly positive by the time it reaches the buffer.
type Transition struct {
	From StateID
	To   StateID
	Rate float64
}

type stagedEntry struct {
	col  StateID
	rate float64
}

// StagingBuffer accumulates transitions in arbitrary row order and
// finalizes them into row-grouped CSR form. Duplicate (from, to) entries
// are summed at finalization, which is what collapses duplicate successor
// targets emitted by the oracle into a single matrix entry.
type StagingBuffer struct {
	rows    [][]stagedEntry
	entries int
}

// NewStagingBuffer returns an empty buffer.
func NewStagingBuffer() *StagingBuffer {
	return &StagingBuffer{}
}

// Add stages one transition. Rows may arrive in any order and a row may
// be appended to more than once.
func (sb *StagingBuffer) Add(from, to StateID, rate float64) {
	if int(from) >= len(sb.rows) {
		grown := make([][]stagedEntry, int(from)+1)
		copy(grown, sb.rows)
		sb.rows = grown
	}
	sb.rows[from] = append(sb.rows[from], stagedEntry{col: to, rate: rate})
	sb.entries++
}

// RewriteTarget redirects the first staged (from, oldTo) entry to newTo,
// e.g. to the absorbing state. Reports whether an entry was rewritten.
func (sb *StagingBuffer) RewriteTarget(from, oldTo, newTo StateID) bool {
	if int(from) >= len(sb.rows) {
		return false
	}
	for i := range sb.rows[from] {
		if sb.rows[from][i].col == oldTo {
			sb.rows[from][i].col = newTo
			return true
		}
	}
	return false
}

// HasRow reports whether any transition has been staged for from.
func (sb *StagingBuffer) HasRow(from StateID) bool {
	return int(from) < len(sb.rows) && len(sb.rows[from]) > 0
}

// RowRateSum returns the total staged outgoing rate of a row.
func (sb *StagingBuffer) RowRateSum(from StateID) float64 {
	if int(from) >= len(sb.rows) {
		return 0
	}
	sum := 0.0
	for _, e := range sb.rows[from] {
		sum += e.rate
	}
	return sum
}

// Len returns the number of staged entries before duplicate merging.
func (sb *StagingBuffer) Len() int { return sb.entries }

// Reset discards all staged transitions. The re-exploring strategy calls
// this between passes, and cancellation discards partial output this way.
func (sb *StagingBuffer) Reset() {
	sb.rows = sb.rows[:0]
	sb.entries = 0
}

// Merge drains other into sb. The threaded layer shards staging by
// worker and merges the shards before finalization.
func (sb *StagingBuffer) Merge(other *StagingBuffer) {
	for from, row := range other.rows {
		for _, e := range row {
			sb.Add(StateID(from), e.col, e.rate)
		}
	}
	other.Reset()
}

// CSRMatrix is a finalized sparse transition matrix in compressed sparse
// row form. Row i's entries live in Cols/Rates[RowPtr[i]:RowPtr[i+1]].
type CSRMatrix struct {
	RowPtr []int
	Cols   []StateID
	Rates  []float64
}

// Finalize merges duplicates, sorts each row by column, and produces the
// CSR matrix with numRows rows. Rows with no staged entries come out
// empty; the caller is responsible for having synthesized absorbing
// transitions for them beforehand.
func (sb *StagingBuffer) Finalize(numRows int) *CSRMatrix {
	m := &CSRMatrix{
		RowPtr: make([]int, numRows+1),
		Cols:   make([]StateID, 0, sb.entries),
		Rates:  make([]float64, 0, sb.entries),
	}
	for row := 0; row < numRows; row++ {
		m.RowPtr[row] = len(m.Cols)
		if row >= len(sb.rows) || len(sb.rows[row]) == 0 {
			continue
		}
		entries := sb.rows[row]
		sort.Slice(entries, func(i, j int) bool { return entries[i].col < entries[j].col })
		for i := 0; i < len(entries); {
			col := entries[i].col
			sum := 0.0
			for ; i < len(entries) && entries[i].col == col; i++ {
				sum += entries[i].rate
			}
			m.Cols = append(m.Cols, col)
			m.Rates = append(m.Rates, sum)
		}
	}
	m.RowPtr[numRows] = len(m.Cols)
	return m
}

// NumRows returns the number of rows.
func (m *CSRMatrix) NumRows() int { return len(m.RowPtr) - 1 }

// NNZ returns the number of stored entries.
func (m *CSRMatrix) NNZ() int { return len(m.Cols) }

// Row returns the column ids and rates of row i.
func (m *CSRMatrix) Row(i StateID) ([]StateID, []float64) {
	lo, hi := m.RowPtr[i], m.RowPtr[i+1]
	return m.Cols[lo:hi], m.Rates[lo:hi]
}

// RowSum returns the total outgoing rate of row i.
func (m *CSRMatrix) RowSum(i StateID) float64 {
	sum := 0.0
	_, rates := m.Row(i)
	for _, r := range rates {
		sum += r
	}
	return sum
}

// Entry returns the rate of (from, to), or 0 when absent.
func (m *CSRMatrix) Entry(from, to StateID) float64 {
	cols, rates := m.Row(from)
	for i, c := range cols {
		if c == to {
			return rates[i]
		}
	}
	return 0
}
