// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which keeps counts and
// timings in memory and renders them as a table at the end of a run. It is
// meant to be used at the terminal in lieu of an actual collector writing to
// an external tool like graphite or datadog. Histogram and Set are stubs.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type statKind int

const (
	kindCount statKind = iota
	kindGauge
	kindTiming
)

type stat struct {
	kind  statKind
	count int64
	gauge float64
	total time.Duration
	n     int64
}

// Collector collects stats and renders them on demand.
type Collector struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []stat
}

// NewCollector initializes and returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		indexes: make(map[string]int),
	}
}

// get returns the stat called name, creating it if needed. The lock must be
// held.
func (t *Collector) get(name string, kind statKind) *stat {
	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, stat{kind: kind})
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	return &t.stats[idx]
}

func sampled(rate float64) bool {
	return rate >= 1 || rand.Float64() <= rate
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	s := t.get(name, kindCount)
	if sampled(rate) {
		s.count += value
	}
}

// Gauge records the latest value of the named stat.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	s := t.get(name, kindGauge)
	if sampled(rate) {
		s.gauge = value
	}
}

// Histogram does nothing.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}

// Timing accumulates value into the named stat. The summary shows the total
// and the number of samples.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	s := t.get(name, kindTiming)
	if sampled(rate) {
		s.total += value
		s.n++
	}
}

// Counts returns a snapshot of every count stat.
func (t *Collector) Counts() map[string]int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	counts := make(map[string]int64)
	for i, s := range t.stats {
		if s.kind == kindCount {
			counts[t.names[i]] = s.count
		}
	}
	return counts
}

// Summary writes a table of every stat, sorted by name, to w.
func (t *Collector) Summary(w io.Writer) error {
	t.lock.Lock()
	names := append([]string{}, t.names...)
	rows := make(map[string][]string, len(names))
	for i, s := range t.stats {
		switch s.kind {
		case kindCount:
			rows[t.names[i]] = []string{t.names[i], strconv.FormatInt(s.count, 10), ""}
		case kindGauge:
			rows[t.names[i]] = []string{t.names[i], strconv.FormatFloat(s.gauge, 'f', -1, 64), ""}
		case kindTiming:
			rows[t.names[i]] = []string{t.names[i], s.total.Round(time.Millisecond).String(), strconv.FormatInt(s.n, 10)}
		}
	}
	t.lock.Unlock()

	sort.Strings(names)
	out := make([][]string, len(names))
	for i, name := range names {
		out[i] = rows[name]
	}
	_, err := fmt.Fprintln(w, RenderTable([]string{"Stat", "Value", "Samples"}, out, []bool{false, true, true}))
	return err
}

// RenderTable renders rows under headers. alignRight marks the columns
// whose cells are right aligned.
func RenderTable(headers []string, rows [][]string, alignRight []bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(alignRight) && alignRight[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
